package device

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/database/mock"
	"github.com/presensia/presensia/internal/settings"
)

func setupGate(t *testing.T) (*Gate, *mock.MockDeviceStore, *mock.MockSettingsStore) {
	t.Helper()
	devices := mock.NewMockDeviceStore()
	store := mock.NewMockSettingsStore()
	gate := NewGate(devices, settings.NewProvider(store))
	return gate, devices, store
}

func TestResolve_KnownDevice(t *testing.T) {
	gate, devices, _ := setupGate(t)
	devices.AddDevice(database.Device{
		ID:       uuid.New(),
		DeviceID: "device-abc",
		IsActive: true,
	})

	dev, err := gate.Resolve(context.Background(), "device-abc", "android")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.DeviceID != "device-abc" {
		t.Errorf("expected device-abc, got %s", dev.DeviceID)
	}
}

func TestResolve_AutoRegister(t *testing.T) {
	gate, devices, _ := setupGate(t)

	dev, err := gate.Resolve(context.Background(), "device-new", "ios")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.ID == uuid.Nil {
		t.Error("expected assigned device row id")
	}
	if !dev.IsActive {
		t.Error("auto-registered device should be active")
	}
	if dev.Platform != "ios" {
		t.Errorf("expected platform ios, got %s", dev.Platform)
	}

	// Subsequent resolves reuse the same row
	again, err := gate.Resolve(context.Background(), "device-new", "ios")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != dev.ID {
		t.Error("expected same device row on repeat resolve")
	}
	_ = devices
}

func TestResolve_AutoRegisterDisabled(t *testing.T) {
	gate, _, store := setupGate(t)
	store.SetValue(settings.KeyDeviceAutoReg, "false")

	if _, err := gate.Resolve(context.Background(), "device-unknown", "android"); err != ErrNotRegistered {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestResolve_InactiveDevice(t *testing.T) {
	gate, devices, _ := setupGate(t)
	devices.AddDevice(database.Device{
		ID:       uuid.New(),
		DeviceID: "device-blocked",
		IsActive: false,
	})

	if _, err := gate.Resolve(context.Background(), "device-blocked", "android"); err != ErrDeviceInactive {
		t.Errorf("expected ErrDeviceInactive, got %v", err)
	}
}

func TestResolve_EmptyDeviceID(t *testing.T) {
	gate, _, _ := setupGate(t)

	if _, err := gate.Resolve(context.Background(), "", "android"); err != ErrNotRegistered {
		t.Errorf("expected ErrNotRegistered for empty id, got %v", err)
	}
}

func TestResolve_StoreError(t *testing.T) {
	gate, devices, _ := setupGate(t)
	devices.GetError = errors.New("db down")

	if _, err := gate.Resolve(context.Background(), "device-abc", "android"); err == nil {
		t.Error("expected error when store fails")
	}
}
