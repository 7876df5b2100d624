package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/presensia/presensia/internal/database/mock"
)

func TestGet_ReadThrough(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.65")

	p := NewProvider(store)

	got, err := p.Get(context.Background(), KeyMatchThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0.65" {
		t.Errorf("expected '0.65', got '%s'", got)
	}
}

func TestGet_CachesWithinTTL(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.65")

	p := NewProvider(store)

	if _, err := p.Get(context.Background(), KeyMatchThreshold); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Store changes, but the cached value is still served
	store.SetValue(KeyMatchThreshold, "0.99")

	got, err := p.Get(context.Background(), KeyMatchThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0.65" {
		t.Errorf("expected cached '0.65', got '%s'", got)
	}
}

func TestGet_RefreshesAfterTTL(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.65")

	now := time.Now()
	p := NewProvider(store)
	p.now = func() time.Time { return now }

	if _, err := p.Get(context.Background(), KeyMatchThreshold); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.SetValue(KeyMatchThreshold, "0.70")
	now = now.Add(cacheTTL + time.Second)

	got, err := p.Get(context.Background(), KeyMatchThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0.70" {
		t.Errorf("expected refreshed '0.70', got '%s'", got)
	}
}

func TestGet_ServesStaleOnStoreError(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.65")

	now := time.Now()
	p := NewProvider(store)
	p.now = func() time.Time { return now }

	if _, err := p.Get(context.Background(), KeyMatchThreshold); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.GetError = errors.New("connection refused")
	now = now.Add(cacheTTL + time.Second)

	got, err := p.Get(context.Background(), KeyMatchThreshold)
	if err != nil {
		t.Fatalf("expected stale value, got error: %v", err)
	}
	if got != "0.65" {
		t.Errorf("expected stale '0.65', got '%s'", got)
	}
}

func TestGet_ErrorWithoutCache(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.GetError = errors.New("connection refused")

	p := NewProvider(store)

	if _, err := p.Get(context.Background(), KeyMatchThreshold); err == nil {
		t.Error("expected error when store fails and no cache exists")
	}
}

func TestFloat(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.72")
	store.SetValue("bad_float", "not-a-number")

	p := NewProvider(store)
	ctx := context.Background()

	got, err := p.Float(ctx, KeyMatchThreshold, 0.60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.72 {
		t.Errorf("expected 0.72, got %f", got)
	}

	// Missing key falls back
	got, err = p.Float(ctx, "missing_key", 0.60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.60 {
		t.Errorf("expected default 0.60, got %f", got)
	}

	// Unparseable value falls back
	got, err = p.Float(ctx, "bad_float", 0.60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.60 {
		t.Errorf("expected default 0.60 for bad value, got %f", got)
	}
}

func TestInt(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyCaptureMaxSkew, "600")

	p := NewProvider(store)
	ctx := context.Background()

	got, err := p.Int(ctx, KeyCaptureMaxSkew, 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 600 {
		t.Errorf("expected 600, got %d", got)
	}

	got, err = p.Int(ctx, "missing_key", 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 300 {
		t.Errorf("expected default 300, got %d", got)
	}
}

func TestBool(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyDeviceAutoReg, "false")

	p := NewProvider(store)
	ctx := context.Background()

	got, err := p.Bool(ctx, KeyDeviceAutoReg, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected false")
	}

	got, err = p.Bool(ctx, "missing_key", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected default true")
	}
}

func TestInvalidate(t *testing.T) {
	store := mock.NewMockSettingsStore()
	store.SetValue(KeyMatchThreshold, "0.65")

	p := NewProvider(store)
	ctx := context.Background()

	if _, err := p.Get(ctx, KeyMatchThreshold); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.SetValue(KeyMatchThreshold, "0.80")
	p.Invalidate(KeyMatchThreshold)

	got, err := p.Get(ctx, KeyMatchThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0.80" {
		t.Errorf("expected '0.80' after invalidate, got '%s'", got)
	}
}
