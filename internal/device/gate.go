// Package device decides whether a client-reported device identifier may
// participate in attendance flows.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/settings"
)

// ErrNotRegistered is returned for unknown devices when auto-registration is
// disabled.
var ErrNotRegistered = errors.New("device not registered")

// ErrDeviceInactive is returned for known devices that have been disabled.
var ErrDeviceInactive = errors.New("device deactivated")

// Gate resolves external device identifiers to whitelisted device rows.
type Gate struct {
	devices  database.DeviceStore
	settings settings.Provider
}

// NewGate creates a device gate over the given store.
func NewGate(devices database.DeviceStore, provider settings.Provider) *Gate {
	return &Gate{devices: devices, settings: provider}
}

// Resolve returns the device row for the external identifier. Unknown
// devices are registered on the fly when the device_auto_register setting is
// enabled, otherwise ErrNotRegistered is returned. Deactivated devices are
// always refused.
func (g *Gate) Resolve(ctx context.Context, deviceID, platform string) (*database.Device, error) {
	if deviceID == "" {
		return nil, ErrNotRegistered
	}

	dev, err := g.devices.GetDeviceByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	if dev == nil {
		autoRegister, err := g.settings.Bool(ctx, settings.KeyDeviceAutoReg, true)
		if err != nil {
			return nil, fmt.Errorf("resolve auto-register setting: %w", err)
		}
		if !autoRegister {
			return nil, ErrNotRegistered
		}

		dev = &database.Device{
			DeviceID: deviceID,
			Label:    deviceLabel(platform),
			Platform: platform,
			IsActive: true,
		}
		if err := g.devices.CreateDevice(ctx, dev); err != nil {
			return nil, fmt.Errorf("register device: %w", err)
		}
	}

	if !dev.IsActive {
		return nil, ErrDeviceInactive
	}
	return dev, nil
}

// deviceLabel derives a human readable label for auto-registered devices.
func deviceLabel(platform string) string {
	if platform == "" {
		return "Mobile device"
	}
	return "Mobile device (" + platform + ")"
}
