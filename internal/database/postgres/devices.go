package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
)

// DeviceRepository provides PostgreSQL-backed device storage.
type DeviceRepository struct {
	pool *Pool
}

// NewDeviceRepository creates a new PostgreSQL device repository.
func NewDeviceRepository(pool *Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// GetDevice retrieves a device by row ID, or (nil, nil) when absent.
func (r *DeviceRepository) GetDevice(ctx context.Context, id uuid.UUID) (*database.Device, error) {
	query := `
		SELECT id, device_id, label, platform, is_active, created_at
		FROM devices
		WHERE id = $1
	`

	dev, err := scanDevice(r.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

// GetDeviceByDeviceID retrieves a device by its client-reported identifier,
// or (nil, nil) when absent.
func (r *DeviceRepository) GetDeviceByDeviceID(ctx context.Context, deviceID string) (*database.Device, error) {
	query := `
		SELECT id, device_id, label, platform, is_active, created_at
		FROM devices
		WHERE device_id = $1
	`

	dev, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

// CreateDevice inserts a new device record. Concurrent registrations of the
// same device_id collapse onto the existing row.
func (r *DeviceRepository) CreateDevice(ctx context.Context, dev *database.Device) error {
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}

	query := `
		INSERT INTO devices (id, device_id, label, platform, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET device_id = EXCLUDED.device_id
		RETURNING id, is_active, created_at
	`

	var label, platform sql.NullString
	if dev.Label != "" {
		label = sql.NullString{String: dev.Label, Valid: true}
	}
	if dev.Platform != "" {
		platform = sql.NullString{String: dev.Platform, Valid: true}
	}

	err := r.pool.QueryRow(ctx, query,
		dev.ID, dev.DeviceID, label, platform, dev.IsActive,
	).Scan(&dev.ID, &dev.IsActive, &dev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func scanDevice(scanner interface{ Scan(...any) error }) (*database.Device, error) {
	var dev database.Device
	var label, platform sql.NullString

	err := scanner.Scan(
		&dev.ID,
		&dev.DeviceID,
		&label,
		&platform,
		&dev.IsActive,
		&dev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	dev.Label = label.String
	dev.Platform = platform.String
	return &dev, nil
}

var _ database.DeviceStore = (*DeviceRepository)(nil)
