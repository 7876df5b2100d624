package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/presensia/presensia/internal/database"
)

// SettingsRepository provides PostgreSQL-backed application settings storage.
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetSetting retrieves a setting by key, or (nil, nil) when absent.
func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (*database.Setting, error) {
	query := `
		SELECT key, value, description, category, updated_at
		FROM app_settings
		WHERE key = $1
	`

	s, err := scanSetting(r.pool.QueryRow(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return s, nil
}

// ListSettings returns settings ordered by category and key. An empty
// category lists everything.
func (r *SettingsRepository) ListSettings(ctx context.Context, category string) ([]database.Setting, error) {
	query := `
		SELECT key, value, description, category, updated_at
		FROM app_settings
		WHERE $1 = '' OR category = $1
		ORDER BY category, key
	`

	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var settings []database.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}

	return settings, nil
}

// UpsertSetting inserts or updates a setting value.
func (r *SettingsRepository) UpsertSetting(ctx context.Context, setting *database.Setting) error {
	query := `
		INSERT INTO app_settings (key, value, description, category, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value       = EXCLUDED.value,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), app_settings.description),
			category    = COALESCE(NULLIF(EXCLUDED.category, ''), app_settings.category),
			updated_at  = NOW()
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		setting.Key, setting.Value, setting.Description, setting.Category,
	).Scan(&setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// SeedSetting inserts a setting only if the key does not exist yet. Returns
// true when a row was inserted.
func (r *SettingsRepository) SeedSetting(ctx context.Context, setting *database.Setting) (bool, error) {
	query := `
		INSERT INTO app_settings (key, value, description, category, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO NOTHING
	`

	res, err := r.pool.Exec(ctx, query,
		setting.Key, setting.Value, setting.Description, setting.Category,
	)
	if err != nil {
		return false, fmt.Errorf("seed setting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed setting rows affected: %w", err)
	}
	return n > 0, nil
}

func scanSetting(scanner interface{ Scan(...any) error }) (*database.Setting, error) {
	var s database.Setting
	var description, category sql.NullString

	err := scanner.Scan(&s.Key, &s.Value, &description, &category, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.Description = description.String
	s.Category = category.String
	return &s, nil
}

var _ database.SettingsStore = (*SettingsRepository)(nil)
