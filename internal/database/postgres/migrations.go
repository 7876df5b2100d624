package postgres

import (
	"context"
	"fmt"

	"github.com/presensia/presensia/internal/face"
)

// schemaStatements is the full idempotent schema. Kept at package level so
// tests can check repository queries against the actual column lists.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_code VARCHAR(50) NOT NULL UNIQUE,
		full_name     VARCHAR(255) NOT NULL,
		email         VARCHAR(255),
		department    VARCHAR(255),
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		device_id  VARCHAR(255) NOT NULL UNIQUE,
		label      VARCHAR(255),
		platform   VARCHAR(50),
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS face_templates (
		id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id      UUID NOT NULL UNIQUE REFERENCES employees(id),
		embedding        vector(%d) NOT NULL,
		template_version INTEGER NOT NULL DEFAULT 1,
		quality_score    DOUBLE PRECISION,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		photo_path       VARCHAR(512),
		created_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`, face.EmbeddingDim),
	`CREATE TABLE IF NOT EXISTS mobile_sessions (
		id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id        UUID NOT NULL REFERENCES employees(id),
		device_id          UUID NOT NULL REFERENCES devices(id),
		refresh_token_hash VARCHAR(255) NOT NULL,
		client_capture_id  VARCHAR(255),
		expires_at         TIMESTAMP WITH TIME ZONE NOT NULL,
		revoked_at         TIMESTAMP WITH TIME ZONE,
		created_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_logs (
		id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id         UUID NOT NULL REFERENCES employees(id),
		device_id           UUID NOT NULL REFERENCES devices(id),
		attendance_type     VARCHAR(20) NOT NULL,
		client_capture_id   VARCHAR(255) NOT NULL UNIQUE,
		captured_at         TIMESTAMP WITH TIME ZONE NOT NULL,
		verification_method VARCHAR(20) NOT NULL DEFAULT 'FACE',
		verification_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		match_score         DOUBLE PRECISION NOT NULL DEFAULT 0,
		liveness_score      DOUBLE PRECISION,
		note                VARCHAR(500),
		proof_image_path    VARCHAR(512),
		latitude            DOUBLE PRECISION,
		longitude           DOUBLE PRECISION,
		created_at          TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		key         VARCHAR(100) PRIMARY KEY,
		value       VARCHAR(255) NOT NULL,
		description VARCHAR(500),
		category    VARCHAR(100) NOT NULL DEFAULT 'general',
		updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE mobile_sessions
		ADD COLUMN IF NOT EXISTS client_capture_id VARCHAR(255)`,
	`CREATE INDEX IF NOT EXISTS attendance_logs_employee_captured_idx
		ON attendance_logs(employee_id, captured_at DESC)`,
	`CREATE INDEX IF NOT EXISTS attendance_logs_device_capture_idx
		ON attendance_logs(device_id, client_capture_id)`,
	`CREATE INDEX IF NOT EXISTS mobile_sessions_device_capture_idx
		ON mobile_sessions(device_id, client_capture_id)
		WHERE client_capture_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS mobile_sessions_live_idx
		ON mobile_sessions(expires_at) WHERE revoked_at IS NULL`,
}

// Migrate creates the schema. Statements are idempotent so startup can run
// them unconditionally.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := p.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto"`); err != nil {
		return fmt.Errorf("failed to create pgcrypto extension: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateVectorIndex creates the IVFFlat index for template similarity search.
// This should be called after the table has some data for optimal performance.
func (p *Pool) CreateVectorIndex(ctx context.Context) error {
	_, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS face_templates_vector_idx
		ON face_templates USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}
