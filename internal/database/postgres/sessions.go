package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
)

// SessionRepository provides PostgreSQL-backed mobile session storage.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, employee_id, device_id, refresh_token_hash, client_capture_id,
	expires_at, revoked_at, created_at
`

// CreateSession inserts a new mobile session record.
func (r *SessionRepository) CreateSession(ctx context.Context, session *database.MobileSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	query := `
		INSERT INTO mobile_sessions (id, employee_id, device_id, refresh_token_hash, client_capture_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.EmployeeID,
		session.DeviceID,
		session.RefreshTokenHash,
		nullString(session.ClientCaptureID),
		session.ExpiresAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionByDeviceCapture retrieves the session minted for a device and
// capture id pair, or (nil, nil) when the capture has not been used.
func (r *SessionRepository) GetSessionByDeviceCapture(
	ctx context.Context, deviceID uuid.UUID, captureID string,
) (*database.MobileSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM mobile_sessions
		WHERE device_id = $1 AND client_capture_id = $2
		LIMIT 1
	`

	s, err := scanSession(r.pool.QueryRow(ctx, query, deviceID, captureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by device capture: %w", err)
	}
	return s, nil
}

// ListLiveSessions returns sessions that are not revoked and not expired as
// of the given instant.
func (r *SessionRepository) ListLiveSessions(ctx context.Context, now time.Time) ([]database.MobileSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM mobile_sessions
		WHERE revoked_at IS NULL AND expires_at > $1
		ORDER BY created_at DESC
	`
	return r.listSessions(ctx, query, now)
}

// ListUnrevokedSessions returns all sessions that have not been revoked,
// including expired ones.
func (r *SessionRepository) ListUnrevokedSessions(ctx context.Context) ([]database.MobileSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM mobile_sessions
		WHERE revoked_at IS NULL
		ORDER BY created_at DESC
	`
	return r.listSessions(ctx, query)
}

func (r *SessionRepository) listSessions(ctx context.Context, query string, args ...any) ([]database.MobileSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.MobileSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(scanner interface{ Scan(...any) error }) (*database.MobileSession, error) {
	var s database.MobileSession
	var captureID sql.NullString
	var revokedAt sql.NullTime

	err := scanner.Scan(
		&s.ID,
		&s.EmployeeID,
		&s.DeviceID,
		&s.RefreshTokenHash,
		&captureID,
		&s.ExpiresAt,
		&revokedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ClientCaptureID = captureID.String
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return &s, nil
}

// RevokeSession marks the session revoked. Revoking an already revoked
// session keeps the original revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE mobile_sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	if _, err := r.pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

var _ database.SessionStore = (*SessionRepository)(nil)
