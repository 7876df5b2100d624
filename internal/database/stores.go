// Package database defines the storage types and interfaces consumed by the
// attendance services. Concrete implementations live in the postgres
// subpackage; the mock subpackage provides in-memory fakes for tests.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateCapture is returned by AttendanceWriter.Insert when the
// client_capture_id unique constraint is violated. Callers treat it as "a
// concurrent duplicate won the race" and re-fetch the existing record.
var ErrDuplicateCapture = errors.New("client capture id already recorded")

// TemplateRanker ranks stored active templates against a query embedding.
// Results are ordered best-first; scores are cosine similarity.
type TemplateRanker interface {
	RankBySimilarity(ctx context.Context, query []float32, topK int) ([]TemplateCandidate, error)
}

// TemplateReader provides read access to face templates.
type TemplateReader interface {
	TemplateRanker
	GetTemplateByEmployee(ctx context.Context, employeeID uuid.UUID) (*FaceTemplate, error)
	ListActiveTemplates(ctx context.Context) ([]FaceTemplate, error)
}

// TemplateWriter persists face templates. Upsert replaces the employee's
// existing template in place (one active template per employee).
type TemplateWriter interface {
	UpsertTemplate(ctx context.Context, tpl *FaceTemplate) error
}

// EmployeeReader provides read access to employees. Lookups return
// (nil, nil) when no row matches.
type EmployeeReader interface {
	GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error)
	GetEmployeeByCode(ctx context.Context, code string) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// DeviceStore resolves and registers devices by their external device-id
// string. Get returns (nil, nil) for unknown devices.
type DeviceStore interface {
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	GetDeviceByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	CreateDevice(ctx context.Context, device *Device) error
}

// SessionStore persists mobile refresh sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *MobileSession) error
	// ListLiveSessions returns sessions that are neither revoked nor expired
	// as of now. The refresh flow scans these to find the hash matching a
	// presented token.
	ListLiveSessions(ctx context.Context, now time.Time) ([]MobileSession, error)
	// ListUnrevokedSessions returns sessions with no revocation timestamp,
	// including expired ones, so logout can revoke an expired lineage.
	ListUnrevokedSessions(ctx context.Context) ([]MobileSession, error)
	// GetSessionByDeviceCapture returns the session minted for a device and
	// capture id pair, or (nil, nil). Used to refuse a replayed login
	// capture that never produced an attendance row.
	GetSessionByDeviceCapture(ctx context.Context, deviceID uuid.UUID, captureID string) (*MobileSession, error)
	RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AttendanceReader provides read access to the ledger.
type AttendanceReader interface {
	// GetByCaptureID looks up a record by idempotency key alone, not scoped
	// to an employee. Returns (nil, nil) when absent.
	GetByCaptureID(ctx context.Context, clientCaptureID string) (*AttendanceRecord, error)
	// GetByDeviceCapture checks whether a device has already consumed a
	// capture id (face-login anti-replay). Returns (nil, nil) when absent.
	GetByDeviceCapture(ctx context.Context, deviceID uuid.UUID, clientCaptureID string) (*AttendanceRecord, error)
	// LatestForEmployeeBetween returns the most recent record for the
	// employee with captured_at in [from, to], or (nil, nil).
	LatestForEmployeeBetween(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (*AttendanceRecord, error)
	GetAttendance(ctx context.Context, id uuid.UUID) (*AttendanceRecord, error)
	// ListForEmployee returns a page of records plus the total count.
	ListForEmployee(ctx context.Context, employeeID uuid.UUID, filter AttendanceFilter) ([]AttendanceRecord, int, error)
}

// AttendanceWriter appends to the ledger. Insert returns ErrDuplicateCapture
// on a client_capture_id uniqueness conflict.
type AttendanceWriter interface {
	Insert(ctx context.Context, record *AttendanceRecord) error
}

// SettingsStore persists tunable settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (*Setting, error)
	UpsertSetting(ctx context.Context, setting *Setting) error
	ListSettings(ctx context.Context, category string) ([]Setting, error)
}
