package database

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceType is the direction of a ledger entry.
type AttendanceType string

const (
	CheckIn  AttendanceType = "CHECK_IN"
	CheckOut AttendanceType = "CHECK_OUT"
)

// VerificationStatus reflects the match score at the moment the record was
// written, relative to the threshold in effect for that request.
type VerificationStatus string

const (
	StatusVerified VerificationStatus = "VERIFIED"
	StatusPending  VerificationStatus = "PENDING"
)

// VerificationMethod identifies how the attendance was verified.
type VerificationMethod string

const (
	MethodFace        VerificationMethod = "FACE"
	MethodManualAdmin VerificationMethod = "MANUAL_ADMIN"
)

// Employee is the identity subject. IsActive gates both matching and session
// issuance.
type Employee struct {
	ID           uuid.UUID
	EmployeeCode string // human-facing code, e.g. EMP001
	FullName     string
	Email        string
	Department   string
	IsActive     bool
	CreatedAt    time.Time
}

// Device is a whitelisted hardware identity. DeviceID is the stable external
// identifier presented by the mobile client.
type Device struct {
	ID        uuid.UUID
	DeviceID  string
	Label     string
	Platform  string
	IsActive  bool
	CreatedAt time.Time
}

// FaceTemplate holds one employee's enrolled embedding. An employee has at
// most one active template; enrollment upserts. Templates are retired by
// clearing IsActive, never hard-deleted in the matching path.
type FaceTemplate struct {
	ID              uuid.UUID
	EmployeeID      uuid.UUID
	Embedding       []float32
	TemplateVersion int
	QualityScore    *float64
	IsActive        bool
	PhotoPath       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MobileSession is one refresh-token lineage for an employee+device pair.
// Only the bcrypt hash of the refresh token is stored. Revoked sessions keep
// their row with RevokedAt set.
type MobileSession struct {
	ID               uuid.UUID
	EmployeeID       uuid.UUID
	DeviceID         uuid.UUID
	RefreshTokenHash string
	// ClientCaptureID is the capture that minted this session, recorded so
	// a replayed login capture is rejected even before any attendance row
	// exists for it.
	ClientCaptureID string
	ExpiresAt       time.Time
	RevokedAt       *time.Time
	CreatedAt       time.Time
}

// AttendanceRecord is an append-only ledger entry.
type AttendanceRecord struct {
	ID                 uuid.UUID
	EmployeeID         uuid.UUID
	DeviceID           uuid.UUID
	Type               AttendanceType
	ClientCaptureID    string
	CapturedAt         time.Time
	VerificationMethod VerificationMethod
	VerificationStatus VerificationStatus
	MatchScore         float64
	LivenessScore      *float64
	Note               string
	ProofImagePath     string
	Latitude           *float64
	Longitude          *float64
	CreatedAt          time.Time
}

// Setting is one tunable key/value pair.
type Setting struct {
	Key         string    `yaml:"key"`
	Value       string    `yaml:"value"`
	Description string    `yaml:"description"`
	Category    string    `yaml:"category"`
	UpdatedAt   time.Time `yaml:"-"`
}

// TemplateCandidate is one ranked result from a similarity query. Score is
// cosine similarity in [-1, 1].
type TemplateCandidate struct {
	TemplateID uuid.UUID
	EmployeeID uuid.UUID
	Score      float64
}

// AttendanceFilter narrows history queries. Zero values mean "no filter".
type AttendanceFilter struct {
	From  time.Time
	To    time.Time
	Type  AttendanceType
	Page  int
	Limit int
}
