// Package ledger appends verified attendance events and enforces the
// check-in/check-out ordering rules.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/settings"
)

// Default values applied when the corresponding setting is absent.
const (
	DefaultCaptureMaxSkewSeconds = 300
	DefaultLivenessThreshold     = 0.80
)

var (
	// ErrAlreadyCheckedIn is returned when a check-in follows an open check-in
	// on the same day.
	ErrAlreadyCheckedIn = errors.New("employee already checked in")
	// ErrNotCheckedIn is returned when a check-out has no open check-in on
	// the same day.
	ErrNotCheckedIn = errors.New("employee is not checked in")
	// ErrCaptureStale is returned when the capture timestamp is too old or
	// too far in the future.
	ErrCaptureStale = errors.New("capture timestamp outside accepted window")
)

// Request carries one attendance event to record. Threshold is the match
// threshold already applied by the matcher for this request; the same value
// decides the verification status so a concurrent settings change cannot
// split the decision.
type Request struct {
	Employee        *database.Employee
	Device          *database.Device
	Type            database.AttendanceType
	ClientCaptureID string
	CapturedAt      time.Time
	MatchScore      float64
	Threshold       float64
	LivenessScore   *float64
	Note            string
	ProofImagePath  string
	Latitude        *float64
	Longitude       *float64
}

// Result is the outcome of recording an event.
type Result struct {
	Record *database.AttendanceRecord
	// Idempotent is true when the capture id had already been recorded and
	// the existing record is returned unchanged.
	Idempotent bool
	// WorkDuration is set on check-out, measured from the day's check-in.
	WorkDuration time.Duration
}

// Ledger validates and appends attendance records.
type Ledger struct {
	reader   database.AttendanceReader
	writer   database.AttendanceWriter
	settings settings.Provider
	loc      *time.Location
	now      func() time.Time
}

// New creates a ledger. Day boundaries are computed in loc; pass nil for the
// system location.
func New(reader database.AttendanceReader, writer database.AttendanceWriter, provider settings.Provider, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		reader:   reader,
		writer:   writer,
		settings: provider,
		loc:      loc,
		now:      time.Now,
	}
}

// Record appends one attendance event. The flow is: idempotency lookup,
// staleness check, same-day ordering check, insert. A concurrent duplicate
// losing the insert race is resolved by re-reading the winner's record.
func (l *Ledger) Record(ctx context.Context, req *Request) (*Result, error) {
	if req.Employee == nil || req.Device == nil {
		return nil, fmt.Errorf("employee and device are required")
	}
	if req.ClientCaptureID == "" {
		return nil, fmt.Errorf("client capture id is required")
	}

	existing, err := l.reader.GetByCaptureID(ctx, req.ClientCaptureID)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		return &Result{Record: existing, Idempotent: true}, nil
	}

	if err := l.checkSkew(ctx, req.CapturedAt); err != nil {
		return nil, err
	}

	dayStart, dayEnd := l.dayBounds(req.CapturedAt)
	latest, err := l.reader.LatestForEmployeeBetween(ctx, req.Employee.ID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load latest record: %w", err)
	}

	switch req.Type {
	case database.CheckIn:
		if latest != nil && latest.Type == database.CheckIn {
			return nil, ErrAlreadyCheckedIn
		}
	case database.CheckOut:
		if latest == nil || latest.Type != database.CheckIn {
			return nil, ErrNotCheckedIn
		}
	default:
		return nil, fmt.Errorf("unknown attendance type %q", req.Type)
	}

	record := &database.AttendanceRecord{
		ID:                 uuid.New(),
		EmployeeID:         req.Employee.ID,
		DeviceID:           req.Device.ID,
		Type:               req.Type,
		ClientCaptureID:    req.ClientCaptureID,
		CapturedAt:         req.CapturedAt.UTC(),
		VerificationMethod: database.MethodFace,
		VerificationStatus: verificationStatus(req),
		MatchScore:         req.MatchScore,
		LivenessScore:      req.LivenessScore,
		Note:               req.Note,
		ProofImagePath:     req.ProofImagePath,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
	}

	if err := l.writer.Insert(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateCapture) {
			// A concurrent request with the same capture id won the race
			winner, lookupErr := l.reader.GetByCaptureID(ctx, req.ClientCaptureID)
			if lookupErr != nil {
				return nil, fmt.Errorf("resolve duplicate capture: %w", lookupErr)
			}
			if winner == nil {
				return nil, fmt.Errorf("duplicate capture id but record not found")
			}
			return &Result{Record: winner, Idempotent: true}, nil
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}

	result := &Result{Record: record}
	if req.Type == database.CheckOut && latest != nil {
		result.WorkDuration = record.CapturedAt.Sub(latest.CapturedAt)
	}
	return result, nil
}

// checkSkew rejects captures whose timestamp deviates from the server clock
// by more than the configured window, in either direction.
func (l *Ledger) checkSkew(ctx context.Context, capturedAt time.Time) error {
	maxSkew, err := l.settings.Int(ctx, settings.KeyCaptureMaxSkew, DefaultCaptureMaxSkewSeconds)
	if err != nil {
		return fmt.Errorf("resolve capture skew setting: %w", err)
	}

	skew := l.now().Sub(capturedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > time.Duration(maxSkew)*time.Second {
		return ErrCaptureStale
	}
	return nil
}

// verificationStatus judges the record by match score alone. The liveness
// score is stored on the record but does not demote the status.
func verificationStatus(req *Request) database.VerificationStatus {
	if req.MatchScore < req.Threshold {
		return database.StatusPending
	}
	return database.StatusVerified
}

// dayBounds returns the [start, end) of capturedAt's calendar day in the
// ledger's location.
func (l *Ledger) dayBounds(capturedAt time.Time) (time.Time, time.Time) {
	local := capturedAt.In(l.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	return start, start.Add(24 * time.Hour)
}

// History returns a page of the employee's records plus the total count.
func (l *Ledger) History(ctx context.Context, employeeID uuid.UUID, filter database.AttendanceFilter) ([]database.AttendanceRecord, int, error) {
	if filter.Limit > database.MaxPageSize {
		filter.Limit = database.MaxPageSize
	}
	return l.reader.ListForEmployee(ctx, employeeID, filter)
}

// Status reports whether the employee has an open check-in for the day
// containing at, and the matching record if so.
func (l *Ledger) Status(ctx context.Context, employeeID uuid.UUID, at time.Time) (bool, *database.AttendanceRecord, error) {
	dayStart, dayEnd := l.dayBounds(at)
	latest, err := l.reader.LatestForEmployeeBetween(ctx, employeeID, dayStart, dayEnd)
	if err != nil {
		return false, nil, fmt.Errorf("load latest record: %w", err)
	}
	if latest != nil && latest.Type == database.CheckIn {
		return true, latest, nil
	}
	return false, latest, nil
}
