package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/database/mock"
	"github.com/presensia/presensia/internal/settings"
)

type ledgerFixture struct {
	ledger     *Ledger
	attendance *mock.MockAttendanceStore
	store      *mock.MockSettingsStore
	employee   *database.Employee
	device     *database.Device
	now        time.Time
}

func setupLedger(t *testing.T) *ledgerFixture {
	t.Helper()

	attendance := mock.NewMockAttendanceStore()
	store := mock.NewMockSettingsStore()
	l := New(attendance, attendance, settings.NewProvider(store), time.UTC)

	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	return &ledgerFixture{
		ledger:     l,
		attendance: attendance,
		store:      store,
		employee: &database.Employee{
			ID:           uuid.New(),
			EmployeeCode: "EMP001",
			FullName:     "Jane Roe",
			IsActive:     true,
		},
		device: &database.Device{
			ID:       uuid.New(),
			DeviceID: "device-abc",
			IsActive: true,
		},
		now: now,
	}
}

func (f *ledgerFixture) request(recType database.AttendanceType, captureID string, capturedAt time.Time, score float64) *Request {
	return &Request{
		Employee:        f.employee,
		Device:          f.device,
		Type:            recType,
		ClientCaptureID: captureID,
		CapturedAt:      capturedAt,
		MatchScore:      score,
		Threshold:       0.60,
	}
}

func TestRecord_CheckIn(t *testing.T) {
	f := setupLedger(t)

	result, err := f.ledger.Record(context.Background(), f.request(database.CheckIn, "cap-1", f.now, 0.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Idempotent {
		t.Error("fresh record should not be idempotent")
	}
	if result.Record.Type != database.CheckIn {
		t.Errorf("expected CHECK_IN, got %s", result.Record.Type)
	}
	if result.Record.VerificationStatus != database.StatusVerified {
		t.Errorf("expected VERIFIED, got %s", result.Record.VerificationStatus)
	}
	if result.Record.VerificationMethod != database.MethodFace {
		t.Errorf("expected FACE, got %s", result.Record.VerificationMethod)
	}
}

func TestRecord_DoubleCheckIn(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	if _, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-1", f.now, 0.85)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-2", f.now.Add(time.Minute), 0.85))
	if err != ErrAlreadyCheckedIn {
		t.Errorf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestRecord_CheckOutWithoutCheckIn(t *testing.T) {
	f := setupLedger(t)

	_, err := f.ledger.Record(context.Background(), f.request(database.CheckOut, "cap-1", f.now, 0.85))
	if err != ErrNotCheckedIn {
		t.Errorf("expected ErrNotCheckedIn, got %v", err)
	}
}

func TestRecord_FullWorkDay(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	// Check in at 08:30
	if _, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-in", f.now, 0.85)); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	// Check out at 17:15
	checkOut := time.Date(2025, 3, 10, 17, 15, 0, 0, time.UTC)
	f.ledger.now = func() time.Time { return checkOut }

	result, err := f.ledger.Record(ctx, f.request(database.CheckOut, "cap-out", checkOut, 0.88))
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	want := 8*time.Hour + 45*time.Minute
	if result.WorkDuration != want {
		t.Errorf("expected work duration 8h45m, got %s", result.WorkDuration)
	}
}

func TestRecord_CheckInAfterCheckOut(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	if _, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-1", f.now, 0.85)); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	later := f.now.Add(4 * time.Hour)
	f.ledger.now = func() time.Time { return later }
	if _, err := f.ledger.Record(ctx, f.request(database.CheckOut, "cap-2", later, 0.85)); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	// A second shift on the same day is allowed
	evening := later.Add(2 * time.Hour)
	f.ledger.now = func() time.Time { return evening }
	if _, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-3", evening, 0.85)); err != nil {
		t.Errorf("second check-in after check-out should succeed: %v", err)
	}
}

func TestRecord_IdempotentReplay(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	first, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-1", f.now, 0.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replay, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-1", f.now, 0.85))
	if err != nil {
		t.Fatalf("replay should succeed: %v", err)
	}

	if !replay.Idempotent {
		t.Error("expected idempotent result")
	}
	if replay.Record.ID != first.Record.ID {
		t.Error("replay should return the original record")
	}
}

// racingReader hides the winner's record from the pre-insert reads,
// simulating a concurrent duplicate that commits between our checks and our
// insert. The post-insert duplicate resolution then sees it.
type racingReader struct {
	database.AttendanceReader
	lookups int
}

func (r *racingReader) GetByCaptureID(ctx context.Context, captureID string) (*database.AttendanceRecord, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.AttendanceReader.GetByCaptureID(ctx, captureID)
}

func (r *racingReader) LatestForEmployeeBetween(ctx context.Context, employeeID uuid.UUID, from, to time.Time) (*database.AttendanceRecord, error) {
	if r.lookups <= 1 {
		return nil, nil
	}
	return r.AttendanceReader.LatestForEmployeeBetween(ctx, employeeID, from, to)
}

func TestRecord_DuplicateRaceResolved(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	winner := database.AttendanceRecord{
		ID:                 uuid.New(),
		EmployeeID:         f.employee.ID,
		DeviceID:           f.device.ID,
		Type:               database.CheckIn,
		ClientCaptureID:    "cap-race",
		CapturedAt:         f.now,
		VerificationMethod: database.MethodFace,
		VerificationStatus: database.StatusVerified,
		MatchScore:         0.9,
	}
	f.attendance.AddRecord(winner)

	racing := New(&racingReader{AttendanceReader: f.attendance}, f.attendance, settings.NewProvider(f.store), time.UTC)
	racing.now = f.ledger.now

	result, err := racing.Record(ctx, f.request(database.CheckIn, "cap-race", f.now, 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Idempotent {
		t.Error("expected idempotent resolution")
	}
	if result.Record.ID != winner.ID {
		t.Error("expected the winner's record")
	}
}

func TestRecord_StaleCapture(t *testing.T) {
	f := setupLedger(t)

	old := f.now.Add(-10 * time.Minute)
	_, err := f.ledger.Record(context.Background(), f.request(database.CheckIn, "cap-1", old, 0.85))
	if err != ErrCaptureStale {
		t.Errorf("expected ErrCaptureStale, got %v", err)
	}
}

func TestRecord_FutureCapture(t *testing.T) {
	f := setupLedger(t)

	future := f.now.Add(10 * time.Minute)
	_, err := f.ledger.Record(context.Background(), f.request(database.CheckIn, "cap-1", future, 0.85))
	if err != ErrCaptureStale {
		t.Errorf("expected ErrCaptureStale for future capture, got %v", err)
	}
}

func TestRecord_SkewSettingRespected(t *testing.T) {
	f := setupLedger(t)
	f.store.SetValue(settings.KeyCaptureMaxSkew, "900")

	old := f.now.Add(-10 * time.Minute)
	if _, err := f.ledger.Record(context.Background(), f.request(database.CheckIn, "cap-1", old, 0.85)); err != nil {
		t.Errorf("capture within widened window should succeed: %v", err)
	}
}

func TestRecord_LivenessDoesNotDemoteStatus(t *testing.T) {
	f := setupLedger(t)

	// Liveness is stored for the record but plays no part in the status,
	// only score vs threshold does.
	liveness := 0.5
	req := f.request(database.CheckIn, "cap-1", f.now, 0.85)
	req.LivenessScore = &liveness

	result, err := f.ledger.Record(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Record.VerificationStatus != database.StatusVerified {
		t.Errorf("score above threshold must be VERIFIED regardless of liveness, got %s", result.Record.VerificationStatus)
	}
	if result.Record.LivenessScore == nil || *result.Record.LivenessScore != liveness {
		t.Error("expected liveness score stored on the record")
	}
}

func TestRecord_PendingBelowThreshold(t *testing.T) {
	f := setupLedger(t)

	req := f.request(database.CheckIn, "cap-1", f.now, 0.55)
	result, err := f.ledger.Record(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Record.VerificationStatus != database.StatusPending {
		t.Errorf("expected PENDING below threshold, got %s", result.Record.VerificationStatus)
	}
}

func TestRecord_MissingCaptureID(t *testing.T) {
	f := setupLedger(t)

	if _, err := f.ledger.Record(context.Background(), f.request(database.CheckIn, "", f.now, 0.85)); err == nil {
		t.Error("expected error for missing capture id")
	}
}

func TestStatus(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()

	open, _, err := f.ledger.Status(ctx, f.employee.ID, f.now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open {
		t.Error("expected closed status before any record")
	}

	if _, err := f.ledger.Record(ctx, f.request(database.CheckIn, "cap-1", f.now, 0.85)); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	open, rec, err := f.ledger.Status(ctx, f.employee.ID, f.now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Error("expected open status after check-in")
	}
	if rec == nil || rec.Type != database.CheckIn {
		t.Error("expected the check-in record")
	}
}
