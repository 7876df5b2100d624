package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/presensia/presensia/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance log storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `
	id, employee_id, device_id, attendance_type, client_capture_id, captured_at,
	verification_method, verification_status, match_score, liveness_score,
	note, proof_image_path, latitude, longitude, created_at
`

// Insert persists a new attendance record. A unique violation on
// client_capture_id maps to database.ErrDuplicateCapture so callers can
// resolve the race idempotently.
func (r *AttendanceRepository) Insert(ctx context.Context, rec *database.AttendanceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO attendance_logs (
			id, employee_id, device_id, attendance_type, client_capture_id, captured_at,
			verification_method, verification_status, match_score, liveness_score,
			note, proof_image_path, latitude, longitude
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.EmployeeID,
		rec.DeviceID,
		string(rec.Type),
		rec.ClientCaptureID,
		rec.CapturedAt,
		string(rec.VerificationMethod),
		string(rec.VerificationStatus),
		rec.MatchScore,
		nullFloat(rec.LivenessScore),
		nullString(rec.Note),
		nullString(rec.ProofImagePath),
		nullFloat(rec.Latitude),
		nullFloat(rec.Longitude),
	).Scan(&rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return database.ErrDuplicateCapture
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// GetAttendance retrieves a record by ID, or (nil, nil) when absent.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, id uuid.UUID) (*database.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_logs WHERE id = $1`

	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return rec, nil
}

// GetByCaptureID retrieves the record for a client capture id, or (nil, nil).
func (r *AttendanceRepository) GetByCaptureID(ctx context.Context, captureID string) (*database.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_logs WHERE client_capture_id = $1`

	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, captureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance by capture id: %w", err)
	}
	return rec, nil
}

// GetByDeviceCapture retrieves the record for a device and capture id pair,
// or (nil, nil).
func (r *AttendanceRepository) GetByDeviceCapture(
	ctx context.Context, deviceID uuid.UUID, captureID string,
) (*database.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_logs WHERE device_id = $1 AND client_capture_id = $2`

	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, deviceID, captureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance by device capture: %w", err)
	}
	return rec, nil
}

// LatestForEmployeeBetween returns the employee's most recent record captured
// within [from, to), or (nil, nil).
func (r *AttendanceRepository) LatestForEmployeeBetween(
	ctx context.Context, employeeID uuid.UUID, from, to time.Time,
) (*database.AttendanceRecord, error) {
	query := `
		SELECT ` + attendanceColumns + `
		FROM attendance_logs
		WHERE employee_id = $1 AND captured_at >= $2 AND captured_at < $3
		ORDER BY captured_at DESC
		LIMIT 1
	`

	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, employeeID, from, to))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest attendance: %w", err)
	}
	return rec, nil
}

// ListForEmployee returns a page of the employee's records, newest first,
// plus the total count matching the filter.
func (r *AttendanceRepository) ListForEmployee(
	ctx context.Context, employeeID uuid.UUID, filter database.AttendanceFilter,
) ([]database.AttendanceRecord, int, error) {
	conditions := []string{"employee_id = $1"}
	args := []any{employeeID}

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, "captured_at >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, "captured_at < $"+strconv.Itoa(len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, "attendance_type = $"+strconv.Itoa(len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM attendance_logs WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = database.DefaultPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM attendance_logs WHERE %s ORDER BY captured_at DESC LIMIT $%d OFFSET $%d`,
		attendanceColumns, where, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attendance records: %w", err)
	}

	return records, total, nil
}

func scanAttendance(scanner interface{ Scan(...any) error }) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var recType, method, status string
	var livenessScore, latitude, longitude sql.NullFloat64
	var note, proofPath sql.NullString

	err := scanner.Scan(
		&rec.ID,
		&rec.EmployeeID,
		&rec.DeviceID,
		&recType,
		&rec.ClientCaptureID,
		&rec.CapturedAt,
		&method,
		&status,
		&rec.MatchScore,
		&livenessScore,
		&note,
		&proofPath,
		&latitude,
		&longitude,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = database.AttendanceType(recType)
	rec.VerificationMethod = database.VerificationMethod(method)
	rec.VerificationStatus = database.VerificationStatus(status)
	if livenessScore.Valid {
		rec.LivenessScore = &livenessScore.Float64
	}
	rec.Note = note.String
	rec.ProofImagePath = proofPath.String
	if latitude.Valid {
		rec.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		rec.Longitude = &longitude.Float64
	}
	return &rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

var _ database.AttendanceReader = (*AttendanceRepository)(nil)
var _ database.AttendanceWriter = (*AttendanceRepository)(nil)
