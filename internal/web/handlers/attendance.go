package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/device"
	"github.com/presensia/presensia/internal/face"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/web/middleware"
)

// AttendanceHandler records check-in/check-out events and serves history.
// Every recording request re-verifies the face against the enrolled template
// of the token's subject.
type AttendanceHandler struct {
	gate       *device.Gate
	matcher    *identity.Matcher
	ledger     *ledger.Ledger
	attendance database.AttendanceReader
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(gate *device.Gate, matcher *identity.Matcher, l *ledger.Ledger, attendance database.AttendanceReader) *AttendanceHandler {
	return &AttendanceHandler{
		gate:       gate,
		matcher:    matcher,
		ledger:     l,
		attendance: attendance,
	}
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type attendanceRequest struct {
	DeviceID        string           `json:"deviceId"`
	Platform        string           `json:"platform"`
	Embedding       embeddingPayload `json:"embedding"`
	ClientCaptureID string           `json:"clientCaptureId"`
	CapturedAt      time.Time        `json:"capturedAt"`
	LivenessScore   *float64         `json:"livenessScore"`
	Note            string           `json:"note"`
	ProofImagePath  string           `json:"proofImagePath"`
	Location        *locationPayload `json:"location"`
}

type attendanceRecordResponse struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	CapturedAt         string   `json:"capturedAt"`
	VerificationStatus string   `json:"verificationStatus"`
	MatchScore         float64  `json:"matchScore"`
	LivenessScore      *float64 `json:"livenessScore,omitempty"`
	Note               string   `json:"note,omitempty"`
	ProofImagePath     string   `json:"proofImagePath,omitempty"`
}

type workDurationResponse struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type recordResultResponse struct {
	Record       attendanceRecordResponse `json:"record"`
	Idempotent   bool                     `json:"idempotent"`
	WorkDuration *workDurationResponse    `json:"workDuration,omitempty"`
}

// CheckIn handles POST /api/v1/mobile/attendance/check-in.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, database.CheckIn)
}

// CheckOut handles POST /api/v1/mobile/attendance/check-out.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, database.CheckOut)
}

func (h *AttendanceHandler) record(w http.ResponseWriter, r *http.Request, eventType database.AttendanceType) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, errInvalidRequestBody)
		return
	}

	if req.Embedding.Type != face.PayloadType {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "unsupported embedding type")
		return
	}
	if req.ClientCaptureID == "" {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "clientCaptureId is required")
		return
	}
	if req.CapturedAt.IsZero() {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "capturedAt is required")
		return
	}

	// The device recording the event must be the device the session was
	// issued to.
	if req.DeviceID == "" || req.DeviceID != claims.DeviceString {
		respondError(w, http.StatusForbidden, CodeDeviceMismatch, "request device does not match session device")
		return
	}

	ctx := r.Context()

	dev, err := h.gate.Resolve(ctx, req.DeviceID, req.Platform)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotRegistered), errors.Is(err, device.ErrDeviceInactive):
			respondError(w, http.StatusForbidden, CodeDeviceNotRegistered, "device is not registered or inactive")
		default:
			slog.Error("device gate failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		}
		return
	}

	outcome, err := h.matcher.Match(ctx, req.Embedding.Vector)
	if err != nil {
		if errors.Is(err, face.ErrInvalidEmbedding) {
			respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid embedding payload")
			return
		}
		slog.Error("face match failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	if !outcome.Accepted {
		respondError(w, http.StatusUnauthorized, CodeFaceNotRecognized, "face verification failed")
		return
	}
	// The captured face must belong to the authenticated employee, not just
	// any enrolled one.
	if outcome.Employee.ID != claims.EmployeeID() {
		respondError(w, http.StatusUnauthorized, CodeFaceNotRecognized, "face does not match the authenticated employee")
		return
	}

	recReq := &ledger.Request{
		Employee:        outcome.Employee,
		Device:          dev,
		Type:            eventType,
		ClientCaptureID: req.ClientCaptureID,
		CapturedAt:      req.CapturedAt,
		MatchScore:      outcome.Score,
		Threshold:       outcome.Threshold,
		LivenessScore:   req.LivenessScore,
		Note:            req.Note,
		ProofImagePath:  req.ProofImagePath,
	}
	if req.Location != nil {
		recReq.Latitude = &req.Location.Latitude
		recReq.Longitude = &req.Location.Longitude
	}

	result, err := h.ledger.Record(ctx, recReq)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyCheckedIn):
			respondError(w, http.StatusConflict, CodeAlreadyCheckedIn, "already checked in today")
		case errors.Is(err, ledger.ErrNotCheckedIn):
			respondError(w, http.StatusConflict, CodeNotCheckedIn, "no open check-in today")
		case errors.Is(err, ledger.ErrCaptureStale):
			respondError(w, http.StatusBadRequest, CodeCaptureStale, "capture timestamp outside accepted window")
		default:
			slog.Error("record attendance failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		}
		return
	}

	slog.Info("attendance recorded",
		"employee_code", claims.EmployeeCode,
		"type", string(eventType),
		"status", string(result.Record.VerificationStatus),
		"idempotent", result.Idempotent,
	)

	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	}
	respondData(w, r, status, toRecordResult(result))
}

// History handles GET /api/v1/mobile/attendance/history.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	records, total, err := h.ledger.History(r.Context(), claims.EmployeeID(), filter)
	if err != nil {
		slog.Error("attendance history failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	items := make([]attendanceRecordResponse, 0, len(records))
	for i := range records {
		items = append(items, toRecordResponse(&records[i]))
	}
	respondPage(w, r, items, filter.Page, filter.Limit, total)
}

// Status handles GET /api/v1/mobile/attendance/status. It reports whether
// the employee has an open check-in today.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	open, latest, err := h.ledger.Status(r.Context(), claims.EmployeeID(), time.Now())
	if err != nil {
		slog.Error("attendance status failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	resp := map[string]any{"checkedIn": open}
	if latest != nil {
		rec := toRecordResponse(latest)
		resp["latest"] = rec
	}
	respondData(w, r, http.StatusOK, resp)
}

// Detail handles GET /api/v1/mobile/attendance/{id}. Records belonging to
// other employees are reported as not found.
func (h *AttendanceHandler) Detail(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid attendance id")
		return
	}

	record, err := h.attendance.GetAttendance(r.Context(), id)
	if err != nil {
		slog.Error("load attendance record failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	if record == nil || record.EmployeeID != claims.EmployeeID() {
		respondError(w, http.StatusNotFound, CodeNotFound, "attendance record not found")
		return
	}

	respondData(w, r, http.StatusOK, toRecordResponse(record))
}

func parseHistoryFilter(r *http.Request) (database.AttendanceFilter, error) {
	q := r.URL.Query()
	filter := database.AttendanceFilter{
		Page:  1,
		Limit: database.DefaultPageSize,
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errors.New("invalid page parameter")
		}
		filter.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, errors.New("invalid limit parameter")
		}
		if limit > database.MaxPageSize {
			limit = database.MaxPageSize
		}
		filter.Limit = limit
	}
	if v := q.Get("from"); v != "" {
		from, err := parseDateParam(v)
		if err != nil {
			return filter, errors.New("invalid from parameter")
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := parseDateParam(v)
		if err != nil {
			return filter, errors.New("invalid to parameter")
		}
		filter.To = to
	}
	switch t := q.Get("type"); t {
	case "":
	case string(database.CheckIn):
		filter.Type = database.CheckIn
	case string(database.CheckOut):
		filter.Type = database.CheckOut
	default:
		return filter, errors.New("invalid type parameter")
	}
	return filter, nil
}

// parseDateParam accepts RFC 3339 timestamps or plain dates.
func parseDateParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func toRecordResult(result *ledger.Result) recordResultResponse {
	resp := recordResultResponse{
		Record:     toRecordResponse(result.Record),
		Idempotent: result.Idempotent,
	}
	if result.WorkDuration > 0 {
		total := int(result.WorkDuration.Minutes())
		resp.WorkDuration = &workDurationResponse{
			Hours:   total / 60,
			Minutes: total % 60,
		}
	}
	return resp
}

func toRecordResponse(rec *database.AttendanceRecord) attendanceRecordResponse {
	return attendanceRecordResponse{
		ID:                 rec.ID.String(),
		Type:               string(rec.Type),
		CapturedAt:         rec.CapturedAt.UTC().Format(time.RFC3339),
		VerificationStatus: string(rec.VerificationStatus),
		MatchScore:         rec.MatchScore,
		LivenessScore:      rec.LivenessScore,
		Note:               rec.Note,
		ProofImagePath:     rec.ProofImagePath,
	}
}
