package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/presensia/presensia/internal/auth"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/device"
	"github.com/presensia/presensia/internal/face"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/settings"
)

// AuthHandler implements the mobile face-login, refresh and logout flows.
type AuthHandler struct {
	gate       *device.Gate
	matcher    *identity.Matcher
	issuer     *auth.Issuer
	attendance database.AttendanceReader
	settings   settings.Provider
	now        func() time.Time
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(gate *device.Gate, matcher *identity.Matcher, issuer *auth.Issuer, attendance database.AttendanceReader, provider settings.Provider) *AuthHandler {
	return &AuthHandler{
		gate:       gate,
		matcher:    matcher,
		issuer:     issuer,
		attendance: attendance,
		settings:   provider,
		now:        time.Now,
	}
}

type embeddingPayload struct {
	Type   string    `json:"type"`
	Vector []float32 `json:"vector"`
}

type faceLoginRequest struct {
	DeviceID        string           `json:"deviceId"`
	Platform        string           `json:"platform"`
	Embedding       embeddingPayload `json:"embedding"`
	ClientCaptureID string           `json:"clientCaptureId"`
	CapturedAt      time.Time        `json:"capturedAt"`
	LivenessScore   *float64         `json:"livenessScore"`
}

type employeeResponse struct {
	ID           string `json:"id"`
	EmployeeCode string `json:"employeeCode"`
	FullName     string `json:"fullName"`
	Department   string `json:"department,omitempty"`
}

type tokenResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	TokenType    string           `json:"tokenType"`
	ExpiresIn    int64            `json:"expiresIn"`
	Employee     employeeResponse `json:"employee"`
	Match        matchResponse    `json:"match"`
}

type matchResponse struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

// FaceLogin handles POST /api/v1/mobile/auth/face-login.
func (h *AuthHandler) FaceLogin(w http.ResponseWriter, r *http.Request) {
	var req faceLoginRequest
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

	ctx := r.Context()

	dev, err := h.gate.Resolve(ctx, req.DeviceID, req.Platform)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotRegistered):
			respondError(w, http.StatusForbidden, CodeDeviceNotRegistered, "device is not registered")
		case errors.Is(err, device.ErrDeviceInactive):
			respondError(w, http.StatusForbidden, CodeDeviceNotRegistered, "device has been deactivated")
		default:
			slog.Error("device gate failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		}
		return
	}

	if stale, err := h.captureStale(ctx, req.CapturedAt); err != nil {
		slog.Error("capture skew check failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	} else if stale {
		respondError(w, http.StatusBadRequest, CodeCaptureStale, "capture timestamp outside accepted window")
		return
	}

	// Anti-replay: a capture id already consumed by this device, whether it
	// produced an attendance row or only a session, cannot log in again.
	seen, err := h.attendance.GetByDeviceCapture(ctx, dev.ID, req.ClientCaptureID)
	if err != nil {
		slog.Error("replay lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	consumed := seen != nil
	if !consumed {
		consumed, err = h.issuer.CaptureConsumed(ctx, dev.ID, req.ClientCaptureID)
		if err != nil {
			slog.Error("replay lookup failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		}
	}
	if consumed {
		respondError(w, http.StatusConflict, CodeDuplicateCapture, "capture already used")
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
		h.respondRejected(w, outcome)
		return
	}

	pair, err := h.issuer.Issue(ctx, outcome.Employee, dev, req.ClientCaptureID)
	if err != nil {
		slog.Error("token issuance failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	slog.Info("face login",
		"employee_code", outcome.Employee.EmployeeCode,
		"device_id", sanitizeForLog(req.DeviceID),
		"score", outcome.Score,
	)

	respondData(w, r, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		Employee:     toEmployeeResponse(outcome.Employee),
		Match:        matchResponse{Score: outcome.Score, Threshold: outcome.Threshold},
	})
}

func (h *AuthHandler) respondRejected(w http.ResponseWriter, outcome *identity.Outcome) {
	switch outcome.Reason {
	case identity.RejectNoMatch:
		respondError(w, http.StatusUnauthorized, CodeFaceNoMatch, "face does not match any enrolled employee")
	case identity.RejectBelowThreshold:
		details := map[string]any{
			"bestScore": outcome.Score,
			"threshold": outcome.Threshold,
			"gap":       outcome.Gap(),
		}
		if outcome.Employee != nil {
			details["nearestMatch"] = map[string]string{
				"employeeCode": outcome.Employee.EmployeeCode,
				"fullName":     outcome.Employee.FullName,
			}
		}
		respondErrorDetails(w, http.StatusUnauthorized, CodeFaceBelowThreshold, "face similarity below threshold", details)
	case identity.RejectEmployeeInactive:
		respondError(w, http.StatusForbidden, CodeEmployeeInactive, "employee account is inactive")
	default:
		respondError(w, http.StatusUnauthorized, CodeFaceNoMatch, "face not recognized")
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/mobile/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, errInvalidRequestBody)
		return
	}

	pair, err := h.issuer.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			respondError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "refresh token is invalid or expired")
		case errors.Is(err, auth.ErrSubjectInactive):
			respondError(w, http.StatusForbidden, CodeEmployeeInactive, "employee or device no longer active")
		default:
			slog.Error("token refresh failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		}
		return
	}

	respondData(w, r, http.StatusOK, map[string]any{
		"accessToken": pair.AccessToken,
		"tokenType":   "Bearer",
		"expiresIn":   pair.ExpiresIn,
	})
}

// Logout handles POST /api/v1/mobile/auth/logout. Always succeeds for
// syntactically valid requests.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.issuer.Revoke(r.Context(), req.RefreshToken); err != nil {
		slog.Error("logout failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	respondData(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

// captureStale checks the capture timestamp against the configured skew
// window, in either direction.
func (h *AuthHandler) captureStale(ctx context.Context, capturedAt time.Time) (bool, error) {
	maxSkew, err := h.settings.Int(ctx, settings.KeyCaptureMaxSkew, ledger.DefaultCaptureMaxSkewSeconds)
	if err != nil {
		return false, err
	}
	skew := h.now().Sub(capturedAt)
	if skew < 0 {
		skew = -skew
	}
	return skew > time.Duration(maxSkew)*time.Second, nil
}

func toEmployeeResponse(emp *database.Employee) employeeResponse {
	return employeeResponse{
		ID:           emp.ID.String(),
		EmployeeCode: emp.EmployeeCode,
		FullName:     emp.FullName,
		Department:   emp.Department,
	}
}
