// Package handlers implements the HTTP API. Responses use a uniform
// envelope: successes carry {"data": ..., "meta": {...}}, failures carry
// {"error": {"code", "message", "details"}}.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Machine-readable error codes returned to the mobile client.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL"
	CodeDeviceNotRegistered = "DEVICE_NOT_REGISTERED"
	CodeDeviceMismatch      = "DEVICE_MISMATCH"
	CodeFaceNoMatch         = "FACE_NO_MATCH"
	CodeFaceBelowThreshold  = "FACE_BELOW_THRESHOLD"
	CodeFaceNotRecognized   = "FACE_NOT_RECOGNIZED"
	CodeEmployeeInactive    = "EMPLOYEE_INACTIVE"
	CodeCaptureStale        = "CAPTURE_STALE"
	CodeDuplicateCapture    = "DUPLICATE_CAPTURE"
	CodeAlreadyCheckedIn    = "ALREADY_CHECKED_IN"
	CodeNotCheckedIn        = "NOT_CHECKED_IN"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeLivenessTooLow      = "LIVENESS_TOO_LOW"
)

// errInvalidRequestBody is a shared message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID  string      `json:"requestId,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a raw JSON response.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondData wraps data in the success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondJSON(w, status, map[string]any{
		"data": data,
		"meta": meta{RequestID: chiMiddleware.GetReqID(r.Context())},
	})
}

// respondPage wraps a result page in the success envelope.
func respondPage(w http.ResponseWriter, r *http.Request, data any, page, limit, total int) {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": meta{
			RequestID: chiMiddleware.GetReqID(r.Context()),
			Pagination: &pagination{
				Page:       page,
				Limit:      limit,
				Total:      total,
				TotalPages: totalPages,
			},
		},
	})
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, nil)
}

// respondErrorDetails sends an error envelope with structured details.
func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	respondJSON(w, status, map[string]any{
		"error": apiError{Code: code, Message: message, Details: details},
	})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
