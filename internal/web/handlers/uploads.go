package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/blob"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/web/middleware"
)

// maxUploadBytes bounds the body size of a direct blob upload.
const maxUploadBytes = 10 << 20

// Object kinds accepted by the upload flow.
const (
	kindAttendanceProof = "attendance-proof"
	kindEnrollment      = "enrollment"
)

// UploadHandler issues signed blob URLs and serves the signed endpoints.
type UploadHandler struct {
	blobs      *blob.Store
	attendance database.AttendanceReader
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(blobs *blob.Store, attendance database.AttendanceReader) *UploadHandler {
	return &UploadHandler{
		blobs:      blobs,
		attendance: attendance,
	}
}

type uploadURLRequest struct {
	Kind string `json:"kind"`
}

type signedURLResponse struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// CreateUploadURL handles POST /api/v1/mobile/upload-url. It reserves an
// object path and returns a signed, time limited URL the client can PUT the
// image to.
func (h *UploadHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	if claims := middleware.ClaimsFromContext(r.Context()); claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	var req uploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, errInvalidRequestBody)
		return
	}
	if req.Kind == "" {
		req.Kind = kindAttendanceProof
	}
	if req.Kind != kindAttendanceProof && req.Kind != kindEnrollment {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "unsupported upload kind")
		return
	}

	rel := h.blobs.NewObjectPath(req.Kind)
	expires, sig := h.blobs.SignPath(rel)

	respondData(w, r, http.StatusCreated, signedURLResponse{
		Path:      rel,
		URL:       signedBlobURL(rel, expires, sig),
		ExpiresAt: time.Unix(expires, 0).UTC().Format(time.RFC3339),
	})
}

// Upload handles PUT /api/v1/blobs/*. The URL must carry a valid signature
// issued by CreateUploadURL.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	rel, ok := h.verifySignedRequest(w, r)
	if !ok {
		return
	}

	body := io.LimitReader(r.Body, maxUploadBytes+1)
	if err := h.blobs.SaveAt(rel, body); err != nil {
		slog.Error("blob upload failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	respondData(w, r, http.StatusCreated, map[string]string{"path": rel})
}

// Download handles GET /api/v1/blobs/*. Pass thumb=1 for the scaled-down
// variant.
func (h *UploadHandler) Download(w http.ResponseWriter, r *http.Request) {
	rel, ok := h.verifySignedRequest(w, r)
	if !ok {
		return
	}

	var (
		reader io.ReadCloser
		err    error
	)
	if r.URL.Query().Get("thumb") == "1" {
		reader, err = h.blobs.Thumbnail(rel)
	} else {
		reader, err = h.blobs.Open(rel)
	}
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			respondError(w, http.StatusNotFound, CodeNotFound, "object not found")
			return
		}
		slog.Error("blob download failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	io.Copy(w, reader)
}

// ProofURL handles GET /api/v1/attendance/{id}/proof-url. The record must
// belong to the authenticated employee.
func (h *UploadHandler) ProofURL(w http.ResponseWriter, r *http.Request) {
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
	if record.ProofImagePath == "" {
		respondError(w, http.StatusNotFound, CodeNotFound, "record has no proof image")
		return
	}

	expires, sig := h.blobs.SignPath(record.ProofImagePath)
	respondData(w, r, http.StatusOK, signedURLResponse{
		Path:      record.ProofImagePath,
		URL:       signedBlobURL(record.ProofImagePath, expires, sig),
		ExpiresAt: time.Unix(expires, 0).UTC().Format(time.RFC3339),
	})
}

// verifySignedRequest extracts the object path and checks the signature
// query parameters. It writes the error response itself on failure.
func (h *UploadHandler) verifySignedRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	rel := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	if rel == "" {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "missing object path")
		return "", false
	}

	q := r.URL.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid expires parameter")
		return "", false
	}
	if err := h.blobs.VerifyPath(rel, expires, q.Get("sig")); err != nil {
		respondError(w, http.StatusForbidden, CodeUnauthorized, "invalid or expired signature")
		return "", false
	}
	return rel, true
}

func signedBlobURL(rel string, expires int64, sig string) string {
	return fmt.Sprintf("/api/v1/blobs/%s?expires=%d&sig=%s", rel, expires, sig)
}
