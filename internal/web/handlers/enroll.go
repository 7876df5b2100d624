package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/blob"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/face"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/settings"
	"github.com/presensia/presensia/internal/web/middleware"
)

// maxEnrollPhotoBytes bounds the decoded size of an inline enrollment photo.
const maxEnrollPhotoBytes = 5 << 20

// EnrollHandler registers or replaces an employee's face template.
type EnrollHandler struct {
	templates database.TemplateWriter
	employees database.EmployeeReader
	settings  settings.Provider
	blobs     *blob.Store
}

// NewEnrollHandler creates an enrollment handler.
func NewEnrollHandler(templates database.TemplateWriter, employees database.EmployeeReader, provider settings.Provider, blobs *blob.Store) *EnrollHandler {
	return &EnrollHandler{
		templates: templates,
		employees: employees,
		settings:  provider,
		blobs:     blobs,
	}
}

type enrollRequest struct {
	EmployeeID    string           `json:"employeeId"`
	Embedding     embeddingPayload `json:"embedding"`
	LivenessScore *float64         `json:"livenessScore"`
	QualityScore  *float64         `json:"qualityScore"`
	// PhotoBase64 optionally carries a JPEG/PNG proof photo inline.
	PhotoBase64 string `json:"photoBase64"`
}

type enrollResponse struct {
	TemplateID      string `json:"templateId"`
	EmployeeID      string `json:"employeeId"`
	TemplateVersion int    `json:"templateVersion"`
	PhotoPath       string `json:"photoPath,omitempty"`
}

// Enroll handles POST /api/v1/mobile/face/enroll. The embedding goes through
// the same preprocessing as match queries so stored templates and probes stay
// comparable.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if claims := middleware.ClaimsFromContext(r.Context()); claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, errInvalidRequestBody)
		return
	}

	employeeID, err := uuid.Parse(req.EmployeeID)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid employeeId")
		return
	}
	if req.Embedding.Type != face.PayloadType {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "unsupported embedding type")
		return
	}

	ctx := r.Context()

	employee, err := h.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		slog.Error("load employee failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	if employee == nil {
		respondError(w, http.StatusNotFound, CodeNotFound, "employee not found")
		return
	}
	if !employee.IsActive {
		respondError(w, http.StatusForbidden, CodeEmployeeInactive, "employee account is inactive")
		return
	}

	if req.LivenessScore != nil {
		minLiveness, err := h.settings.Float(ctx, settings.KeyLivenessThreshold, ledger.DefaultLivenessThreshold)
		if err != nil {
			slog.Error("resolve liveness setting failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		}
		if *req.LivenessScore < minLiveness {
			respondErrorDetails(w, http.StatusBadRequest, CodeLivenessTooLow, "liveness score below threshold", map[string]float64{
				"livenessScore": *req.LivenessScore,
				"threshold":     minLiveness,
			})
			return
		}
	}

	prepared, err := face.Preprocess(req.Embedding.Vector)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid embedding payload")
		return
	}

	photoPath := ""
	if req.PhotoBase64 != "" {
		photoPath, err = h.savePhoto(req.PhotoBase64)
		if err != nil {
			if errors.Is(err, errPhotoTooLarge) || errors.Is(err, errPhotoNotBase64) {
				respondError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
				return
			}
			slog.Error("store enrollment photo failed", "error", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		}
	}

	tpl := &database.FaceTemplate{
		ID:              uuid.New(),
		EmployeeID:      employee.ID,
		Embedding:       prepared,
		TemplateVersion: 1,
		QualityScore:    req.QualityScore,
		IsActive:        true,
		PhotoPath:       photoPath,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.templates.UpsertTemplate(ctx, tpl); err != nil {
		slog.Error("upsert template failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	slog.Info("face template enrolled", "employee_code", employee.EmployeeCode)

	respondData(w, r, http.StatusCreated, enrollResponse{
		TemplateID:      tpl.ID.String(),
		EmployeeID:      employee.ID.String(),
		TemplateVersion: tpl.TemplateVersion,
		PhotoPath:       tpl.PhotoPath,
	})
}

var (
	errPhotoTooLarge  = errors.New("photo exceeds maximum size")
	errPhotoNotBase64 = errors.New("photo is not valid base64")
)

func (h *EnrollHandler) savePhoto(encoded string) (string, error) {
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxEnrollPhotoBytes {
		return "", errPhotoTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errPhotoNotBase64
	}
	return h.blobs.Save("enrollment", bytes.NewReader(raw))
}
