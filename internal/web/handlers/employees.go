package handlers

import (
	"log/slog"
	"net/http"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/web/middleware"
)

// EmployeeHandler serves the employee picker and token introspection.
type EmployeeHandler struct {
	employees database.EmployeeReader
	templates database.TemplateReader
}

// NewEmployeeHandler creates an employee handler.
func NewEmployeeHandler(employees database.EmployeeReader, templates database.TemplateReader) *EmployeeHandler {
	return &EmployeeHandler{
		employees: employees,
		templates: templates,
	}
}

type employeeListItem struct {
	ID           string `json:"id"`
	EmployeeCode string `json:"employeeCode"`
	FullName     string `json:"fullName"`
	Department   string `json:"department,omitempty"`
	Enrolled     bool   `json:"enrolled"`
}

// List handles GET /api/v1/mobile/employees. The name filter ignores case
// and diacritics so "jiri" finds "Jiří".
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	if claims := middleware.ClaimsFromContext(r.Context()); claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	ctx := r.Context()
	query := r.URL.Query().Get("name")

	employees, err := h.employees.ListActiveEmployees(ctx)
	if err != nil {
		slog.Error("list employees failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	enrolled := make(map[string]bool)
	templates, err := h.templates.ListActiveTemplates(ctx)
	if err != nil {
		slog.Error("list templates failed", "error", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}
	for i := range templates {
		enrolled[templates[i].EmployeeID.String()] = true
	}

	items := make([]employeeListItem, 0, len(employees))
	for i := range employees {
		emp := &employees[i]
		if !identity.MatchesName(emp.FullName, query) {
			continue
		}
		items = append(items, employeeListItem{
			ID:           emp.ID.String(),
			EmployeeCode: emp.EmployeeCode,
			FullName:     emp.FullName,
			Department:   emp.Department,
			Enrolled:     enrolled[emp.ID.String()],
		})
	}
	respondData(w, r, http.StatusOK, items)
}

// Me handles GET /api/v1/mobile/me. It returns the employee behind the
// current access token, read fresh from the store.
func (h *EmployeeHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid access token")
		return
	}

	employee, err := h.employees.GetEmployee(r.Context(), claims.EmployeeID())
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

	respondData(w, r, http.StatusOK, map[string]any{
		"employee": toEmployeeResponse(employee),
		"device": map[string]string{
			"id":       claims.DeviceID,
			"deviceId": claims.DeviceString,
		},
	})
}
