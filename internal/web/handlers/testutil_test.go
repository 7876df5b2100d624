package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/auth"
	"github.com/presensia/presensia/internal/blob"
	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/database/mock"
	"github.com/presensia/presensia/internal/device"
	"github.com/presensia/presensia/internal/identity"
	"github.com/presensia/presensia/internal/ledger"
	"github.com/presensia/presensia/internal/settings"
	"github.com/presensia/presensia/internal/web/middleware"
)

// fixture wires every handler over in-memory stores.
type fixture struct {
	templates  *mock.MockTemplateStore
	employees  *mock.MockEmployeeStore
	devices    *mock.MockDeviceStore
	sessions   *mock.MockSessionStore
	attendance *mock.MockAttendanceStore
	settings   *mock.MockSettingsStore
	blobs      *blob.Store
	tokenCfg   auth.TokenConfig

	auth        *AuthHandler
	attendanceH *AttendanceHandler
	enroll      *EnrollHandler
	employeesH  *EmployeeHandler
	uploads     *UploadHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		templates:  mock.NewMockTemplateStore(),
		employees:  mock.NewMockEmployeeStore(),
		devices:    mock.NewMockDeviceStore(),
		sessions:   mock.NewMockSessionStore(),
		attendance: mock.NewMockAttendanceStore(),
		settings:   mock.NewMockSettingsStore(),
		tokenCfg: auth.TokenConfig{
			Issuer:     "presensia-test",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			SigningKey: []byte("test-signing-key"),
		},
	}

	blobs, err := blob.NewStore(t.TempDir(), []byte("blob-secret"), 10*time.Minute, 64)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	f.blobs = blobs

	provider := settings.NewProvider(f.settings)
	gate := device.NewGate(f.devices, provider)
	matcher := identity.NewMatcher(f.templates, f.employees, provider)
	issuer := auth.NewIssuer(f.tokenCfg, f.sessions, f.employees, f.devices)
	l := ledger.New(f.attendance, f.attendance, provider, time.UTC)

	f.auth = NewAuthHandler(gate, matcher, issuer, f.attendance, provider)
	f.attendanceH = NewAttendanceHandler(gate, matcher, l, f.attendance)
	f.enroll = NewEnrollHandler(f.templates, f.employees, provider, blobs)
	f.employeesH = NewEmployeeHandler(f.employees, f.templates)
	f.uploads = NewUploadHandler(blobs, f.attendance)
	return f
}

// addEmployee seeds an active employee and returns it.
func (f *fixture) addEmployee(code, name string) database.Employee {
	emp := database.Employee{
		ID:           uuid.New(),
		EmployeeCode: code,
		FullName:     name,
		IsActive:     true,
	}
	f.employees.AddEmployee(emp)
	return emp
}

// addDevice seeds an active device and returns it.
func (f *fixture) addDevice(deviceID string) database.Device {
	dev := database.Device{
		ID:       uuid.New(),
		DeviceID: deviceID,
		Platform: "android",
		IsActive: true,
	}
	f.devices.AddDevice(dev)
	return dev
}

// enrollTemplate stores a unit embedding template for the employee.
func (f *fixture) enrollTemplate(employeeID uuid.UUID, axis int) {
	f.templates.AddTemplate(database.FaceTemplate{
		ID:              uuid.New(),
		EmployeeID:      employeeID,
		Embedding:       unitEmbedding(axis),
		TemplateVersion: 1,
		IsActive:        true,
	})
}

// claimsFor builds verified access claims for an employee+device pair.
func (f *fixture) claimsFor(emp database.Employee, dev database.Device) *auth.AccessClaims {
	now := time.Now()
	return &auth.AccessClaims{
		DeviceID:     dev.ID.String(),
		DeviceString: dev.DeviceID,
		EmployeeCode: emp.EmployeeCode,
		FullName:     emp.FullName,
		TokenType:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   emp.ID.String(),
			Issuer:    f.tokenCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(f.tokenCfg.AccessTTL)),
		},
	}
}

// unitEmbedding returns a 128-dim basis vector along the given axis.
func unitEmbedding(axis int) []float32 {
	v := make([]float32, 128)
	v[axis%128] = 1
	return v
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withClaims injects verified access claims into the request context.
func withClaims(r *http.Request, claims *auth.AccessClaims) *http.Request {
	return r.WithContext(middleware.SetClaimsInContext(r.Context(), claims))
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// envelope is the generic response envelope for tests.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
	Meta  *struct {
		RequestID  string      `json:"requestId"`
		Pagination *pagination `json:"pagination"`
	} `json:"meta"`
}

// parseEnvelope parses the response envelope.
func parseEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse response envelope: %v\nBody: %s", err, recorder.Body.String())
	}
	return env
}

// parseData parses the data field of a success envelope into target.
func parseData(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	env := parseEnvelope(t, recorder)
	if env.Error != nil {
		t.Fatalf("expected success envelope, got error %s: %s", env.Error.Code, env.Error.Message)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("failed to parse data: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertErrorCode checks the machine-readable code of an error envelope.
func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	env := parseEnvelope(t, recorder)
	if env.Error == nil {
		t.Fatalf("expected error envelope, got: %s", recorder.Body.String())
	}
	if env.Error.Code != expected {
		t.Errorf("expected error code %s, got %s (%s)", expected, env.Error.Code, env.Error.Message)
	}
}
