package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/face"
	"github.com/presensia/presensia/internal/settings"
)

func enrollBody(employeeID uuid.UUID, vector []float32) map[string]any {
	return map[string]any{
		"employeeId": employeeID.String(),
		"embedding":  map[string]any{"type": face.PayloadType, "vector": vector},
	}
}

func TestEnroll_Success(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(emp.ID, unitEmbedding(0))),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 201)
	var resp enrollResponse
	parseData(t, rec, &resp)
	if resp.TemplateID == "" {
		t.Error("expected a template id")
	}

	stored, err := f.templates.GetTemplateByEmployee(context.Background(), emp.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected stored template, got %v, %v", stored, err)
	}
	if !stored.IsActive {
		t.Error("stored template must be active")
	}
}

func TestEnroll_NormalizesEmbedding(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	vector := make([]float32, 128)
	vector[0] = 2 // unnormalized

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(emp.ID, vector)),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)
	assertStatusCode(t, rec, 201)

	stored, _ := f.templates.GetTemplateByEmployee(context.Background(), emp.ID)
	if stored == nil {
		t.Fatal("expected stored template")
	}
	if norm := face.L2Norm(stored.Embedding); norm < 0.99 || norm > 1.01 {
		t.Errorf("stored embedding must be normalized, norm=%f", norm)
	}
}

func TestEnroll_ReplacesExistingTemplate(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")
	f.enrollTemplate(emp.ID, 0)

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(emp.ID, unitEmbedding(5))),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)
	assertStatusCode(t, rec, 201)

	stored, _ := f.templates.GetTemplateByEmployee(context.Background(), emp.ID)
	if stored == nil {
		t.Fatal("expected stored template")
	}
	if stored.Embedding[5] != 1 {
		t.Error("expected the new embedding to replace the old one")
	}
}

func TestEnroll_LivenessTooLow(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	body := enrollBody(emp.ID, unitEmbedding(0))
	body["livenessScore"] = 0.5

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", body),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 400)
	assertErrorCode(t, rec, CodeLivenessTooLow)
}

func TestEnroll_LivenessThresholdFromSettings(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")
	f.settings.SetValue(settings.KeyLivenessThreshold, "0.3")

	body := enrollBody(emp.ID, unitEmbedding(0))
	body["livenessScore"] = 0.5

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", body),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 201)
}

func TestEnroll_UnknownEmployee(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(uuid.New(), unitEmbedding(0))),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 404)
	assertErrorCode(t, rec, CodeNotFound)
}

func TestEnroll_InactiveEmployee(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := database.Employee{
		ID:           uuid.New(),
		EmployeeCode: "EMP001",
		FullName:     "Jana Nováková",
		IsActive:     false,
	}
	f.employees.AddEmployee(emp)

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(emp.ID, unitEmbedding(0))),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 403)
	assertErrorCode(t, rec, CodeEmployeeInactive)
}

func TestEnroll_InvalidEmbedding(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", enrollBody(emp.ID, []float32{1, 2, 3})),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 400)
	assertErrorCode(t, rec, CodeBadRequest)
}

func TestEnroll_StoresPhoto(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	photo := []byte("fake image bytes")
	body := enrollBody(emp.ID, unitEmbedding(0))
	body["photoBase64"] = base64.StdEncoding.EncodeToString(photo)

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", body),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)
	assertStatusCode(t, rec, 201)

	var resp enrollResponse
	parseData(t, rec, &resp)
	if resp.PhotoPath == "" {
		t.Fatal("expected a stored photo path")
	}

	reader, err := f.blobs.Open(resp.PhotoPath)
	if err != nil {
		t.Fatalf("failed to open stored photo: %v", err)
	}
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	if string(got) != string(photo) {
		t.Error("stored photo does not match the uploaded bytes")
	}
}

func TestEnroll_RejectsInvalidBase64Photo(t *testing.T) {
	f := newFixture(t)
	operator := f.addEmployee("EMP000", "Admin Admin")
	dev := f.addDevice("device-abc")
	emp := f.addEmployee("EMP001", "Jana Nováková")

	body := enrollBody(emp.ID, unitEmbedding(0))
	body["photoBase64"] = "!!! not base64 !!!"

	req := withClaims(
		jsonRequest(t, "POST", "/api/v1/mobile/face/enroll", body),
		f.claimsFor(operator, dev),
	)
	rec := httptest.NewRecorder()
	f.enroll.Enroll(rec, req)

	assertStatusCode(t, rec, 400)
	assertErrorCode(t, rec, CodeBadRequest)
}
