package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer:     "presensia-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		SigningKey: []byte("test-signing-key"),
	}
}

func TestSignAndVerifyAccess(t *testing.T) {
	cfg := testTokenConfig()
	employeeID := uuid.New()
	deviceID := uuid.New()
	now := time.Now()

	token, err := SignAccess(cfg, employeeID, deviceID, "device-abc", "EMP001", "Jane Roe", now)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := VerifyAccess(cfg, token)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}

	if gotEmployee := claims.EmployeeID(); gotEmployee != employeeID {
		t.Errorf("expected employee %s, got %s", employeeID, gotEmployee)
	}
	if claims.DeviceID != deviceID.String() {
		t.Errorf("expected device %s, got %s", deviceID, claims.DeviceID)
	}
	if claims.DeviceString != "device-abc" {
		t.Errorf("expected device string 'device-abc', got '%s'", claims.DeviceString)
	}
	if claims.EmployeeCode != "EMP001" {
		t.Errorf("expected code EMP001, got %s", claims.EmployeeCode)
	}
	if claims.TokenType != "access" {
		t.Errorf("expected type 'access', got '%s'", claims.TokenType)
	}
}

func TestVerifyAccess_WrongKey(t *testing.T) {
	cfg := testTokenConfig()
	token, err := SignAccess(cfg, uuid.New(), uuid.New(), "dev", "EMP001", "Jane Roe", time.Now())
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	other := cfg
	other.SigningKey = []byte("different-key")
	if _, err := VerifyAccess(other, token); err != ErrInvalidAccessToken {
		t.Errorf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestVerifyAccess_WrongIssuer(t *testing.T) {
	cfg := testTokenConfig()
	token, err := SignAccess(cfg, uuid.New(), uuid.New(), "dev", "EMP001", "Jane Roe", time.Now())
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := VerifyAccess(other, token); err != ErrInvalidAccessToken {
		t.Errorf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	cfg := testTokenConfig()
	// Signed an hour back with a 15 minute TTL
	token, err := SignAccess(cfg, uuid.New(), uuid.New(), "dev", "EMP001", "Jane Roe", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := VerifyAccess(cfg, token); err != ErrInvalidAccessToken {
		t.Errorf("expected ErrInvalidAccessToken for expired token, got %v", err)
	}
}

func TestVerifyAccess_Garbage(t *testing.T) {
	cfg := testTokenConfig()
	if _, err := VerifyAccess(cfg, "not.a.jwt"); err != ErrInvalidAccessToken {
		t.Errorf("expected ErrInvalidAccessToken, got %v", err)
	}
}
