// Package auth issues and verifies the mobile session credentials: short
// lived HS256 access tokens plus opaque refresh tokens stored as bcrypt
// hashes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig carries the signing parameters for access tokens.
type TokenConfig struct {
	Issuer     string        // e.g. "presensia"
	AccessTTL  time.Duration // e.g. 15 * time.Minute
	RefreshTTL time.Duration // e.g. 30 * 24h
	SigningKey []byte        // HS256 secret
}

// AccessClaims is the payload of a mobile access token. Subject is the
// employee UUID.
type AccessClaims struct {
	DeviceID     string `json:"deviceId"`       // device row UUID
	DeviceString string `json:"deviceIdString"` // external device identifier
	EmployeeCode string `json:"employeeCode"`
	FullName     string `json:"fullName"`
	TokenType    string `json:"type"` // always "access"
	jwt.RegisteredClaims
}

// ErrInvalidAccessToken covers every verification failure: bad signature,
// expired, wrong issuer, wrong token type.
var ErrInvalidAccessToken = errors.New("invalid access token")

// EmployeeID returns the subject parsed as a UUID.
func (c *AccessClaims) EmployeeID() uuid.UUID {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		// Subject is always written by SignAccess, a bad one cannot
		// match any employee
		return uuid.Nil
	}
	return id
}

// SignAccess creates a signed access token for the employee on the device.
func SignAccess(cfg TokenConfig, employeeID, deviceID uuid.UUID, deviceString, employeeCode, fullName string, now time.Time) (string, error) {
	claims := AccessClaims{
		DeviceID:     deviceID.String(),
		DeviceString: deviceString,
		EmployeeCode: employeeCode,
		FullName:     fullName,
		TokenType:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   employeeID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates an access token string.
func VerifyAccess(cfg TokenConfig, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return cfg.SigningKey, nil
		},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}
