package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/presensia/presensia/internal/database"
)

// ErrInvalidRefreshToken is returned when a presented refresh token matches
// no live session.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// ErrSubjectInactive is returned on refresh when the session's employee or
// device has been deactivated. The session is revoked as a side effect.
var ErrSubjectInactive = errors.New("employee or device no longer active")

// TokenPair is the credential set handed to the mobile client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string // empty on refresh, the lineage token stays valid
	ExpiresIn    int64  // access token lifetime in seconds
	SessionID    uuid.UUID
}

// Issuer mints access tokens and manages refresh sessions. Refresh tokens
// are opaque UUIDs; only their bcrypt hash is persisted.
type Issuer struct {
	cfg       TokenConfig
	sessions  database.SessionStore
	employees database.EmployeeReader
	devices   database.DeviceStore
	now       func() time.Time
}

// NewIssuer creates a token issuer over the given stores.
func NewIssuer(cfg TokenConfig, sessions database.SessionStore, employees database.EmployeeReader, devices database.DeviceStore) *Issuer {
	return &Issuer{
		cfg:       cfg,
		sessions:  sessions,
		employees: employees,
		devices:   devices,
		now:       time.Now,
	}
}

// Issue creates a new session for the employee on the device and returns the
// access token plus the one-time-visible refresh token. The capture id that
// authenticated the login is stored on the session so the same capture
// cannot mint a second one.
func (i *Issuer) Issue(ctx context.Context, employee *database.Employee, device *database.Device, captureID string) (*TokenPair, error) {
	now := i.now().UTC()

	refreshToken := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(refreshToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}

	session := &database.MobileSession{
		ID:               uuid.New(),
		EmployeeID:       employee.ID,
		DeviceID:         device.ID,
		RefreshTokenHash: string(hash),
		ClientCaptureID:  captureID,
		ExpiresAt:        now.Add(i.cfg.RefreshTTL),
	}
	if err := i.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, err := SignAccess(i.cfg, employee.ID, device.ID, device.DeviceID, employee.EmployeeCode, employee.FullName, now)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(i.cfg.AccessTTL.Seconds()),
		SessionID:    session.ID,
	}, nil
}

// CaptureConsumed reports whether a login on this device already spent the
// capture id.
func (i *Issuer) CaptureConsumed(ctx context.Context, deviceID uuid.UUID, captureID string) (bool, error) {
	session, err := i.sessions.GetSessionByDeviceCapture(ctx, deviceID, captureID)
	if err != nil {
		return false, fmt.Errorf("session capture lookup: %w", err)
	}
	return session != nil, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated. If the session's employee or device has been
// deactivated the session is revoked and ErrSubjectInactive returned.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := i.now().UTC()

	session, err := i.findSession(ctx, refreshToken, now)
	if err != nil {
		return nil, err
	}

	employee, err := i.employees.GetEmployee(ctx, session.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}

	var device *database.Device
	if employee != nil {
		device, err = i.devices.GetDevice(ctx, session.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("load device: %w", err)
		}
	}

	if employee == nil || !employee.IsActive || device == nil || !device.IsActive {
		if err := i.sessions.RevokeSession(ctx, session.ID, now); err != nil {
			return nil, fmt.Errorf("revoke session: %w", err)
		}
		return nil, ErrSubjectInactive
	}

	access, err := SignAccess(i.cfg, employee.ID, device.ID, device.DeviceID, employee.EmployeeCode, employee.FullName, now)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken: access,
		ExpiresIn:   int64(i.cfg.AccessTTL.Seconds()),
		SessionID:   session.ID,
	}, nil
}

// Revoke invalidates the session owning the refresh token. Unknown and
// already revoked tokens are a no-op so logout stays idempotent.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	now := i.now().UTC()

	sessions, err := i.sessions.ListUnrevokedSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for idx := range sessions {
		s := &sessions[idx]
		if bcrypt.CompareHashAndPassword([]byte(s.RefreshTokenHash), []byte(refreshToken)) == nil {
			if err := i.sessions.RevokeSession(ctx, s.ID, now); err != nil {
				return fmt.Errorf("revoke session: %w", err)
			}
			return nil
		}
	}
	return nil
}

// findSession scans live sessions for one whose hash matches the token.
func (i *Issuer) findSession(ctx context.Context, refreshToken string, now time.Time) (*database.MobileSession, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	sessions, err := i.sessions.ListLiveSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}

	for idx := range sessions {
		s := &sessions[idx]
		if bcrypt.CompareHashAndPassword([]byte(s.RefreshTokenHash), []byte(refreshToken)) == nil {
			return s, nil
		}
	}
	return nil, ErrInvalidRefreshToken
}
