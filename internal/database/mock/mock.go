// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presensia/presensia/internal/database"
	"github.com/presensia/presensia/internal/face"
)

// MockTemplateStore is a mock implementation of database.TemplateReader and
// database.TemplateWriter.
type MockTemplateStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*database.FaceTemplate // keyed by employee ID

	// Error injection
	RankError   error
	GetError    error
	ListError   error
	UpsertError error
}

// NewMockTemplateStore creates a new mock template store.
func NewMockTemplateStore() *MockTemplateStore {
	return &MockTemplateStore{
		templates: make(map[uuid.UUID]*database.FaceTemplate),
	}
}

// AddTemplate adds a template to the mock store.
func (m *MockTemplateStore) AddTemplate(tpl database.FaceTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	m.templates[tpl.EmployeeID] = &tpl
}

// RankBySimilarity ranks active templates by exact cosine similarity.
func (m *MockTemplateStore) RankBySimilarity(ctx context.Context, query []float32, topK int) ([]database.TemplateCandidate, error) {
	if m.RankError != nil {
		return nil, m.RankError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []database.TemplateCandidate
	for _, tpl := range m.templates {
		if !tpl.IsActive {
			continue
		}
		candidates = append(candidates, database.TemplateCandidate{
			TemplateID: tpl.ID,
			EmployeeID: tpl.EmployeeID,
			Score:      face.CosineSimilarity(query, tpl.Embedding),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// GetTemplateByEmployee retrieves a template by employee ID.
func (m *MockTemplateStore) GetTemplateByEmployee(ctx context.Context, employeeID uuid.UUID) (*database.FaceTemplate, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templates[employeeID], nil
}

// ListActiveTemplates returns all active templates.
func (m *MockTemplateStore) ListActiveTemplates(ctx context.Context) ([]database.FaceTemplate, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var templates []database.FaceTemplate
	for _, tpl := range m.templates {
		if tpl.IsActive {
			templates = append(templates, *tpl)
		}
	}
	return templates, nil
}

// UpsertTemplate inserts or replaces the employee's template.
func (m *MockTemplateStore) UpsertTemplate(ctx context.Context, tpl *database.FaceTemplate) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	now := time.Now()
	if existing, ok := m.templates[tpl.EmployeeID]; ok {
		tpl.ID = existing.ID
		tpl.CreatedAt = existing.CreatedAt
	} else {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	cp := *tpl
	m.templates[tpl.EmployeeID] = &cp
	return nil
}

// MockEmployeeStore is a mock implementation of database.EmployeeReader.
type MockEmployeeStore struct {
	mu        sync.RWMutex
	employees map[uuid.UUID]*database.Employee

	// Error injection
	GetError  error
	ListError error
}

// NewMockEmployeeStore creates a new mock employee store.
func NewMockEmployeeStore() *MockEmployeeStore {
	return &MockEmployeeStore{
		employees: make(map[uuid.UUID]*database.Employee),
	}
}

// AddEmployee adds an employee to the mock store.
func (m *MockEmployeeStore) AddEmployee(emp database.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emp.ID == uuid.Nil {
		emp.ID = uuid.New()
	}
	m.employees[emp.ID] = &emp
}

// GetEmployee retrieves an employee by ID.
func (m *MockEmployeeStore) GetEmployee(ctx context.Context, id uuid.UUID) (*database.Employee, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.employees[id], nil
}

// GetEmployeeByCode retrieves an employee by code.
func (m *MockEmployeeStore) GetEmployeeByCode(ctx context.Context, code string) (*database.Employee, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, emp := range m.employees {
		if emp.EmployeeCode == code {
			return emp, nil
		}
	}
	return nil, nil
}

// ListActiveEmployees returns all active employees.
func (m *MockEmployeeStore) ListActiveEmployees(ctx context.Context) ([]database.Employee, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var employees []database.Employee
	for _, emp := range m.employees {
		if emp.IsActive {
			employees = append(employees, *emp)
		}
	}
	sort.Slice(employees, func(i, j int) bool {
		return employees[i].FullName < employees[j].FullName
	})
	return employees, nil
}

// MockDeviceStore is a mock implementation of database.DeviceStore.
type MockDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*database.Device // keyed by external device id

	// Error injection
	GetError    error
	CreateError error
}

// NewMockDeviceStore creates a new mock device store.
func NewMockDeviceStore() *MockDeviceStore {
	return &MockDeviceStore{
		devices: make(map[string]*database.Device),
	}
}

// AddDevice adds a device to the mock store.
func (m *MockDeviceStore) AddDevice(dev database.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}
	m.devices[dev.DeviceID] = &dev
}

// GetDevice retrieves a device by row ID.
func (m *MockDeviceStore) GetDevice(ctx context.Context, id uuid.UUID) (*database.Device, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, dev := range m.devices {
		if dev.ID == id {
			return dev, nil
		}
	}
	return nil, nil
}

// GetDeviceByDeviceID retrieves a device by its external identifier.
func (m *MockDeviceStore) GetDeviceByDeviceID(ctx context.Context, deviceID string) (*database.Device, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[deviceID], nil
}

// CreateDevice registers a new device, collapsing onto an existing row.
func (m *MockDeviceStore) CreateDevice(ctx context.Context, dev *database.Device) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.devices[dev.DeviceID]; ok {
		*dev = *existing
		return nil
	}
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}
	dev.CreatedAt = time.Now()
	cp := *dev
	m.devices[dev.DeviceID] = &cp
	return nil
}

// MockSessionStore is a mock implementation of database.SessionStore.
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*database.MobileSession

	// Error injection
	CreateError error
	GetError    error
	ListError   error
	RevokeError error
}

// NewMockSessionStore creates a new mock session store.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[uuid.UUID]*database.MobileSession),
	}
}

// CreateSession inserts a new session.
func (m *MockSessionStore) CreateSession(ctx context.Context, session *database.MobileSession) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

// GetSession retrieves a session by ID for test assertions.
func (m *MockSessionStore) GetSession(id uuid.UUID) *database.MobileSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// GetSessionByDeviceCapture returns the session minted for a device and
// capture id pair, or nil.
func (m *MockSessionStore) GetSessionByDeviceCapture(ctx context.Context, deviceID uuid.UUID, captureID string) (*database.MobileSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.ClientCaptureID != "" && s.ClientCaptureID == captureID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

// ListLiveSessions returns sessions that are neither revoked nor expired.
func (m *MockSessionStore) ListLiveSessions(ctx context.Context, now time.Time) ([]database.MobileSession, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []database.MobileSession
	for _, s := range m.sessions {
		if s.RevokedAt == nil && s.ExpiresAt.After(now) {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

// ListUnrevokedSessions returns sessions with no revocation timestamp.
func (m *MockSessionStore) ListUnrevokedSessions(ctx context.Context) ([]database.MobileSession, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []database.MobileSession
	for _, s := range m.sessions {
		if s.RevokedAt == nil {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

// RevokeSession marks the session revoked.
func (m *MockSessionStore) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.RevokeError != nil {
		return m.RevokeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
	}
	return nil
}

// MockAttendanceStore is a mock implementation of database.AttendanceReader
// and database.AttendanceWriter.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*database.AttendanceRecord

	// Error injection
	InsertError error
	GetError    error
	ListError   error
}

// NewMockAttendanceStore creates a new mock attendance store.
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[uuid.UUID]*database.AttendanceRecord),
	}
}

// AddRecord adds a record to the mock store.
func (m *MockAttendanceStore) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records[rec.ID] = &rec
}

// Insert persists a record, enforcing the client_capture_id constraint.
func (m *MockAttendanceStore) Insert(ctx context.Context, rec *database.AttendanceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.ClientCaptureID == rec.ClientCaptureID {
			return database.ErrDuplicateCapture
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

// GetAttendance retrieves a record by ID.
func (m *MockAttendanceStore) GetAttendance(ctx context.Context, id uuid.UUID) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[id], nil
}

// GetByCaptureID retrieves a record by client capture id.
func (m *MockAttendanceStore) GetByCaptureID(ctx context.Context, captureID string) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.ClientCaptureID == captureID {
			return rec, nil
		}
	}
	return nil, nil
}

// GetByDeviceCapture retrieves a record by device and capture id.
func (m *MockAttendanceStore) GetByDeviceCapture(ctx context.Context, deviceID uuid.UUID, captureID string) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.DeviceID == deviceID && rec.ClientCaptureID == captureID {
			return rec, nil
		}
	}
	return nil, nil
}

// LatestForEmployeeBetween returns the employee's most recent record in the
// window.
func (m *MockAttendanceStore) LatestForEmployeeBetween(
	ctx context.Context, employeeID uuid.UUID, from, to time.Time,
) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *database.AttendanceRecord
	for _, rec := range m.records {
		if rec.EmployeeID != employeeID {
			continue
		}
		if rec.CapturedAt.Before(from) || !rec.CapturedAt.Before(to) {
			continue
		}
		if latest == nil || rec.CapturedAt.After(latest.CapturedAt) {
			latest = rec
		}
	}
	return latest, nil
}

// ListForEmployee returns a page of the employee's records, newest first.
func (m *MockAttendanceStore) ListForEmployee(
	ctx context.Context, employeeID uuid.UUID, filter database.AttendanceFilter,
) ([]database.AttendanceRecord, int, error) {
	if m.ListError != nil {
		return nil, 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []database.AttendanceRecord
	for _, rec := range m.records {
		if rec.EmployeeID != employeeID {
			continue
		}
		if !filter.From.IsZero() && rec.CapturedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !rec.CapturedAt.Before(filter.To) {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CapturedAt.After(all[j].CapturedAt)
	})

	total := len(all)
	limit := filter.Limit
	if limit <= 0 {
		limit = database.DefaultPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// MockSettingsStore is a mock implementation of database.SettingsStore.
type MockSettingsStore struct {
	mu       sync.RWMutex
	settings map[string]*database.Setting

	// Error injection
	GetError    error
	UpsertError error
	ListError   error
}

// NewMockSettingsStore creates a new mock settings store.
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{
		settings: make(map[string]*database.Setting),
	}
}

// SetValue sets a raw setting value.
func (m *MockSettingsStore) SetValue(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = &database.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
}

// GetSetting retrieves a setting by key.
func (m *MockSettingsStore) GetSetting(ctx context.Context, key string) (*database.Setting, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

// UpsertSetting inserts or updates a setting.
func (m *MockSettingsStore) UpsertSetting(ctx context.Context, setting *database.Setting) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	setting.UpdatedAt = time.Now()
	cp := *setting
	m.settings[setting.Key] = &cp
	return nil
}

// ListSettings returns settings, optionally filtered by category.
func (m *MockSettingsStore) ListSettings(ctx context.Context, category string) ([]database.Setting, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var settings []database.Setting
	for _, s := range m.settings {
		if category == "" || s.Category == category {
			settings = append(settings, *s)
		}
	}
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].Key < settings[j].Key
	})
	return settings, nil
}

// Verify interface compliance.
var _ database.TemplateReader = (*MockTemplateStore)(nil)
var _ database.TemplateWriter = (*MockTemplateStore)(nil)
var _ database.EmployeeReader = (*MockEmployeeStore)(nil)
var _ database.DeviceStore = (*MockDeviceStore)(nil)
var _ database.SessionStore = (*MockSessionStore)(nil)
var _ database.AttendanceReader = (*MockAttendanceStore)(nil)
var _ database.AttendanceWriter = (*MockAttendanceStore)(nil)
var _ database.SettingsStore = (*MockSettingsStore)(nil)
