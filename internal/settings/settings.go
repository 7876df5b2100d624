// Package settings resolves tunable runtime settings from the database with
// a short-lived in-process cache. Admin edits take effect within the cache
// TTL without a restart.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/presensia/presensia/internal/database"
)

// Keys for the settings consumed by the attendance services.
const (
	KeyMatchThreshold    = "face_match_threshold"
	KeyLivenessThreshold = "face_liveness_threshold"
	KeyCaptureMaxSkew    = "capture_max_skew_seconds"
	KeyDeviceAutoReg     = "device_auto_register"
)

// cacheTTL bounds how stale a cached value can be.
const cacheTTL = 5 * time.Minute

// Provider resolves settings by key with typed accessors. Missing keys fall
// back to the provided default.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Float(ctx context.Context, key string, defaultVal float64) (float64, error)
	Int(ctx context.Context, key string, defaultVal int) (int, error)
	Bool(ctx context.Context, key string, defaultVal bool) (bool, error)
}

type cachedValue struct {
	value     string
	found     bool
	fetchedAt time.Time
}

// CachedProvider is a read-through settings cache backed by a SettingsStore.
type CachedProvider struct {
	store database.SettingsStore
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedValue
}

// NewProvider creates a settings provider with the default cache TTL.
func NewProvider(store database.SettingsStore) *CachedProvider {
	return &CachedProvider{
		store: store,
		ttl:   cacheTTL,
		now:   time.Now,
		cache: make(map[string]cachedValue),
	}
}

// Get returns the raw string value for key, or "" when the key is absent.
func (p *CachedProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	cached, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && p.now().Sub(cached.fetchedAt) < p.ttl {
		return cached.value, nil
	}

	setting, err := p.store.GetSetting(ctx, key)
	if err != nil {
		// Serve a stale value over failing the request
		if ok {
			return cached.value, nil
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}

	entry := cachedValue{fetchedAt: p.now()}
	if setting != nil {
		entry.value = setting.Value
		entry.found = true
	}

	p.mu.Lock()
	p.cache[key] = entry
	p.mu.Unlock()

	return entry.value, nil
}

// Float returns the setting parsed as a float, or defaultVal when the key is
// absent or unparseable.
func (p *CachedProvider) Float(ctx context.Context, key string, defaultVal float64) (float64, error) {
	raw, err := p.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultVal, nil
	}
	return v, nil
}

// Int returns the setting parsed as an integer, or defaultVal when the key
// is absent or unparseable.
func (p *CachedProvider) Int(ctx context.Context, key string, defaultVal int) (int, error) {
	raw, err := p.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultVal, nil
	}
	return v, nil
}

// Bool returns the setting parsed as a boolean, or defaultVal when the key
// is absent or unparseable.
func (p *CachedProvider) Bool(ctx context.Context, key string, defaultVal bool) (bool, error) {
	raw, err := p.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal, nil
	}
	return v, nil
}

// Invalidate drops the cached entry for key so the next read hits the store.
func (p *CachedProvider) Invalidate(key string) {
	p.mu.Lock()
	delete(p.cache, key)
	p.mu.Unlock()
}

var _ Provider = (*CachedProvider)(nil)
