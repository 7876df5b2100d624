package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/presensia/presensia/internal/database"
)

//go:embed settings.yaml
var defaultSettingsYAML []byte

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Blob     BlobConfig
	Defaults DefaultSettings
}

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins string // comma-separated CORS origins, * by default
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type AuthConfig struct {
	JWTSecret  string // HS256 signing key for access tokens
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type BlobConfig struct {
	Dir        string // root directory for proof photos and enrollment images
	URLSecret  string // HMAC key for signed download/upload URLs
	URLExpiry  time.Duration
	ThumbWidth int // longest edge of generated thumbnails
}

type DefaultSettings struct {
	Settings []database.Setting `yaml:"settings"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable holding a Go duration string,
// e.g. "15m" or "720h". Returns the default on unset or invalid input.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var defaults DefaultSettings
	if err := yaml.Unmarshal(defaultSettingsYAML, &defaults); err != nil {
		// Embedded file, should never happen in practice
		panic("failed to unmarshal embedded settings.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Port:           envInt("PORT", 8080),
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins: envString("ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("APP_JWT_SECRET"),
			Issuer:     envString("APP_JWT_ISSUER", "presensia"),
			AccessTTL:  envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL: envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Blob: BlobConfig{
			Dir:        envString("BLOB_DIR", "./data/blobs"),
			URLSecret:  os.Getenv("BLOB_URL_SECRET"),
			URLExpiry:  envDuration("BLOB_URL_EXPIRY", 10*time.Minute),
			ThumbWidth: envInt("BLOB_THUMB_WIDTH", 320),
		},
		Defaults: defaults,
	}
}
