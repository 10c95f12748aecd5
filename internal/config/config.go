package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultDatabaseURL      = "assetvault.db"
	defaultPublicBaseURL    = "http://localhost:8080"
	defaultServePrefix      = "/fs"
	defaultBlobDir          = "data/blobs"
	defaultBlobSecret       = "change-me-blob-signing-secret"
	defaultUploadIntentTTL  = "1h"
	defaultRetentionGrace   = "720h"
	defaultBlobURLTTL       = "15m"
	defaultInlineServeLimit = 20 * 1024 * 1024
)

type Config struct {
	AppEnv           string
	HTTPAddr         string
	DatabaseURL      string
	PublicBaseURL    string
	ServePrefix      string
	BlobDir          string
	BlobSecret       string
	UploadIntentTTL  time.Duration
	RetentionGrace   time.Duration
	BlobURLTTL       time.Duration
	InlineServeLimit int64
	MaxUploadBytes   int64
	External         ExternalConfig
	RedisAddr        string
	RedisPassword    string
	CORSOrigins      []string
}

// ExternalConfig is the connection to the external object service. Which
// backend new uploads use is stored in the database, not here.
type ExternalConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether an external object service is configured.
func (e ExternalConfig) Enabled() bool { return e.Endpoint != "" }

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", defaultPublicBaseURL)), "/")
	cfg.ServePrefix = "/" + strings.Trim(strings.TrimSpace(getEnv("SERVE_PREFIX", defaultServePrefix)), "/")
	cfg.BlobDir = strings.TrimSpace(getEnv("BLOB_DIR", defaultBlobDir))
	cfg.BlobSecret = strings.TrimSpace(getEnv("BLOB_SIGNING_SECRET", defaultBlobSecret))

	var err error
	if cfg.UploadIntentTTL, err = parseDurationEnv("UPLOAD_INTENT_TTL", defaultUploadIntentTTL); err != nil {
		return nil, err
	}
	if cfg.RetentionGrace, err = parseDurationEnv("RETENTION_GRACE", defaultRetentionGrace); err != nil {
		return nil, err
	}
	if cfg.BlobURLTTL, err = parseDurationEnv("BLOB_URL_TTL", defaultBlobURLTTL); err != nil {
		return nil, err
	}
	if cfg.InlineServeLimit, err = parseIntEnv("INLINE_SERVE_LIMIT", defaultInlineServeLimit); err != nil {
		return nil, err
	}
	// 0 leaves local uploads unbounded
	if cfg.MaxUploadBytes, err = parseIntEnv("MAX_UPLOAD_BYTES", 0); err != nil {
		return nil, err
	}

	cfg.External = ExternalConfig{
		Endpoint:  strings.TrimSpace(os.Getenv("EXTERNAL_ENDPOINT")),
		AccessKey: strings.TrimSpace(os.Getenv("EXTERNAL_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("EXTERNAL_SECRET_KEY")),
		Bucket:    strings.TrimSpace(os.Getenv("EXTERNAL_BUCKET")),
		Region:    strings.TrimSpace(os.Getenv("EXTERNAL_REGION")),
		UseSSL:    parseBoolEnv("EXTERNAL_USE_SSL", "true"),
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Info().
		Str("env", cfg.AppEnv).
		Str("serve_prefix", cfg.ServePrefix).
		Bool("external", cfg.External.Enabled()).
		Bool("redis", cfg.RedisAddr != "").
		Msg("config loaded")
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.UploadIntentTTL <= 0 {
		return fmt.Errorf("UPLOAD_INTENT_TTL must be > 0")
	}
	if cfg.RetentionGrace < 0 {
		return fmt.Errorf("RETENTION_GRACE must be >= 0")
	}
	if cfg.BlobURLTTL <= 0 {
		return fmt.Errorf("BLOB_URL_TTL must be > 0")
	}
	if cfg.InlineServeLimit <= 0 {
		return fmt.Errorf("INLINE_SERVE_LIMIT must be > 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be >= 0")
	}
	if cfg.ServePrefix == "/" || cfg.ServePrefix == "/api" || cfg.ServePrefix == "/blobs" {
		return fmt.Errorf("SERVE_PREFIX %q collides with another route tree", cfg.ServePrefix)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.External.Enabled() && cfg.External.Bucket == "" {
		return fmt.Errorf("EXTERNAL_BUCKET must be set when EXTERNAL_ENDPOINT is")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.BlobSecret, defaultBlobSecret) {
			return fmt.Errorf("in prod/release BLOB_SIGNING_SECRET must be set and not default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

// IsProdLike reports whether the config targets a production environment.
func (c *Config) IsProdLike() bool { return isProdLike(c.AppEnv) }

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name string, fallback int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
