package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SERVE_PREFIX", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, "/fs", cfg.ServePrefix)
	assert.Equal(t, time.Hour, cfg.UploadIntentTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionGrace)
	assert.Equal(t, int64(20*1024*1024), cfg.InlineServeLimit)
	assert.False(t, cfg.External.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVE_PREFIX", "files/")
	t.Setenv("PUBLIC_BASE_URL", "https://vault.example.com/")
	t.Setenv("UPLOAD_INTENT_TTL", "10m")
	t.Setenv("EXTERNAL_ENDPOINT", "s3.example.com")
	t.Setenv("EXTERNAL_BUCKET", "assets")
	t.Setenv("EXTERNAL_USE_SSL", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/files", cfg.ServePrefix)
	assert.Equal(t, "https://vault.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 10*time.Minute, cfg.UploadIntentTTL)
	assert.True(t, cfg.External.Enabled())
	assert.False(t, cfg.External.UseSSL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":     {"UPLOAD_INTENT_TTL", "soon"},
		"bad limit":        {"INLINE_SERVE_LIMIT", "big"},
		"zero limit":       {"INLINE_SERVE_LIMIT", "0"},
		"prefix collision": {"SERVE_PREFIX", "/api"},
		"bucket missing":   {"EXTERNAL_ENDPOINT", "s3.example.com"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProdRequiresSigningSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BLOB_SIGNING_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("BLOB_SIGNING_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProdLike())
}
