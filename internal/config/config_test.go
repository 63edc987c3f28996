package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB_NAME", "coj")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.8, cfg.DuplicationThreshold)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.ScanTimeout)
	assert.Equal(t, 31*time.Minute, cfg.ScanLockTTL)
	assert.Equal(t, NotifyDriverMongo, cfg.NotifyDriver)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.True(t, cfg.StreamEnabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DUPLICATION_THRESHOLD", "0.9")
	t.Setenv("BATCH_SIZE", "8")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SCAN_TIMEOUT_MINUTES", "1")
	t.Setenv("SCAN_LOCK_TTL_SECONDS", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.DuplicationThreshold)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 2*time.Minute, cfg.ScanLockTTL)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing mongo uri", func(c *Config) { c.MongoURI = "" }, "MONGO_URI"},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"threshold too high", func(c *Config) { c.DuplicationThreshold = 1 }, "DUPLICATION_THRESHOLD"},
		{"negative threshold", func(c *Config) { c.DuplicationThreshold = -0.1 }, "DUPLICATION_THRESHOLD"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "BATCH_SIZE"},
		{"lock ttl equals timeout", func(c *Config) { c.ScanLockTTL = c.ScanTimeout }, "SCAN_LOCK_TTL_SECONDS"},
		{"lock ttl below timeout", func(c *Config) { c.ScanLockTTL = time.Minute }, "SCAN_LOCK_TTL_SECONDS"},
		{"lock never expires", func(c *Config) { c.ScanLockTTL = 0 }, "SCAN_LOCK_TTL_SECONDS"},
		{"webhook without url", func(c *Config) { c.NotifyDriver = NotifyDriverWebhook }, "NOTIFY_WEBHOOK_URL"},
		{"unknown driver", func(c *Config) { c.NotifyDriver = "pigeon" }, "NOTIFY_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
