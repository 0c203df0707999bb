package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StoreDriverMongo, cfg.StoreDriver)
	assert.True(t, cfg.UsesMongo())
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, "@every 1m", cfg.RecoverySchedule)
	assert.Equal(t, "$.choices[0].message.content", cfg.AIResponsePath)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LEASE_TTL", "45s")
	t.Setenv("WORKER_POOL_SIZE", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.UsesMongo())
	assert.Equal(t, 45*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown driver":  {"STORE_DRIVER", "postgres"},
		"zero workers":    {"WORKER_POOL_SIZE", "0"},
		"bad log format":  {"LOG_FORMAT", "xml"},
		"bad duration":    {"LEASE_TTL", "soon"},
		"short lease":     {"LEASE_TTL", "1s"},
		"bad ai endpoint": {"AI_ENDPOINT", "not a url"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "job_id", "j1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"job_id":"j1"`)
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
