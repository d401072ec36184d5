package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("APP_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.False(t, cfg.Production())
	assert.Equal(t, "@every 1m", cfg.ReminderSchedule)
	assert.Equal(t, "0 2 * * *", cfg.PurgeSchedule)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 1, cfg.WorkerConcurrency)
	assert.Equal(t, 800*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, 5*time.Minute, cfg.TaskVisibilityTimeout)
}

func TestLoadProductionCadence(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/podium")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "@midnight", cfg.ReminderSchedule)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/podium")

	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Setenv("WORKER_CONCURRENCY", "zero")
		_, err := Load()
		assert.ErrorContains(t, err, "WORKER_CONCURRENCY")
	})

	t.Run("poll interval", func(t *testing.T) {
		t.Setenv("WORKER_POLL_INTERVAL", "-1s")
		_, err := Load()
		assert.ErrorContains(t, err, "WORKER_POLL_INTERVAL")
	})
}
