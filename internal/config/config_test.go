package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mailramp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(t, time.Minute, cfg.SendTolerance)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 20, cfg.BufferSize)
	assert.Equal(t, 5, cfg.LowWater)
	assert.Equal(t, "* * * * *", cfg.TickSpec)
	assert.Empty(t, cfg.InboxSpec)
	assert.Equal(t, []string{"PL", "DE", "FR", "GB", "US", "IT", "ES", "NL", "BE", "AT"}, cfg.HolidayCountries)
	assert.Equal(t, "Europe/Warsaw", cfg.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mailramp")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("DISPATCH_STALE_AFTER", "5m")
	t.Setenv("HOLIDAY_COUNTRIES", "PL,CZ")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, []string{"PL", "CZ"}, cfg.HolidayCountries)
	assert.True(t, cfg.DryRun)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}},
		{name: "unknown timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{name: "low water above buffer", env: map[string]string{"QUEUE_BUFFER_SIZE": "3", "QUEUE_LOW_WATER": "5"}},
		{name: "inverted warmup hours", env: map[string]string{"WARMUP_START_HOUR": "22", "WARMUP_END_HOUR": "6"}},
		{name: "no workers", env: map[string]string{"WORKER_COUNT": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/mailramp")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
