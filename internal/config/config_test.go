package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Redis.Enabled, "the booking lock is on unless a deployment opts out")
	assert.Equal(t, 9, cfg.Scheduling.OpenHour)
	assert.Equal(t, 17, cfg.Scheduling.CloseHour)
	assert.Equal(t, 2*time.Hour, cfg.Scheduling.MinLeadTime)
	assert.Equal(t, time.Hour, cfg.Scheduling.RescheduleCutoff)
	assert.Equal(t, 2, cfg.Scheduling.MaxReschedules)
	assert.False(t, cfg.Integration.EligibilityFailOpen)
}

func TestLoadRedisCanBeDisabled(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadRejectsMissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsInvertedClinicHours(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CLINIC_OPEN_HOUR", "18")
	t.Setenv("CLINIC_CLOSE_HOUR", "9")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLINIC_OPEN_HOUR")
}
