package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND_MODE", "http")
	t.Setenv("BACKEND_BASE_URL", "https://members.example.com")
	t.Setenv("BACKEND_TENANT_ID", "north-academy")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, GatewayHTTP, cfg.Backend.Mode)
	assert.Equal(t, 60*time.Minute, cfg.Kiosk.Cooldown)
	assert.Equal(t, 7, cfg.Kiosk.WarningAfterDays)
	assert.Equal(t, 14, cfg.Kiosk.CriticalAfterDays)
	assert.Equal(t, 3, cfg.Kiosk.ThrottleMaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Sync.FlushInterval)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, "kiosk.db", cfg.Storage.Path)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_MODE", "http")
	t.Setenv("BACKEND_BASE_URL", "https://members.example.com")
	t.Setenv("BACKEND_TENANT_ID", "north-academy")
	t.Setenv("KIOSK_COOLDOWN", "90m")
	t.Setenv("KIOSK_WARNING_AFTER_DAYS", "10")
	t.Setenv("KIOSK_CRITICAL_AFTER_DAYS", "21")
	t.Setenv("SYNC_FLUSH_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, cfg.Kiosk.Cooldown)
	assert.Equal(t, 10, cfg.Kiosk.WarningAfterDays)
	assert.Equal(t, 21, cfg.Kiosk.CriticalAfterDays)
	assert.Equal(t, 30*time.Second, cfg.Sync.FlushInterval)
}

func TestLoad_RequiresTenant(t *testing.T) {
	t.Setenv("BACKEND_MODE", "http")
	t.Setenv("BACKEND_BASE_URL", "https://members.example.com")
	t.Setenv("BACKEND_TENANT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_TENANT_ID")
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("BACKEND_MODE", "http")
	t.Setenv("BACKEND_BASE_URL", "https://members.example.com")
	t.Setenv("BACKEND_TENANT_ID", "north-academy")
	t.Setenv("KIOSK_WARNING_AFTER_DAYS", "14")
	t.Setenv("KIOSK_CRITICAL_AFTER_DAYS", "7")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KIOSK_CRITICAL_AFTER_DAYS")
}

func TestLoad_PostgresModeRequiresDatabase(t *testing.T) {
	t.Setenv("BACKEND_MODE", "postgres")
	t.Setenv("BACKEND_TENANT_ID", "north-academy")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestLoad_UnknownModeRejected(t *testing.T) {
	t.Setenv("BACKEND_MODE", "carrier-pigeon")
	t.Setenv("BACKEND_TENANT_ID", "north-academy")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_MODE")
}
