package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/v1/")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("PAYMENT_CURRENCY", "EUR")

	cfg := Load()

	assert.Equal(t, "https://api.example.com/v1", cfg.BackendBaseURL)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 7, cfg.RateLimitBurst)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, "admin_session", cfg.CookieName)
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_DURATION", "soon")

	assert.Equal(t, 5, getEnvAsInt("SOME_INT", 5))
	assert.Equal(t, 2*time.Minute, getEnvAsDuration("SOME_DURATION", "2m"))
	assert.False(t, getEnvAsBool("MISSING_BOOL", false))
}

func TestSystemConfigDefaultsWhenMissing(t *testing.T) {
	SetConfigPath(filepath.Join(t.TempDir(), "missing.json"))

	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.BlockDuration())
	assert.Equal(t, 60*time.Second, cfg.ResendCooldown())
	assert.Equal(t, 10*time.Minute, cfg.SessionExpiry())
	assert.Equal(t, 2*time.Second, cfg.AdvanceDelay())
}

func TestSystemConfigClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxAttempts":99,"blockMinutes":30}`), 0644))
	SetConfigPath(path)

	cfg := LoadConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 30, cfg.BlockMinutes)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "system_config.json")
	SetConfigPath(path)

	cfg := DefaultSystemConfig()
	cfg.MaxAttempts = 5
	require.NoError(t, SaveConfig(cfg))

	SetConfigPath(path)
	assert.Equal(t, 5, GetConfig().MaxAttempts)

	bad := DefaultSystemConfig()
	bad.DefaultPageSize = 0
	assert.Error(t, SaveConfig(bad))
}
