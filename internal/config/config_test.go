package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "too-short")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Link.VerifyExpiry)
	assert.Equal(t, "session_token", cfg.Auth.SessionCookie)
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.StartMax)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("LINK_VERIFY_EXPIRY", "2m")
	t.Setenv("SWEEP_ENABLED", "true")
	t.Setenv("RATE_LIMIT_START_MAX", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Link.VerifyExpiry)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, 10, cfg.RateLimit.StartMax)
}
