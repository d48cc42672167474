package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SWEEP_INTERVAL", "WELCOME_THROTTLE", "QUERY_TIMEOUT", "OUTBOX_SIZE", "MESSAGE_RATE_LIMIT", "ENV"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.WelcomeThrottle)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, 30, cfg.MessageRateLimit)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("SWEEP_INTERVAL", "10s")
	t.Setenv("OUTBOX_SIZE", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.OutboxSize)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "QUERY_TIMEOUT", "soon"},
		{"zero sweep", "SWEEP_INTERVAL", "0s"},
		{"bad int", "OUTBOX_SIZE", "many"},
		{"zero outbox", "OUTBOX_SIZE", "0"},
		{"negative rate", "MESSAGE_RATE_LIMIT", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", "development")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", devJWTSecret)

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
