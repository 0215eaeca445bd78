package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "")
	t.Setenv("WS_SEND_QUEUE", "not-a-number")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.PresenceSweepInterval)
	assert.Equal(t, 256, cfg.WSSendQueue)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("IDENTITY_MODE", "GRPC")
	t.Setenv("PRESENCE_INACTIVITY_THRESHOLD", "2m")
	t.Setenv("DEBUG_ROUTES", "true")
	t.Setenv("SEND_RATE_LIMIT", "5")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "grpc", cfg.IdentityMode)
	assert.Equal(t, 2*time.Minute, cfg.PresenceInactivityThreshold)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, 5, cfg.SendRateLimit)
}
