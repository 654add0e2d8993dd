package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, int64(100), cfg.Ledger.PointsPerUSD)
	assert.Equal(t, "1500", cfg.Ledger.NGNPerUSD)
	assert.Equal(t, int64(500), cfg.Ledger.ReferralPoints)
	assert.Equal(t, "https://api.telnyx.com/v2", cfg.Telnyx.BaseURL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.TTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_NestedOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("TELNYX_TIMEOUT", "5s")
	t.Setenv("COMPENSATION_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, 5*time.Second, cfg.Telnyx.Timeout)
	assert.Equal(t, 3, cfg.Compensation.MaxAttempts)
	assert.Contains(t, cfg.DB.DSN(), "host=db.internal")
	assert.Contains(t, cfg.DB.DSN(), "port=6543")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JWT_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetIntEnv(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	t.Setenv("BAD_INT", "x")

	assert.Equal(t, 42, GetIntEnv("SOME_INT", 1))
	assert.Equal(t, 1, GetIntEnv("BAD_INT", 1))
	assert.Equal(t, 7, GetIntEnv("MISSING_INT", 7))
	assert.Equal(t, "fallback", GetEnv("MISSING_STR", "fallback"))
}
