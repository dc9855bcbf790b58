package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", t.TempDir()+"/warden.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.NotEmpty(t, cfg.JWTSecret)

	rl := cfg.RateLimit
	assert.Equal(t, 60, rl.MaxAttempts)
	assert.Equal(t, 1, rl.DecayMinutes)
	assert.Equal(t, 100, rl.CriticalThreshold)
	assert.Equal(t, 200, rl.AutoBlockThreshold)
	assert.Equal(t, 24, rl.AutoBlockDurationHours)
	assert.Equal(t, 30, rl.LogRetentionDays)
	assert.True(t, rl.EnableAutoBlocking)
	assert.True(t, rl.EnableLogging)
	assert.False(t, rl.CountThrottled)
	assert.Equal(t, FailOpen, rl.FailMode)
	assert.Equal(t, StoreMemory, rl.Store)
	assert.Equal(t, RouteLimit{MaxAttempts: 5, DecayMinutes: 1}, rl.RouteLimits["/api/v1/auth/login"])
	assert.Contains(t, rl.ExcludedRoutes, "api/v1/health")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", t.TempDir()+"/warden.db")
	t.Setenv("WARDEN_RATELIMIT_MAX_ATTEMPTS", "10")
	t.Setenv("WARDEN_RATELIMIT_AUTO_BLOCK_THRESHOLD", "0")
	t.Setenv("WARDEN_RATELIMIT_ENABLE_LOGGING", "false")
	t.Setenv("WARDEN_RATELIMIT_FAIL_MODE", "CLOSED")
	t.Setenv("WARDEN_RATELIMIT_ROUTE_LIMITS", "/api/v1/reports=3:5")
	t.Setenv("WARDEN_RATELIMIT_EXCLUDED_ROUTES", "status, assets/*")
	t.Setenv("WARDEN_ALERT_URLS", "generic://example.com/hook, ")

	cfg, err := Load()
	require.NoError(t, err)

	rl := cfg.RateLimit
	assert.Equal(t, 10, rl.MaxAttempts)
	assert.Equal(t, 0, rl.AutoBlockThreshold)
	assert.False(t, rl.EnableLogging)
	assert.Equal(t, FailClosed, rl.FailMode)
	assert.Equal(t, map[string]RouteLimit{"/api/v1/reports": {MaxAttempts: 3, DecayMinutes: 5}}, rl.RouteLimits)
	assert.Equal(t, []string{"status", "assets/*"}, rl.ExcludedRoutes)
	assert.Equal(t, []string{"generic://example.com/hook"}, cfg.AlertURLs)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"WARDEN_RATELIMIT_MAX_ATTEMPTS":   "sixty",
		"WARDEN_RATELIMIT_DECAY_MINUTES":  "0",
		"WARDEN_RATELIMIT_ENABLE_LOGGING": "maybe",
		"WARDEN_RATELIMIT_FAIL_MODE":      "sideways",
		"WARDEN_RATELIMIT_STORE":          "memcached",
		"WARDEN_RATELIMIT_ROUTE_LIMITS":   "/login=5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("WARDEN_DB_PATH", t.TempDir()+"/warden.db")
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("WARDEN_DB_PATH", t.TempDir()+"/warden.db")
	t.Setenv("WARDEN_ENV", "production")
	t.Setenv("WARDEN_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestRateLimitConfig_LimitsFor(t *testing.T) {
	rl := DefaultRateLimitConfig()

	assert.Equal(t, RouteLimit{MaxAttempts: 3, DecayMinutes: 10}, rl.LimitsFor("/api/v1/auth/register"))
	assert.Equal(t, RouteLimit{MaxAttempts: 60, DecayMinutes: 1}, rl.LimitsFor("/api/v1/anything"))
}

func TestParseRouteLimits(t *testing.T) {
	routes, err := ParseRouteLimits("a=1:2, b = 3 : 4")
	require.NoError(t, err)
	assert.Equal(t, RouteLimit{MaxAttempts: 1, DecayMinutes: 2}, routes["a"])
	assert.Equal(t, RouteLimit{MaxAttempts: 3, DecayMinutes: 4}, routes["b"])

	_, err = ParseRouteLimits("=1:2")
	assert.Error(t, err)
	_, err = ParseRouteLimits("a=x:2")
	assert.Error(t, err)
	_, err = ParseRouteLimits("a=1:-1")
	assert.Error(t, err)
}
