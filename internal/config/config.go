package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment    string
	HTTPPort       string
	DatabasePath   string
	LogDir         string
	Debug          bool
	JWTSecret      string
	TrustedProxies []string
	AlertURLs      []string
	RateLimit      RateLimitConfig
}

// RateLimitConfig drives the admission controller, the violation log and the
// retention job.
type RateLimitConfig struct {
	MaxAttempts        int
	DecayMinutes       int
	CriticalThreshold  int
	AutoBlockThreshold int
	// AutoBlockDurationHours of zero makes auto-blocks permanent.
	AutoBlockDurationHours int
	LogRetentionDays       int
	EnableAutoBlocking     bool
	EnableLogging          bool
	// CountThrottled keeps incrementing the counter for requests that are
	// already throttled, so critical and auto-block thresholds above
	// MaxAttempts become reachable.
	CountThrottled  bool
	FailMode        string
	RouteLimits     map[string]RouteLimit
	ExcludedRoutes  []string
	Store           string
	RedisURL        string
	CacheSize       int
	CleanupSchedule string
}

// RouteLimit overrides the default limits for a single route pattern.
type RouteLimit struct {
	MaxAttempts  int
	DecayMinutes int
}

const (
	FailOpen   = "open"
	FailClosed = "closed"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultRouteLimits mirrors the stricter limits applied to credential endpoints.
var DefaultRouteLimits = map[string]RouteLimit{
	"/api/v1/auth/login":            {MaxAttempts: 5, DecayMinutes: 1},
	"/api/v1/auth/register":         {MaxAttempts: 3, DecayMinutes: 10},
	"/api/v1/auth/password/email":   {MaxAttempts: 2, DecayMinutes: 5},
	"/api/v1/auth/verification":     {MaxAttempts: 2, DecayMinutes: 1},
	"/api/v1/auth/two-factor/login": {MaxAttempts: 5, DecayMinutes: 1},
}

// DefaultExcludedRoutes are never throttled.
var DefaultExcludedRoutes = []string{"up", "api/v1/health", "metrics", "assets/*"}

// DefaultRateLimitConfig returns the rate limit settings used when no
// environment override is present.
func DefaultRateLimitConfig() RateLimitConfig {
	routes := make(map[string]RouteLimit, len(DefaultRouteLimits))
	for k, v := range DefaultRouteLimits {
		routes[k] = v
	}
	return RateLimitConfig{
		MaxAttempts:            60,
		DecayMinutes:           1,
		CriticalThreshold:      100,
		AutoBlockThreshold:     200,
		AutoBlockDurationHours: 24,
		LogRetentionDays:       30,
		EnableAutoBlocking:     true,
		EnableLogging:          true,
		FailMode:               FailOpen,
		RouteLimits:            routes,
		ExcludedRoutes:         append([]string(nil), DefaultExcludedRoutes...),
		Store:                  StoreMemory,
		RedisURL:               "redis://localhost:6379/0",
		CacheSize:              100000,
		CleanupSchedule:        "0 3 * * *",
	}
}

// LimitsFor returns the effective limits for a route pattern.
func (r RateLimitConfig) LimitsFor(route string) RouteLimit {
	if l, ok := r.RouteLimits[route]; ok {
		return l
	}
	return RouteLimit{MaxAttempts: r.MaxAttempts, DecayMinutes: r.DecayMinutes}
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:    getEnv("WARDEN_ENV", "development"),
		HTTPPort:       getEnv("WARDEN_HTTP_PORT", "8080"),
		DatabasePath:   getEnv("WARDEN_DB_PATH", filepath.Join("data", "warden.db")),
		LogDir:         getEnv("WARDEN_LOG_DIR", filepath.Join("data", "logs")),
		JWTSecret:      os.Getenv("WARDEN_JWT_SECRET"),
		TrustedProxies: splitList(os.Getenv("WARDEN_TRUSTED_PROXIES")),
		AlertURLs:      splitList(os.Getenv("WARDEN_ALERT_URLS")),
	}

	var err error
	if cfg.Debug, err = getBool("WARDEN_DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = loadRateLimit(); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			return Config{}, fmt.Errorf("WARDEN_JWT_SECRET is required in production")
		}
		// Development fallback: tokens do not survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return Config{}, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(buf)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func loadRateLimit() (RateLimitConfig, error) {
	rl := DefaultRateLimitConfig()

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"WARDEN_RATELIMIT_MAX_ATTEMPTS", &rl.MaxAttempts, 1},
		{"WARDEN_RATELIMIT_DECAY_MINUTES", &rl.DecayMinutes, 1},
		{"WARDEN_RATELIMIT_CRITICAL_THRESHOLD", &rl.CriticalThreshold, 1},
		{"WARDEN_RATELIMIT_AUTO_BLOCK_THRESHOLD", &rl.AutoBlockThreshold, 0},
		{"WARDEN_RATELIMIT_AUTO_BLOCK_DURATION", &rl.AutoBlockDurationHours, 0},
		{"WARDEN_RATELIMIT_LOG_RETENTION_DAYS", &rl.LogRetentionDays, 1},
		{"WARDEN_RATELIMIT_CACHE_SIZE", &rl.CacheSize, 1},
	}
	for _, i := range ints {
		v, err := getInt(i.key, *i.dst)
		if err != nil {
			return RateLimitConfig{}, err
		}
		if v < i.min {
			return RateLimitConfig{}, fmt.Errorf("%s must be >= %d, got %d", i.key, i.min, v)
		}
		*i.dst = v
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"WARDEN_RATELIMIT_ENABLE_AUTO_BLOCKING", &rl.EnableAutoBlocking},
		{"WARDEN_RATELIMIT_ENABLE_LOGGING", &rl.EnableLogging},
		{"WARDEN_RATELIMIT_COUNT_THROTTLED", &rl.CountThrottled},
	}
	for _, b := range bools {
		v, err := getBool(b.key, *b.dst)
		if err != nil {
			return RateLimitConfig{}, err
		}
		*b.dst = v
	}

	rl.FailMode = strings.ToLower(getEnv("WARDEN_RATELIMIT_FAIL_MODE", rl.FailMode))
	if rl.FailMode != FailOpen && rl.FailMode != FailClosed {
		return RateLimitConfig{}, fmt.Errorf("WARDEN_RATELIMIT_FAIL_MODE must be %q or %q, got %q", FailOpen, FailClosed, rl.FailMode)
	}

	rl.Store = strings.ToLower(getEnv("WARDEN_RATELIMIT_STORE", rl.Store))
	if rl.Store != StoreMemory && rl.Store != StoreRedis {
		return RateLimitConfig{}, fmt.Errorf("WARDEN_RATELIMIT_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, rl.Store)
	}
	rl.RedisURL = getEnv("WARDEN_REDIS_URL", rl.RedisURL)
	rl.CleanupSchedule = getEnv("WARDEN_RATELIMIT_CLEANUP_SCHEDULE", rl.CleanupSchedule)

	if raw, ok := os.LookupEnv("WARDEN_RATELIMIT_ROUTE_LIMITS"); ok {
		routes, err := ParseRouteLimits(raw)
		if err != nil {
			return RateLimitConfig{}, err
		}
		rl.RouteLimits = routes
	}
	if raw, ok := os.LookupEnv("WARDEN_RATELIMIT_EXCLUDED_ROUTES"); ok {
		rl.ExcludedRoutes = splitList(raw)
	}

	return rl, nil
}

// ParseRouteLimits parses "route=max:decay" pairs separated by commas.
func ParseRouteLimits(raw string) (map[string]RouteLimit, error) {
	out := make(map[string]RouteLimit)
	for _, part := range splitList(raw) {
		route, spec, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(route) == "" {
			return nil, fmt.Errorf("invalid route limit %q: expected route=max:decay", part)
		}
		maxRaw, decayRaw, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid route limit %q: expected route=max:decay", part)
		}
		maxAttempts, err := strconv.Atoi(strings.TrimSpace(maxRaw))
		if err != nil || maxAttempts < 1 {
			return nil, fmt.Errorf("invalid max attempts in route limit %q", part)
		}
		decay, err := strconv.Atoi(strings.TrimSpace(decayRaw))
		if err != nil || decay < 1 {
			return nil, fmt.Errorf("invalid decay minutes in route limit %q", part)
		}
		out[strings.TrimSpace(route)] = RouteLimit{MaxAttempts: maxAttempts, DecayMinutes: decay}
	}
	return out, nil
}

// RouteNames returns the configured override routes in stable order.
func (r RateLimitConfig) RouteNames() []string {
	names := make([]string, 0, len(r.RouteLimits))
	for k := range r.RouteLimits {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, val)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, val)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
