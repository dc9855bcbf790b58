package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/config"
)

// SecurityHandler reports the effective admission-control configuration.
type SecurityHandler struct {
	cfg         config.RateLimitConfig
	alertsReady bool
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(cfg config.RateLimitConfig, alertsReady bool) *SecurityHandler {
	return &SecurityHandler{cfg: cfg, alertsReady: alertsReady}
}

// GetStatus handles GET /api/v1/security/status
func (h *SecurityHandler) GetStatus(c *gin.Context) {
	routes := make(gin.H, len(h.cfg.RouteLimits))
	for _, name := range h.cfg.RouteNames() {
		l := h.cfg.RouteLimits[name]
		routes[name] = gin.H{"max_attempts": l.MaxAttempts, "decay_minutes": l.DecayMinutes}
	}

	c.JSON(http.StatusOK, gin.H{
		"rate_limit": gin.H{
			"max_attempts":       h.cfg.MaxAttempts,
			"decay_minutes":      h.cfg.DecayMinutes,
			"critical_threshold": h.cfg.CriticalThreshold,
			"count_throttled":    h.cfg.CountThrottled,
			"fail_mode":          h.cfg.FailMode,
			"store":              h.cfg.Store,
			"route_limits":       routes,
			"excluded_routes":    h.cfg.ExcludedRoutes,
		},
		"auto_block": gin.H{
			"enabled":        h.cfg.EnableAutoBlocking && h.cfg.AutoBlockThreshold > 0,
			"threshold":      h.cfg.AutoBlockThreshold,
			"duration_hours": h.cfg.AutoBlockDurationHours,
			"permanent":      h.cfg.AutoBlockDurationHours == 0,
		},
		"logging": gin.H{
			"enabled":        h.cfg.EnableLogging,
			"retention_days": h.cfg.LogRetentionDays,
			"cleanup":        h.cfg.CleanupSchedule,
		},
		"alerts": gin.H{
			"enabled": h.alertsReady,
		},
	})
}
