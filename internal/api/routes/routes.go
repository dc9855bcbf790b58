package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/api/handlers"
	"github.com/Wikid82/warden/internal/api/middleware"
	"github.com/Wikid82/warden/internal/cerberus"
	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/ratelimit"
	"github.com/Wikid82/warden/internal/services"
)

// Register wires up API routes and performs automatic migrations. alerts may
// be nil.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config, store ratelimit.CounterStore, alerts *services.AlertService) error {
	if err := database.Migrate(db); err != nil {
		return err
	}

	tokens, err := services.NewTokenService(cfg.JWTSecret, services.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	auditService := services.NewAuditService(db)
	var audit services.AuditSink = auditService
	if alerts != nil && alerts.Enabled() {
		audit = services.MultiSink{auditService, alerts}
	}

	rl := cfg.RateLimit
	blockService := services.NewBlockService(db, audit)
	violationService := services.NewViolationService(db, rl.CriticalThreshold, audit)
	throttle := ratelimit.NewThrottle(rl, ratelimit.NewLimiter(store), violationService, blockService, audit)
	gate := cerberus.New(rl, blockService)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// The gate runs ahead of throttling so a blocked address never touches
	// the counter. OptionalAuth resolves the principal the counter is keyed on.
	api := router.Group("/api/v1")
	api.Use(gate.Middleware(), middleware.OptionalAuth(tokens), throttle.Middleware())

	api.GET("/health", handlers.HealthHandler(db))

	admin := api.Group("/")
	admin.Use(middleware.AuthMiddleware(tokens), middleware.RequireRole("admin"))
	{
		blockedIPHandler := handlers.NewBlockedIPHandler(blockService)
		admin.GET("/blocked-ips", blockedIPHandler.List)
		admin.POST("/blocked-ips", blockedIPHandler.Create)
		admin.GET("/blocked-ips/stats", blockedIPHandler.Stats)
		admin.GET("/blocked-ips/:id", blockedIPHandler.Get)
		admin.PUT("/blocked-ips/:id", blockedIPHandler.Update)
		admin.DELETE("/blocked-ips/:id", blockedIPHandler.Delete)
		admin.PATCH("/blocked-ips/:id/toggle-status", blockedIPHandler.Toggle)

		rateLimitHandler := handlers.NewRateLimitHandler(violationService, rl.LogRetentionDays)
		admin.GET("/rate-limits", rateLimitHandler.List)
		admin.GET("/rate-limits/ip-statistics", rateLimitHandler.IPStatistics)
		admin.GET("/rate-limits/user-statistics", rateLimitHandler.UserStatistics)
		admin.DELETE("/rate-limits/cleanup", rateLimitHandler.Cleanup)

		securityHandler := handlers.NewSecurityHandler(rl, alerts != nil && alerts.Enabled())
		admin.GET("/security/status", securityHandler.GetStatus)
	}

	return nil
}
