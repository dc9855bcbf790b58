package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/util"
)

// AutoBlockReason is stored on entries created by the auto-blocker.
const AutoBlockReason = "Auto-blocked: Excessive rate limit violations"

// PrincipalKey is the gin context key holding the authenticated user id.
const PrincipalKey = "userID"

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// ViolationLogger records notable attempts.
type ViolationLogger interface {
	LogIfNotable(ctx context.Context, a services.Attempt) (*models.ViolationRecord, error)
	MarkAutoBlocked(ctx context.Context, ip string, until *time.Time) (int64, error)
}

// BlockRegistry looks up and creates block entries.
type BlockRegistry interface {
	FindActive(ctx context.Context, kind models.BlockKind, value string) (*models.BlockEntry, error)
	Create(ctx context.Context, entry *models.BlockEntry) error
}

// Throttle is the per-request admission controller.
type Throttle struct {
	cfg        config.RateLimitConfig
	limiter    *Limiter
	violations ViolationLogger
	blocks     BlockRegistry
	audit      services.AuditSink
	excluded   []*regexp.Regexp
	now        func() time.Time
	autoBlocks singleflight.Group
}

// NewThrottle wires a Throttle. audit may be nil.
func NewThrottle(cfg config.RateLimitConfig, limiter *Limiter, violations ViolationLogger, blocks BlockRegistry, audit services.AuditSink) *Throttle {
	t := &Throttle{
		cfg:        cfg,
		limiter:    limiter,
		violations: violations,
		blocks:     blocks,
		audit:      audit,
		now:        time.Now,
	}
	for _, p := range cfg.ExcludedRoutes {
		t.excluded = append(t.excluded, compileRoutePattern(p))
	}
	return t
}

// Middleware throttles with the limits configured for the matched route
// pattern, falling back to the defaults.
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		t.handle(c, t.cfg.LimitsFor(c.FullPath()))
	}
}

// Limit throttles with fixed limits regardless of the configured overrides.
func (t *Throttle) Limit(maxAttempts, decayMinutes int) gin.HandlerFunc {
	limit := config.RouteLimit{MaxAttempts: maxAttempts, DecayMinutes: decayMinutes}
	return func(c *gin.Context) {
		t.handle(c, limit)
	}
}

func (t *Throttle) handle(c *gin.Context, limit config.RouteLimit) {
	path := strings.TrimPrefix(c.Request.URL.Path, "/")
	if t.isExcluded(path) {
		metrics.IncDecision(metrics.OutcomeSkipped)
		c.Next()
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	principal := principalFrom(c)
	key := ResolveKey(principal, ip, path)
	window := time.Duration(limit.DecayMinutes) * time.Minute

	tooMany, err := t.limiter.TooManyAttempts(ctx, key, limit.MaxAttempts)
	if err != nil {
		t.storeFault(c, err)
		return
	}

	if !tooMany {
		count, err := t.limiter.Hit(ctx, key, window)
		if err != nil {
			t.storeFault(c, err)
			return
		}
		t.logAttempt(c, ip, principal, path, key, count, limit.MaxAttempts)
		t.setHeaders(c, limit.MaxAttempts, remaining(limit.MaxAttempts, count), window)
		metrics.IncDecision(metrics.OutcomeAllowed)
		c.Next()
		return
	}

	var attempts int
	if t.cfg.CountThrottled {
		attempts, err = t.limiter.Hit(ctx, key, window)
		if err == nil {
			t.logAttempt(c, ip, principal, path, key, attempts, limit.MaxAttempts)
		}
	} else {
		attempts, err = t.limiter.Attempts(ctx, key)
	}
	if err != nil {
		t.storeFault(c, err)
		return
	}

	if t.cfg.EnableAutoBlocking && t.cfg.AutoBlockThreshold > 0 && attempts >= t.cfg.AutoBlockThreshold {
		entry, err := t.autoBlock(ctx, ip, path, attempts)
		if err == nil {
			metrics.IncDecision(metrics.OutcomeAutoBlocked)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message":       "Your IP address has been automatically blocked due to excessive requests.",
				"reason":        entry.Reason,
				"blocked_until": entry.ExpiresAt,
			})
			return
		}
		logger.Log().WithError(err).WithField("ip", ip).Error("Auto-block failed, answering with throttle response")
	}

	retryAfter := int(window.Seconds())
	t.setHeaders(c, limit.MaxAttempts, 0, window)
	c.Header(headerRetryAfter, strconv.Itoa(retryAfter))
	metrics.IncDecision(metrics.OutcomeThrottled)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"message":          fmt.Sprintf("Too many requests. You have made %d requests. Please try again in %d seconds.", attempts, retryAfter),
		"retry_after":      retryAfter,
		"max_attempts":     limit.MaxAttempts,
		"current_attempts": attempts,
	})
}

// autoBlock returns the active block for ip, creating one when none exists.
// Concurrent calls for the same ip in this process share one lookup.
func (t *Throttle) autoBlock(ctx context.Context, ip, endpoint string, attempts int) (*models.BlockEntry, error) {
	v, err, _ := t.autoBlocks.Do(ip, func() (interface{}, error) {
		existing, err := t.blocks.FindActive(ctx, models.BlockKindIP, ip)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		var expiresAt *time.Time
		if t.cfg.AutoBlockDurationHours > 0 {
			e := t.now().UTC().Add(time.Duration(t.cfg.AutoBlockDurationHours) * time.Hour)
			expiresAt = &e
		}
		entry := &models.BlockEntry{
			Kind:        models.BlockKindIP,
			IPAddress:   ip,
			Reason:      AutoBlockReason,
			Description: fmt.Sprintf("Automatically blocked after %d rate limit violations. Endpoint: %s", attempts, endpoint),
			IsActive:    true,
			ExpiresAt:   expiresAt,
		}
		if err := t.blocks.Create(ctx, entry); err != nil {
			return nil, err
		}
		metrics.IncAutoBlock()

		if _, err := t.violations.MarkAutoBlocked(ctx, ip, expiresAt); err != nil {
			logger.Log().WithError(err).WithField("ip", ip).Error("Failed to flag violations as auto-blocked")
		}
		if t.audit != nil {
			t.audit.Record(ctx, services.AuditEvent{
				Action:    services.AuditAutoBlock,
				Actor:     services.ActorSystem,
				IPAddress: ip,
				Fields: map[string]interface{}{
					"block_id":   entry.ID,
					"attempts":   attempts,
					"endpoint":   endpoint,
					"expires_at": expiresAt,
				},
			})
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.BlockEntry), nil
}

func (t *Throttle) logAttempt(c *gin.Context, ip string, principal *Principal, path, key string, attempts, maxAttempts int) {
	if !t.cfg.EnableLogging {
		return
	}
	a := services.Attempt{
		IPAddress:   ip,
		Endpoint:    path,
		Method:      c.Request.Method,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		Key:         key,
		UserAgent:   c.Request.UserAgent(),
	}
	if principal != nil {
		id := principal.ID
		a.UserID = &id
	}
	if _, err := t.violations.LogIfNotable(c.Request.Context(), a); err != nil {
		logger.Log().WithError(err).WithFields(map[string]interface{}{
			"ip":       ip,
			"endpoint": util.SanitizeForLog(path),
		}).Error("Failed to record rate limit violation")
	}
}

func (t *Throttle) setHeaders(c *gin.Context, maxAttempts, left int, window time.Duration) {
	c.Header(headerLimit, strconv.Itoa(maxAttempts))
	c.Header(headerRemaining, strconv.Itoa(left))
	c.Header(headerReset, strconv.FormatInt(t.now().Add(window).Unix(), 10))
}

func (t *Throttle) storeFault(c *gin.Context, err error) {
	metrics.IncStoreError()
	metrics.IncDecision(metrics.OutcomeStoreError)
	entry := logger.Log().WithError(err).WithFields(map[string]interface{}{
		"path":      util.SanitizeForLog(c.Request.URL.Path),
		"fail_mode": t.cfg.FailMode,
	})
	if t.cfg.FailMode == config.FailClosed {
		entry.Error("Rate limit store unavailable, rejecting request")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	entry.Error("Rate limit store unavailable, allowing request")
	c.Next()
}

func (t *Throttle) isExcluded(path string) bool {
	for _, re := range t.excluded {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// compileRoutePattern turns a route glob into an anchored regexp. "*" matches
// any run of characters, slashes included.
func compileRoutePattern(pattern string) *regexp.Regexp {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "/")
	quoted := regexp.QuoteMeta(pattern)
	return regexp.MustCompile("^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}

func principalFrom(c *gin.Context) *Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &Principal{ID: id}
}
