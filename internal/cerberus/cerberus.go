package cerberus

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/util"
)

const defaultBlockReason = "Security policy"

// BlockLookup finds the active block for an identifier.
type BlockLookup interface {
	FindActive(ctx context.Context, kind models.BlockKind, value string) (*models.BlockEntry, error)
}

// Cerberus is the gate in front of throttling: requests from blocked
// addresses are rejected before any counter is touched.
type Cerberus struct {
	cfg    config.RateLimitConfig
	blocks BlockLookup
}

// New creates a new Cerberus instance
func New(cfg config.RateLimitConfig, blocks BlockLookup) *Cerberus {
	return &Cerberus{cfg: cfg, blocks: blocks}
}

// Middleware returns a Gin middleware that rejects requests from addresses
// with an active ip block.
func (c *Cerberus) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		clientIP := ctx.ClientIP()
		entry, err := c.blocks.FindActive(ctx.Request.Context(), models.BlockKindIP, clientIP)
		if err != nil {
			metrics.IncStoreError()
			log := logger.Log().WithError(err).WithFields(map[string]interface{}{
				"source":    "gate",
				"ip":        clientIP,
				"fail_mode": c.cfg.FailMode,
			})
			if c.cfg.FailMode == config.FailClosed {
				log.Error("Block lookup failed, rejecting request")
				ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
				return
			}
			log.Error("Block lookup failed, allowing request")
			ctx.Next()
			return
		}

		if entry != nil {
			metrics.IncGateRejection()
			logger.Log().WithFields(map[string]interface{}{
				"source":   "gate",
				"decision": "block",
				"ip":       clientIP,
				"block_id": entry.ID,
				"path":     util.SanitizeForLog(ctx.Request.URL.Path),
			}).Debug("Blocked address rejected")

			reason := entry.Reason
			if reason == "" {
				reason = defaultBlockReason
			}
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Your IP address has been blocked. Reason: " + reason})
			return
		}

		ctx.Next()
	}
}
