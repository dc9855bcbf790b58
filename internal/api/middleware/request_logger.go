package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request along with the request_id.
// Server errors are logged at error level, admission rejections at warn.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"status":  status,
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if uid, ok := c.Get("userID"); ok {
			fields["user_id"] = uid
		}
		entry := GetRequestLogger(c).WithFields(fields)

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("handled request")
		case status == http.StatusTooManyRequests || status == http.StatusForbidden:
			entry.Warn("handled request")
		default:
			entry.Info("handled request")
		}
	}
}
