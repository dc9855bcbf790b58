package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
)

const (
	defaultStatisticsHours = 24
	dateLayout             = "2006-01-02"
)

// RateLimitHandler exposes the violation log to administrators.
type RateLimitHandler struct {
	violations    *services.ViolationService
	retentionDays int
}

func NewRateLimitHandler(violations *services.ViolationService, retentionDays int) *RateLimitHandler {
	return &RateLimitHandler{violations: violations, retentionDays: retentionDays}
}

// List handles GET /api/v1/rate-limits
func (h *RateLimitHandler) List(c *gin.Context) {
	f := services.ViolationFilter{
		Search:    c.Query("search"),
		Sort:      c.Query("sort"),
		Direction: c.Query("direction"),
	}

	if raw := c.Query("severity"); raw != "" {
		if !validSeverity(models.Severity(raw)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be info, warning or critical", "field": "severity"})
			return
		}
		f.Severity = models.Severity(raw)
	}
	if raw := c.Query("auto_blocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "auto_blocked must be a boolean", "field": "auto_blocked"})
			return
		}
		f.AutoBlocked = &b
	}
	var ok bool
	if f.DateFrom, ok = queryDate(c, "date_from"); !ok {
		return
	}
	if f.DateTo, ok = queryDate(c, "date_to"); !ok {
		return
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_to must not be before date_from", "field": "date_to"})
		return
	}
	if f.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if f.PerPage, ok = queryInt(c, "per_page"); !ok {
		return
	}

	ctx := c.Request.Context()
	page, err := h.violations.List(ctx, f)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.violations.Summary(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": page, "summary": summary})
}

// IPStatistics handles GET /api/v1/rate-limits/ip-statistics
func (h *RateLimitHandler) IPStatistics(c *gin.Context) {
	ip := c.Query("ip")
	if ip == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "IP address is required", "field": "ip"})
		return
	}
	hours, ok := queryHours(c)
	if !ok {
		return
	}
	stats, err := h.violations.StatisticsForIP(c.Request.Context(), ip, hours)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip_address": ip, "hours": hours, "statistics": stats})
}

// UserStatistics handles GET /api/v1/rate-limits/user-statistics
func (h *RateLimitHandler) UserStatistics(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required", "field": "user_id"})
		return
	}
	hours, ok := queryHours(c)
	if !ok {
		return
	}
	stats, err := h.violations.StatisticsForUser(c.Request.Context(), uint(id), hours)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "hours": hours, "statistics": stats})
}

// Cleanup handles DELETE /api/v1/rate-limits/cleanup
func (h *RateLimitHandler) Cleanup(c *gin.Context) {
	days := h.retentionDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer", "field": "days"})
			return
		}
		days = n
	}
	deleted, err := h.violations.PurgeOlderThan(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Deleted %d violation records older than %d days", deleted, days),
		"deleted": deleted,
		"days":    days,
	})
}

func validSeverity(s models.Severity) bool {
	for _, v := range models.ValidSeverities {
		if v == s {
			return true
		}
	}
	return false
}

func queryHours(c *gin.Context) (int, bool) {
	raw := c.Query("hours")
	if raw == "" {
		return defaultStatisticsHours, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer", "field": "hours"})
		return 0, false
	}
	return n, true
}

func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a YYYY-MM-DD date", "field": name})
		return nil, false
	}
	return &t, true
}
