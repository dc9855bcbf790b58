package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
)

func setupRateLimitTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := OpenTestDB(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewRateLimitHandler(services.NewViolationService(db, 100, nil), 30)
	router.GET("/rate-limits", h.List)
	router.GET("/rate-limits/ip-statistics", h.IPStatistics)
	router.GET("/rate-limits/user-statistics", h.UserStatistics)
	router.DELETE("/rate-limits/cleanup", h.Cleanup)
	return router, db
}

func seedRecord(t *testing.T, db *gorm.DB, rec models.ViolationRecord) {
	t.Helper()
	if rec.Endpoint == "" {
		rec.Endpoint = "api/v1/items"
	}
	if rec.Method == "" {
		rec.Method = http.MethodGet
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	require.NoError(t, db.Create(&rec).Error)
}

func TestRateLimitHandler_List(t *testing.T) {
	router, db := setupRateLimitTestRouter(t)
	user := uint(42)
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 60, Severity: models.SeverityWarning})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 150, Severity: models.SeverityCritical, UserID: &user})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.2", Attempts: 210, Severity: models.SeverityCritical, AutoBlocked: true})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.3", Attempts: 61, Severity: models.SeverityWarning,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -10)})

	type listResponse struct {
		Violations services.ViolationPage    `json:"violations"`
		Summary    services.ViolationSummary `json:"summary"`
	}
	get := func(query string) (int, listResponse) {
		w := doJSON(router, http.MethodGet, "/rate-limits"+query, nil)
		var resp listResponse
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w.Code, resp
	}

	code, resp := get("")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(4), resp.Violations.Total)
	assert.Equal(t, int64(3), resp.Summary.Last24Hours)
	assert.Equal(t, int64(2), resp.Summary.CriticalToday)
	assert.Equal(t, int64(1), resp.Summary.AutoBlockedToday)
	require.NotEmpty(t, resp.Summary.TopIPs)
	assert.Equal(t, "10.0.0.1", resp.Summary.TopIPs[0].IPAddress)

	_, resp = get("?severity=critical")
	assert.Equal(t, int64(2), resp.Violations.Total)

	_, resp = get("?auto_blocked=true")
	require.Len(t, resp.Violations.Data, 1)
	assert.Equal(t, "10.0.0.2", resp.Violations.Data[0].IPAddress)

	_, resp = get("?search=42")
	require.Len(t, resp.Violations.Data, 1)
	assert.Equal(t, 150, resp.Violations.Data[0].Attempts)

	today := time.Now().UTC().Format(dateLayout)
	_, resp = get("?date_from=" + today + "&date_to=" + today)
	assert.Equal(t, int64(3), resp.Violations.Total)

	for _, bad := range []string{"?severity=fatal", "?auto_blocked=perhaps", "?date_from=yesterday", "?date_from=2025-02-02&date_to=2025-02-01", "?per_page=x"} {
		code, _ = get(bad)
		assert.Equal(t, http.StatusBadRequest, code, bad)
	}
}

func TestRateLimitHandler_IPStatistics(t *testing.T) {
	router, db := setupRateLimitTestRouter(t)
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 60, Severity: models.SeverityWarning})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 200, Severity: models.SeverityCritical, AutoBlocked: true, Endpoint: "api/v1/login"})

	w := doJSON(router, http.MethodGet, "/rate-limits/ip-statistics", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "IP address is required")

	w = doJSON(router, http.MethodGet, "/rate-limits/ip-statistics?ip=10.0.0.1&hours=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/rate-limits/ip-statistics?ip=10.0.0.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Hours      int                   `json:"hours"`
		Statistics services.IPStatistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 24, resp.Hours)
	assert.Equal(t, 2, resp.Statistics.TotalViolations)
	assert.Equal(t, 260, resp.Statistics.TotalAttempts)
	assert.Equal(t, 1, resp.Statistics.CriticalViolations)
	assert.True(t, resp.Statistics.AutoBlocked)
	assert.ElementsMatch(t, []string{"api/v1/items", "api/v1/login"}, resp.Statistics.Endpoints)
}

func TestRateLimitHandler_UserStatistics(t *testing.T) {
	router, db := setupRateLimitTestRouter(t)
	user := uint(5)
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 60, Severity: models.SeverityWarning, UserID: &user})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.9", Attempts: 70, Severity: models.SeverityWarning, UserID: &user})

	w := doJSON(router, http.MethodGet, "/rate-limits/user-statistics", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/rate-limits/user-statistics?user_id=5&hours=48", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Hours      int                     `json:"hours"`
		Statistics services.UserStatistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 48, resp.Hours)
	assert.Equal(t, 2, resp.Statistics.TotalViolations)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.9"}, resp.Statistics.IPs)
}

func TestRateLimitHandler_Cleanup(t *testing.T) {
	router, db := setupRateLimitTestRouter(t)
	now := time.Now().UTC()
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.1", Attempts: 60, Severity: models.SeverityWarning, CreatedAt: now.AddDate(0, 0, -40)})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.2", Attempts: 60, Severity: models.SeverityWarning, CreatedAt: now.AddDate(0, 0, -10)})
	seedRecord(t, db, models.ViolationRecord{IPAddress: "10.0.0.3", Attempts: 60, Severity: models.SeverityWarning, CreatedAt: now})

	w := doJSON(router, http.MethodDelete, "/rate-limits/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Deleted 1 violation records older than 30 days")

	w = doJSON(router, http.MethodDelete, "/rate-limits/cleanup?days=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["deleted"])

	var remaining int64
	require.NoError(t, db.Model(&models.ViolationRecord{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	w = doJSON(router, http.MethodDelete, "/rate-limits/cleanup?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(router, http.MethodDelete, "/rate-limits/cleanup?days=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
