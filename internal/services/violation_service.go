package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/util"
)

const (
	purgeBatchSize   = 1000
	maxUserAgentLen  = 1024
	topViolatorLimit = 10
)

var violationSortColumns = map[string]bool{
	"created_at": true,
	"attempts":   true,
	"severity":   true,
	"ip_address": true,
	"endpoint":   true,
	"method":     true,
}

// Attempt describes one counted request as seen by the throttle.
type Attempt struct {
	IPAddress   string
	UserID      *uint
	Endpoint    string
	Method      string
	Attempts    int
	MaxAttempts int
	Key         string
	UserAgent   string
}

// ViolationStats aggregates violation records over a window.
type ViolationStats struct {
	TotalViolations    int        `json:"total_violations"`
	TotalAttempts      int        `json:"total_attempts"`
	CriticalViolations int        `json:"critical_violations"`
	WarningViolations  int        `json:"warning_violations"`
	Endpoints          []string   `json:"endpoints"`
	FirstViolation     *time.Time `json:"first_violation"`
	LastViolation      *time.Time `json:"last_violation"`
}

// IPStatistics is ViolationStats for one source address.
type IPStatistics struct {
	ViolationStats
	AutoBlocked bool `json:"auto_blocked"`
}

// UserStatistics is ViolationStats for one principal.
type UserStatistics struct {
	ViolationStats
	IPs []string `json:"ips"`
}

// ViolationFilter narrows a violation listing. DateTo is inclusive of the
// whole day it falls on.
type ViolationFilter struct {
	Search      string
	Severity    models.Severity
	AutoBlocked *bool
	DateFrom    *time.Time
	DateTo      *time.Time
	Sort        string
	Direction   string
	Page        int
	PerPage     int
}

// ViolationPage is one page of violation records.
type ViolationPage struct {
	Data []models.ViolationRecord `json:"data"`
	Pagination
}

// TopIP is an address ranked by violation count.
type TopIP struct {
	IPAddress      string `json:"ip_address"`
	ViolationCount int64  `json:"violation_count"`
	TotalAttempts  int64  `json:"total_attempts"`
}

// TopEndpoint is an endpoint ranked by violation count.
type TopEndpoint struct {
	Endpoint       string `json:"endpoint"`
	Method         string `json:"method"`
	ViolationCount int64  `json:"violation_count"`
}

// ViolationSummary feeds the violations dashboard.
type ViolationSummary struct {
	TotalToday       int64         `json:"total_today"`
	CriticalToday    int64         `json:"critical_today"`
	AutoBlockedToday int64         `json:"auto_blocked_today"`
	LastHour         int64         `json:"last_hour"`
	Last24Hours      int64         `json:"last_24_hours"`
	TopIPs           []TopIP       `json:"top_ips"`
	TopEndpoints     []TopEndpoint `json:"top_endpoints"`
}

// Classify maps an attempt count to a severity.
func Classify(attempts, maxAttempts, criticalThreshold int) models.Severity {
	switch {
	case attempts >= criticalThreshold:
		return models.SeverityCritical
	case attempts >= maxAttempts:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// ViolationService persists and aggregates rate limit violations.
type ViolationService struct {
	db                *gorm.DB
	criticalThreshold int
	audit             AuditSink
	now               func() time.Time
}

// NewViolationService returns a ViolationService. audit may be nil.
func NewViolationService(db *gorm.DB, criticalThreshold int, audit AuditSink) *ViolationService {
	return &ViolationService{
		db:                db,
		criticalThreshold: criticalThreshold,
		audit:             audit,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// LogIfNotable stores a record for warning and critical attempts and returns
// it. Info attempts are not stored and return nil.
func (s *ViolationService) LogIfNotable(ctx context.Context, a Attempt) (*models.ViolationRecord, error) {
	severity := Classify(a.Attempts, a.MaxAttempts, s.criticalThreshold)
	if severity == models.SeverityInfo {
		return nil, nil
	}

	now := s.now()
	rec := &models.ViolationRecord{
		IPAddress: a.IPAddress,
		UserID:    a.UserID,
		Endpoint:  a.Endpoint,
		Method:    a.Method,
		Attempts:  a.Attempts,
		Key:       a.Key,
		Severity:  severity,
		UserAgent: util.Truncate(a.UserAgent, maxUserAgentLen),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("log violation: %w", err)
	}
	metrics.IncViolationLogged(string(severity))

	if severity == models.SeverityCritical && s.audit != nil {
		fields := map[string]interface{}{
			"endpoint":   rec.Endpoint,
			"method":     rec.Method,
			"attempts":   rec.Attempts,
			"key":        rec.Key,
			"user_agent": util.SanitizeForLog(rec.UserAgent),
		}
		if rec.UserID != nil {
			fields["user_id"] = *rec.UserID
		}
		s.audit.Record(ctx, AuditEvent{
			Action:    AuditRateLimitCritical,
			Actor:     ActorSystem,
			IPAddress: rec.IPAddress,
			Fields:    fields,
		})
	}
	return rec, nil
}

// MarkAutoBlocked flags every not yet flagged record of ip as auto-blocked.
func (s *ViolationService) MarkAutoBlocked(ctx context.Context, ip string, until *time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.ViolationRecord{}).
		Where("ip_address = ? AND auto_blocked = ?", ip, false).
		Updates(map[string]interface{}{
			"auto_blocked":  true,
			"blocked_until": until,
			"updated_at":    s.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mark auto-blocked: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// StatisticsForIP aggregates the records of ip in the trailing hours.
func (s *ViolationService) StatisticsForIP(ctx context.Context, ip string, hours int) (IPStatistics, error) {
	var recs []models.ViolationRecord
	err := s.db.WithContext(ctx).
		Where("ip_address = ? AND created_at >= ?", ip, s.since(hours)).
		Order("created_at asc, id asc").
		Find(&recs).Error
	if err != nil {
		return IPStatistics{}, err
	}

	st := IPStatistics{ViolationStats: aggregate(recs)}
	for _, r := range recs {
		if r.AutoBlocked {
			st.AutoBlocked = true
			break
		}
	}
	return st, nil
}

// StatisticsForUser aggregates the records of userID in the trailing hours.
func (s *ViolationService) StatisticsForUser(ctx context.Context, userID uint, hours int) (UserStatistics, error) {
	var recs []models.ViolationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, s.since(hours)).
		Order("created_at asc, id asc").
		Find(&recs).Error
	if err != nil {
		return UserStatistics{}, err
	}

	st := UserStatistics{ViolationStats: aggregate(recs), IPs: []string{}}
	seen := make(map[string]bool)
	for _, r := range recs {
		if !seen[r.IPAddress] {
			seen[r.IPAddress] = true
			st.IPs = append(st.IPs, r.IPAddress)
		}
	}
	return st, nil
}

// PurgeOlderThan deletes records created more than days ago and returns how
// many were removed. Deletion is batched inside a single transaction so a
// failure leaves the table untouched.
func (s *ViolationService) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := s.now().AddDate(0, 0, -days)

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			batch := tx.Model(&models.ViolationRecord{}).
				Select("id").
				Where("created_at < ?", cutoff).
				Limit(purgeBatchSize)
			res := tx.Where("id IN (?)", batch).Delete(&models.ViolationRecord{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
			if res.RowsAffected < purgeBatchSize {
				return nil
			}
		}
	})
	if err != nil {
		return 0, fmt.Errorf("purge violations: %w", err)
	}

	if deleted > 0 && s.audit != nil {
		s.audit.Record(ctx, AuditEvent{
			Action: AuditViolationsPurged,
			Actor:  ActorSystem,
			Fields: map[string]interface{}{"deleted": deleted, "days": days},
		})
	}
	return deleted, nil
}

// List returns a filtered, sorted page of records.
func (s *ViolationService) List(ctx context.Context, f ViolationFilter) (ViolationPage, error) {
	q := s.db.WithContext(ctx).Model(&models.ViolationRecord{})
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		if id, err := strconv.ParseUint(search, 10, 64); err == nil {
			q = q.Where("(LOWER(ip_address) LIKE ? OR LOWER(endpoint) LIKE ? OR user_id = ?)", like, like, id)
		} else {
			q = q.Where("(LOWER(ip_address) LIKE ? OR LOWER(endpoint) LIKE ?)", like, like)
		}
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.AutoBlocked != nil {
		q = q.Where("auto_blocked = ?", *f.AutoBlocked)
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		q = q.Where("created_at < ?", startOfDay(*f.DateTo).AddDate(0, 0, 1))
	}
	q = q.Session(&gorm.Session{})

	var page ViolationPage
	if err := q.Count(&page.Total).Error; err != nil {
		return ViolationPage{}, err
	}
	page.Pagination = paginate(f.Page, f.PerPage, defaultViolationPerPage, page.Total)

	page.Data = []models.ViolationRecord{}
	err := q.Order(orderClause(f.Sort, f.Direction, violationSortColumns)).
		Offset(page.offset()).Limit(page.PerPage).
		Find(&page.Data).Error
	if err != nil {
		return ViolationPage{}, err
	}
	return page, nil
}

// Summary returns the dashboard counters and the top offenders of the last
// 24 hours.
func (s *ViolationService) Summary(ctx context.Context) (ViolationSummary, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	today := startOfDay(now)
	dayAgo := now.Add(-24 * time.Hour)

	var sum ViolationSummary
	counts := []struct {
		dst   *int64
		query string
		args  []interface{}
	}{
		{&sum.TotalToday, "created_at >= ?", []interface{}{today}},
		{&sum.CriticalToday, "created_at >= ? AND severity = ?", []interface{}{today, models.SeverityCritical}},
		{&sum.AutoBlockedToday, "created_at >= ? AND auto_blocked = ?", []interface{}{today, true}},
		{&sum.LastHour, "created_at >= ?", []interface{}{now.Add(-time.Hour)}},
		{&sum.Last24Hours, "created_at >= ?", []interface{}{dayAgo}},
	}
	for _, c := range counts {
		if err := db.Model(&models.ViolationRecord{}).Where(c.query, c.args...).Count(c.dst).Error; err != nil {
			return ViolationSummary{}, err
		}
	}

	sum.TopIPs = []TopIP{}
	err := db.Model(&models.ViolationRecord{}).
		Select("ip_address, COUNT(*) AS violation_count, SUM(attempts) AS total_attempts").
		Where("created_at >= ?", dayAgo).
		Group("ip_address").
		Order("violation_count desc, ip_address asc").
		Limit(topViolatorLimit).
		Scan(&sum.TopIPs).Error
	if err != nil {
		return ViolationSummary{}, err
	}

	sum.TopEndpoints = []TopEndpoint{}
	err = db.Model(&models.ViolationRecord{}).
		Select("endpoint, method, COUNT(*) AS violation_count").
		Where("created_at >= ?", dayAgo).
		Group("endpoint, method").
		Order("violation_count desc, endpoint asc").
		Limit(topViolatorLimit).
		Scan(&sum.TopEndpoints).Error
	if err != nil {
		return ViolationSummary{}, err
	}
	return sum, nil
}

func (s *ViolationService) since(hours int) time.Time {
	if hours < 1 {
		hours = 24
	}
	return s.now().Add(-time.Duration(hours) * time.Hour)
}

func aggregate(recs []models.ViolationRecord) ViolationStats {
	st := ViolationStats{Endpoints: []string{}}
	seen := make(map[string]bool)
	for i := range recs {
		r := &recs[i]
		st.TotalViolations++
		st.TotalAttempts += r.Attempts
		switch r.Severity {
		case models.SeverityCritical:
			st.CriticalViolations++
		case models.SeverityWarning:
			st.WarningViolations++
		}
		if !seen[r.Endpoint] {
			seen[r.Endpoint] = true
			st.Endpoints = append(st.Endpoints, r.Endpoint)
		}
		if st.FirstViolation == nil || r.CreatedAt.Before(*st.FirstViolation) {
			t := r.CreatedAt
			st.FirstViolation = &t
		}
		if st.LastViolation == nil || r.CreatedAt.After(*st.LastViolation) {
			t := r.CreatedAt
			st.LastViolation = &t
		}
	}
	return st
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
