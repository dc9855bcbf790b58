package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/models"
)

// Audit actions.
const (
	AuditRateLimitCritical = "rate_limit.critical"
	AuditAutoBlock         = "rate_limit.auto_block"
	AuditBlockCreated      = "block.created"
	AuditBlockUpdated      = "block.updated"
	AuditBlockDeleted      = "block.deleted"
	AuditBlockToggled      = "block.toggled"
	AuditViolationsPurged  = "violations.purged"
)

// ActorSystem is the actor recorded for automatic actions.
const ActorSystem = "system"

// AuditEvent is a security-relevant occurrence.
type AuditEvent struct {
	Action    string
	Actor     string
	IPAddress string
	Fields    map[string]interface{}
}

// AuditSink receives security events. Implementations must not block the
// request path for long and must not fail the caller.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []AuditSink

// Record implements AuditSink.
func (m MultiSink) Record(ctx context.Context, ev AuditEvent) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, ev)
		}
	}
}

// ActorName renders an operator id as an audit actor.
func ActorName(userID *uint) string {
	if userID == nil {
		return ActorSystem
	}
	return "user:" + strconv.FormatUint(uint64(*userID), 10)
}

// AuditService writes events to the security log channel and the
// security_audits table.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService returns an AuditService using the provided DB.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record implements AuditSink.
func (s *AuditService) Record(ctx context.Context, ev AuditEvent) {
	entry := logger.Security().WithFields(logrus.Fields{
		"action": ev.Action,
		"actor":  ev.Actor,
		"ip":     ev.IPAddress,
	}).WithFields(logrus.Fields(ev.Fields))
	if strings.HasPrefix(ev.Action, "rate_limit.") {
		entry.Warn(ev.Action)
	} else {
		entry.Info(ev.Action)
	}

	details := "{}"
	if len(ev.Fields) > 0 {
		if b, err := json.Marshal(ev.Fields); err == nil {
			details = string(b)
		}
	}
	a := &models.SecurityAudit{
		UUID:      uuid.NewString(),
		Actor:     ev.Actor,
		Action:    ev.Action,
		IPAddress: ev.IPAddress,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		logger.Log().WithError(err).WithField("action", ev.Action).Error("Failed to persist security audit")
	}
}

// List returns recent audit entries, newest first.
func (s *AuditService) List(ctx context.Context, limit int) ([]models.SecurityAudit, error) {
	var res []models.SecurityAudit
	q := s.db.WithContext(ctx).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
