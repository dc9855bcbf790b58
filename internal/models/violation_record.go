package models

import (
	"time"
)

// Severity classifies a throttle hit by its attempt count.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidSeverities lists severities accepted by filters.
var ValidSeverities = []Severity{SeverityInfo, SeverityWarning, SeverityCritical}

// ViolationRecord is one logged rate-limit event. Only warning and critical
// hits are stored.
type ViolationRecord struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	IPAddress    string     `json:"ip_address" gorm:"size:45;not null;index;index:idx_violation_ip_created,priority:1"`
	UserID       *uint      `json:"user_id" gorm:"index:idx_violation_user_created,priority:1"`
	Endpoint     string     `json:"endpoint" gorm:"not null"`
	Method       string     `json:"method" gorm:"size:10"`
	Attempts     int        `json:"attempts" gorm:"default:1"`
	Key          string     `json:"key" gorm:"index"`
	Severity     Severity   `json:"severity" gorm:"size:16;index"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
	BlockedUntil *time.Time `json:"blocked_until"`
	AutoBlocked  bool       `json:"auto_blocked"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index;index:idx_violation_ip_created,priority:2;index:idx_violation_user_created,priority:2"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
