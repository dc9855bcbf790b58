package models

import (
	"time"
)

// SecurityAudit records security events (critical violations, auto-blocks)
// and operator changes to the block registry.
type SecurityAudit struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Actor     string    `json:"actor" gorm:"index"`
	Action    string    `json:"action" gorm:"index"`
	IPAddress string    `json:"ip_address" gorm:"size:45;index"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
