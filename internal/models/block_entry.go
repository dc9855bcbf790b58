package models

import (
	"time"
)

// BlockKind identifies what a BlockEntry matches on.
type BlockKind string

const (
	BlockKindIP  BlockKind = "ip"
	BlockKindMAC BlockKind = "mac"
)

// BlockEntry is a blocked network identity. Exactly one of IPAddress and
// MACAddress is populated, matching Kind. A nil BlockedBy marks an entry
// created by the auto-blocker rather than an operator.
type BlockEntry struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UUID        string     `json:"uuid" gorm:"uniqueIndex"`
	Kind        BlockKind  `json:"type" gorm:"column:type;size:8;index"`
	IPAddress   string     `json:"ip_address,omitempty" gorm:"size:45;index"`
	MACAddress  string     `json:"mac_address,omitempty" gorm:"size:17;index"`
	Reason      string     `json:"reason" gorm:"size:255"`
	Description string     `json:"description" gorm:"type:text"`
	IsActive    bool       `json:"is_active" gorm:"index"`
	ExpiresAt   *time.Time `json:"expires_at"`
	BlockedBy   *uint      `json:"blocked_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Value returns the identifier the entry matches on.
func (b *BlockEntry) Value() string {
	if b.Kind == BlockKindMAC {
		return b.MACAddress
	}
	return b.IPAddress
}

// ActiveAt reports whether the block is in force at t: flagged active and
// either permanent or not yet expired.
func (b *BlockEntry) ActiveAt(t time.Time) bool {
	if !b.IsActive {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(t)
}

// IsAutomatic reports whether the entry was created by the system.
func (b *BlockEntry) IsAutomatic() bool {
	return b.BlockedBy == nil
}
