package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

var (
	ErrBlockNotFound     = errors.New("block entry not found")
	ErrInvalidBlockKind  = errors.New("type must be ip or mac")
	ErrInvalidBlockIP    = errors.New("invalid IPv4 or IPv6 address")
	ErrInvalidMACAddress = errors.New("invalid MAC address")
	ErrReasonTooLong     = errors.New("reason must be at most 255 characters")
	ErrExpiryInPast      = errors.New("expiry must be in the future")
)

var macAddressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

const maxReasonLength = 255

var blockSortColumns = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"expires_at":  true,
	"ip_address":  true,
	"mac_address": true,
	"type":        true,
	"is_active":   true,
	"reason":      true,
}

// BlockFilter narrows a block listing.
type BlockFilter struct {
	Search    string
	Kind      models.BlockKind
	Active    *bool
	Sort      string
	Direction string
	Page      int
	PerPage   int
}

// BlockPage is one page of block entries.
type BlockPage struct {
	Data []models.BlockEntry `json:"data"`
	Pagination
}

// BlockStats summarizes the registry for the dashboard.
type BlockStats struct {
	Total       int64               `json:"total"`
	Active      int64               `json:"active"`
	AutoBlocked int64               `json:"auto_blocked"`
	Manual      int64               `json:"manual"`
	Recent      []models.BlockEntry `json:"recent"`
}

// BlockService manages the block registry.
type BlockService struct {
	db    *gorm.DB
	audit AuditSink
	now   func() time.Time
}

// NewBlockService returns a BlockService. audit may be nil.
func NewBlockService(db *gorm.DB, audit AuditSink) *BlockService {
	return &BlockService{db: db, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// FindActive returns the newest currently active entry for value, or nil.
func (s *BlockService) FindActive(ctx context.Context, kind models.BlockKind, value string) (*models.BlockEntry, error) {
	column := "ip_address"
	switch kind {
	case models.BlockKindIP:
		if ip := net.ParseIP(value); ip != nil {
			value = ip.String()
		}
	case models.BlockKindMAC:
		column = "mac_address"
		value = strings.ToLower(value)
	default:
		return nil, ErrInvalidBlockKind
	}

	var entry models.BlockEntry
	err := s.db.WithContext(ctx).
		Where("type = ? AND "+column+" = ? AND is_active = ?", kind, value, true).
		Where("(expires_at IS NULL OR expires_at > ?)", s.now()).
		Order("created_at desc, id desc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Create validates and inserts entry. It does not check for an existing
// active block on the same value.
func (s *BlockService) Create(ctx context.Context, entry *models.BlockEntry) error {
	if err := s.validate(entry, true); err != nil {
		return err
	}
	now := s.now()
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create block entry: %w", err)
	}
	s.record(ctx, AuditBlockCreated, ActorName(entry.BlockedBy), entry)
	return nil
}

// GetByID returns the entry with id.
func (s *BlockService) GetByID(ctx context.Context, id uint) (*models.BlockEntry, error) {
	var entry models.BlockEntry
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// Update replaces the editable fields of entry id with those of in.
func (s *BlockService) Update(ctx context.Context, id uint, in *models.BlockEntry, actorID *uint) (*models.BlockEntry, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expiryChanged := !sameTime(existing.ExpiresAt, in.ExpiresAt)

	existing.Kind = in.Kind
	existing.IPAddress = in.IPAddress
	existing.MACAddress = in.MACAddress
	existing.Reason = in.Reason
	existing.Description = in.Description
	existing.IsActive = in.IsActive
	existing.ExpiresAt = in.ExpiresAt
	if err := s.validate(existing, expiryChanged); err != nil {
		return nil, err
	}
	existing.UpdatedAt = s.now()

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update block entry: %w", err)
	}
	s.record(ctx, AuditBlockUpdated, ActorName(actorID), existing)
	return existing, nil
}

// Delete removes entry id.
func (s *BlockService) Delete(ctx context.Context, id uint, actorID *uint) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(existing).Error; err != nil {
		return fmt.Errorf("delete block entry: %w", err)
	}
	s.record(ctx, AuditBlockDeleted, ActorName(actorID), existing)
	return nil
}

// Toggle flips the active flag of entry id. Expiry is left untouched.
func (s *BlockService) Toggle(ctx context.Context, id uint, actorID *uint) (*models.BlockEntry, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.IsActive = !existing.IsActive
	existing.UpdatedAt = s.now()
	err = s.db.WithContext(ctx).Model(existing).
		Updates(map[string]interface{}{"is_active": existing.IsActive, "updated_at": existing.UpdatedAt}).Error
	if err != nil {
		return nil, fmt.Errorf("toggle block entry: %w", err)
	}
	s.record(ctx, AuditBlockToggled, ActorName(actorID), existing)
	return existing, nil
}

// List returns a filtered, sorted page of entries.
func (s *BlockService) List(ctx context.Context, f BlockFilter) (BlockPage, error) {
	q := s.db.WithContext(ctx).Model(&models.BlockEntry{})
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(ip_address) LIKE ? OR LOWER(mac_address) LIKE ? OR LOWER(reason) LIKE ?)", like, like, like)
	}
	if f.Kind != "" {
		q = q.Where("type = ?", f.Kind)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	q = q.Session(&gorm.Session{})

	var page BlockPage
	if err := q.Count(&page.Total).Error; err != nil {
		return BlockPage{}, err
	}
	page.Pagination = paginate(f.Page, f.PerPage, defaultBlockPerPage, page.Total)

	page.Data = []models.BlockEntry{}
	err := q.Order(orderClause(f.Sort, f.Direction, blockSortColumns)).
		Offset(page.offset()).Limit(page.PerPage).
		Find(&page.Data).Error
	if err != nil {
		return BlockPage{}, err
	}
	return page, nil
}

// Stats summarizes the registry.
func (s *BlockService) Stats(ctx context.Context) (BlockStats, error) {
	db := s.db.WithContext(ctx)
	var st BlockStats
	if err := db.Model(&models.BlockEntry{}).Count(&st.Total).Error; err != nil {
		return BlockStats{}, err
	}
	if err := db.Model(&models.BlockEntry{}).Where("is_active = ?", true).Count(&st.Active).Error; err != nil {
		return BlockStats{}, err
	}
	if err := db.Model(&models.BlockEntry{}).Where("blocked_by IS NULL").Count(&st.AutoBlocked).Error; err != nil {
		return BlockStats{}, err
	}
	st.Manual = st.Total - st.AutoBlocked

	st.Recent = []models.BlockEntry{}
	if err := db.Order("created_at desc, id desc").Limit(5).Find(&st.Recent).Error; err != nil {
		return BlockStats{}, err
	}
	return st, nil
}

// validate checks the kind/value pairing, normalizes the value and clears the
// field that does not belong to the kind.
func (s *BlockService) validate(entry *models.BlockEntry, checkExpiry bool) error {
	switch entry.Kind {
	case models.BlockKindIP:
		ip := net.ParseIP(strings.TrimSpace(entry.IPAddress))
		if ip == nil {
			return fieldError("ip_address", ErrInvalidBlockIP)
		}
		entry.IPAddress = ip.String()
		entry.MACAddress = ""
	case models.BlockKindMAC:
		mac := strings.TrimSpace(entry.MACAddress)
		if !macAddressPattern.MatchString(mac) {
			return fieldError("mac_address", ErrInvalidMACAddress)
		}
		entry.MACAddress = strings.ToLower(mac)
		entry.IPAddress = ""
	default:
		return fieldError("type", ErrInvalidBlockKind)
	}

	if len([]rune(entry.Reason)) > maxReasonLength {
		return fieldError("reason", ErrReasonTooLong)
	}
	if entry.ExpiresAt != nil {
		t := entry.ExpiresAt.UTC()
		if checkExpiry && !t.After(s.now()) {
			return fieldError("expires_at", ErrExpiryInPast)
		}
		entry.ExpiresAt = &t
	}
	return nil
}

func (s *BlockService) record(ctx context.Context, action, actor string, entry *models.BlockEntry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEvent{
		Action:    action,
		Actor:     actor,
		IPAddress: entry.IPAddress,
		Fields: map[string]interface{}{
			"block_id":   entry.ID,
			"type":       string(entry.Kind),
			"value":      entry.Value(),
			"reason":     entry.Reason,
			"is_active":  entry.IsActive,
			"expires_at": entry.ExpiresAt,
		},
	})
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
