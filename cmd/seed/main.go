package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	fmt.Println("✓ Database migrated successfully")

	now := time.Now().UTC()
	seedBlocks(db, now)
	seedViolations(db, now)
}

func seedBlocks(db *gorm.DB, now time.Time) {
	operator := uint(1)
	expires := now.Add(24 * time.Hour)
	expired := now.Add(-2 * time.Hour)

	blocks := []models.BlockEntry{
		{
			Kind:        models.BlockKindIP,
			IPAddress:   "203.0.113.50",
			Reason:      "Credential stuffing",
			Description: "Repeated failed logins from a known botnet range",
			IsActive:    true,
			BlockedBy:   &operator,
		},
		{
			Kind:        models.BlockKindIP,
			IPAddress:   "198.51.100.23",
			Reason:      "Auto-blocked: Excessive rate limit violations",
			Description: "Automatically blocked after 200 rate limit violations. Endpoint: api/v1/items",
			IsActive:    true,
			ExpiresAt:   &expires,
		},
		{
			Kind:        models.BlockKindIP,
			IPAddress:   "2001:db8::bad",
			Reason:      "Scanner",
			Description: "Expired block kept for history",
			IsActive:    true,
			ExpiresAt:   &expired,
			BlockedBy:   &operator,
		},
		{
			Kind:        models.BlockKindMAC,
			MACAddress:  "de:ad:be:ef:00:01",
			Reason:      "Rogue device",
			Description: "Disabled pending investigation",
			IsActive:    false,
			BlockedBy:   &operator,
		},
	}

	for _, b := range blocks {
		b.UUID = uuid.NewString()
		b.CreatedAt = now
		b.UpdatedAt = now
		result := db.Where("type = ? AND ip_address = ? AND mac_address = ?", b.Kind, b.IPAddress, b.MACAddress).FirstOrCreate(&b)
		if result.Error != nil {
			log.Printf("Failed to seed block %s: %v", b.Value(), result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created %s block: %s (%s)\n", b.Kind, b.Value(), b.Reason)
		} else {
			fmt.Printf("  Block already exists: %s\n", b.Value())
		}
	}
}

func seedViolations(db *gorm.DB, now time.Time) {
	var count int64
	if err := db.Model(&models.ViolationRecord{}).Count(&count).Error; err != nil {
		log.Printf("Failed to count violations: %v", err)
		return
	}
	if count > 0 {
		fmt.Printf("  Violations already present: %d\n", count)
		return
	}

	user := uint(7)
	samples := []struct {
		ip       string
		userID   *uint
		endpoint string
		method   string
		attempts int
		severity models.Severity
		blocked  bool
		age      time.Duration
	}{
		{"198.51.100.23", nil, "api/v1/items", "GET", 60, models.SeverityWarning, true, 3 * time.Hour},
		{"198.51.100.23", nil, "api/v1/items", "GET", 120, models.SeverityCritical, true, 2 * time.Hour},
		{"198.51.100.23", nil, "api/v1/items", "GET", 200, models.SeverityCritical, true, 2 * time.Hour},
		{"192.0.2.44", &user, "api/v1/auth/login", "POST", 5, models.SeverityWarning, false, 30 * time.Minute},
		{"192.0.2.44", &user, "api/v1/reports", "GET", 61, models.SeverityWarning, false, 26 * time.Hour},
		{"203.0.113.9", nil, "api/v1/items", "GET", 64, models.SeverityWarning, false, 40 * 24 * time.Hour},
	}

	for _, s := range samples {
		created := now.Add(-s.age)
		rec := models.ViolationRecord{
			IPAddress:   s.ip,
			UserID:      s.userID,
			Endpoint:    s.endpoint,
			Method:      s.method,
			Attempts:    s.attempts,
			Severity:    s.severity,
			AutoBlocked: s.blocked,
			UserAgent:   "seed/1.0",
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if err := db.Create(&rec).Error; err != nil {
			log.Printf("Failed to seed violation for %s: %v", s.ip, err)
			continue
		}
		fmt.Printf("✓ Created %s violation: %s %s %s (%d attempts)\n", s.severity, s.ip, s.method, s.endpoint, s.attempts)
	}
}
