package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/models"
)

func TestConnect(t *testing.T) {
	db, err := Connect("file::memory:?cache=shared")
	require.NoError(t, err)
	assert.NotNil(t, db)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err = Connect(dbPath)
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)
}

func TestConnect_InvalidPath(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range []interface{}{&models.BlockEntry{}, &models.ViolationRecord{}, &models.SecurityAudit{}} {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasColumn(&models.BlockEntry{}, "type"))
	// idempotent
	assert.NoError(t, Migrate(db))
}
