package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	fileConns   int
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithFileBacked stores the database in a WAL-mode file under t.TempDir and
// lets the pool hold up to conns connections, so concurrent writers contend
// on SQLite's own locks instead of a single shared connection.
func WithFileBacked(conns int) TestDBOption {
	return func(cfg *testDBConfig) {
		if conns < 2 {
			conns = 2
		}
		cfg.fileConns = conns
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database for a single test.
// Each call gets its own named memory database so parallel tests never share rows.
// A single pooled connection serialises writers the same way a row lock would.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbCfg := database.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	}
	maxConns := 1
	if cfg.fileConns > 0 {
		dbCfg.DSN = ""
		dbCfg.Path = filepath.Join(t.TempDir(), "test.db")
		maxConns = cfg.fileConns
	}

	db, err := database.Open(dbCfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	return db
}
