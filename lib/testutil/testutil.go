// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated, private in-memory database. Like the real
// database it is limited to a single connection, which serializes writers.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

// NewConfig returns the default configuration.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("BASIC_AUTH_CREDS", "admin:password")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := config.NewConfig(zap.NewNop())
	require.NoError(t, err)
	return cfg
}
