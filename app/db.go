package app

import (
	"context"
	"fmt"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{}
	if cfg.IsProduction() {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	// Foreign keys on, and wait on a busy database rather than failing at once.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.Database.Path)
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	log.Info("Database started", zap.String("path", cfg.Database.Path))

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, so transactions never see
	// each other's partial state.
	sqlDB.SetMaxOpenConns(1)

	log.Info("Starting migrations")
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Closing database")
			return sqlDB.Close()
		},
	})
	return db, nil
}
