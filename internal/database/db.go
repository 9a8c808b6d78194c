package database

import (
	"fmt"
	"time"

	"github.com/xpanvictor/voxcap/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured driver: mysql in production, a sqlite file locally.
func InitDB(cfg config.Settings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DB.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DB.Driver)
	}

	logLevel := logger.Warn
	if cfg.Debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// configure db
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	poolSize := cfg.DB.PoolSize
	if cfg.DB.Driver == "sqlite" {
		// sqlite serializes writers anyway
		poolSize = 1
	}
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
