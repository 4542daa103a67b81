package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/malwarebo/mintbridge/config"
)

// Connect opens the primary Postgres connection with the pool limits
// from config applied to the underlying sql.DB.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logMode := logger.Warn
	if cfg.IsDevelopment() {
		logMode = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	}

	database, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %v", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if cfg.Database.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if cfg.Database.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)
	}

	return database, nil
}
