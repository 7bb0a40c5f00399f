package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	applog "context-teleporter/backend/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// OpenSQL opens a pooled pgx connection and waits for the database to answer,
// retrying ConnectRetry times.
func OpenSQL(ctx context.Context, cfg *Config, log *applog.Logger) (*sql.DB, error) {
	sqlDB, err := sqlOpen("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	retries := cfg.Database.ConnectRetry
	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		if err = sqlDB.PingContext(ctx); err == nil {
			return sqlDB, nil
		}
		if i < retries-1 {
			log.Warn("Database not reachable, retrying",
				"attempt", i+1,
				"delay", cfg.Database.RetryDelay.String(),
				"error", err.Error(),
			)
			select {
			case <-ctx.Done():
				sqlDB.Close()
				return nil, ctx.Err()
			case <-time.After(cfg.Database.RetryDelay):
			}
		}
	}

	sqlDB.Close()
	return nil, fmt.Errorf("failed to connect to database after %d retries: %w", retries, err)
}

// NewGorm wraps an open connection pool in a gorm handle.
func NewGorm(sqlDB *sql.DB, cfg *Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}

	if cfg.Server.Env == "development" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise gorm: %w", err)
	}
	return db, nil
}

// TestConnection checks if the database connection is working
func TestConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
