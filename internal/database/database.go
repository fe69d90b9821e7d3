package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectAttempts = 5

// Connect opens the postgres pool and waits for the server to answer. In
// docker-compose the API often starts before postgres accepts connections.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.SSLMode == "disable" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:  newQueryLogger(log, level, cfg.SlowQuery),
		NowFunc: NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			log.Warn("database not ready", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(connectAttempts))
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	log.Info("connected to database",
		"host", cfg.Host,
		"database", cfg.Name,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return db, nil
}

// NowUTC is gorm's clock, so autoCreateTime and autoUpdateTime agree with
// the services' UTC timestamps.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// AutoMigrate builds the schema from the models. Tests run it against sqlite;
// postgres deployments use RunMigrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}
