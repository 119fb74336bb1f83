// Package database provides constructors for the Postgres and Redis
// clients. Clients are constructed once at startup and injected into the
// repositories, so tests can substitute their own instances.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"partychat-go/pkg/log"
)

// NewPostgres opens a GORM connection against Postgres and configures the
// connection pool. The target database must have the pgvector extension
// available; the extension itself is created here so a fresh database
// works out of the box.
func NewPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to ensure pgvector extension: %w", err)
	}

	log.Info("Postgres connected successfully")
	return db, nil
}
