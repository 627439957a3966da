package database

import (
	"context"
	"fmt"
	"time"

	"lifeguard_mailbox/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabaseConnection create a new postgreSQL pgx pool
func NewDatabaseConnection(d Connection) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(d.ConnectStr)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}
	for i := 0; i < attempts(d.RetryCount); i++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.ConnectConfig(context.Background(), dbConfig)
		if err == nil {
			return pool, nil
		}
		logger.Log.Warn(
			"Failed to connect to postgreSQL database, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to postgreSQL after %d attempts: %w", attempts(d.RetryCount), err)
}

// NewPGConnection create a new gorm postgreSQL connection
func NewPGConnection(d Connection) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < attempts(d.RetryCount); i++ {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  d.ConnectStr,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			return db, nil
		}
		logger.Log.Warn(
			"Failed to open gorm postgreSQL connection, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to postgreSQL after %d attempts: %w", attempts(d.RetryCount), err)
}
