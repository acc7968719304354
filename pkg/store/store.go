// Package store persists session outcomes reported by the host driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tnez/RRF-Loop/pkg/models"
	"github.com/tnez/RRF-Loop/pkg/retry"
)

// Store defines the interface for outcome persistence.
// Memory, SQLite and PostgreSQL implement it.
type Store interface {
	// RecordOutcome saves one hand-back from a component
	RecordOutcome(ctx context.Context, outcome *models.Outcome) error
	// ListOutcomes returns outcomes newest first. An empty task lists every task;
	// limit <= 0 means no limit.
	ListOutcomes(ctx context.Context, task string, limit int) ([]*models.Outcome, error)

	// Lifecycle
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config holds database configuration
type Config struct {
	Type string `yaml:"type" mapstructure:"type"` // "memory", "sqlite" or "postgres"
	DSN  string `yaml:"dsn" mapstructure:"dsn"`   // Connection string or SQLite path

	// PostgreSQL specific
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrInvalidOutcome      = errors.New("invalid outcome")
)

// NewStore creates a store based on configuration. Opening the database and the
// first health check are retried with backoff.
func NewStore(ctx context.Context, config Config, retryConfig retry.Config) (Store, error) {
	var s Store
	err := retry.Do(ctx, retryConfig, func(ctx context.Context) error {
		var err error
		switch config.Type {
		case "memory", "":
			s = NewMemoryStore()
			return nil
		case "sqlite", "sqlite3":
			path := config.DSN
			if path == "" {
				path = "rrfloop.db"
			}
			s, err = NewSQLiteStore(path)
		case "postgres", "postgresql":
			s, err = NewPostgreSQLStore(ctx, config)
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedDatabase, config.Type)
		}
		if err != nil {
			return err
		}
		if err := s.HealthCheck(ctx); err != nil {
			s.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func validateOutcome(o *models.Outcome) error {
	if o == nil {
		return fmt.Errorf("%w: nil", ErrInvalidOutcome)
	}
	if o.TaskName == "" {
		return fmt.Errorf("%w: missing task name", ErrInvalidOutcome)
	}
	return nil
}
