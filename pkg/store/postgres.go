package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tnez/RRF-Loop/pkg/models"
)

// PostgreSQLStore implements Store using PostgreSQL
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore connects and creates the schema
func NewPostgreSQLStore(ctx context.Context, config Config) (*PostgreSQLStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(5)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgreSQLStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		task_name TEXT NOT NULL,
		run_count INTEGER NOT NULL,
		target_count INTEGER NOT NULL,
		branch_index INTEGER NOT NULL,
		next_jump TEXT,
		errors JSONB,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_task ON outcomes(task_name, recorded_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordOutcome inserts one outcome row
func (s *PostgreSQLStore) RecordOutcome(ctx context.Context, outcome *models.Outcome) error {
	if err := validateOutcome(outcome); err != nil {
		return err
	}
	errs, err := json.Marshal(outcome.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(session_id, task_name, run_count, target_count, branch_index, next_jump, errors, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, outcome.SessionID, outcome.TaskName, outcome.RunCount, outcome.TargetCount,
		outcome.BranchIndex, outcome.NextJump, string(errs), outcome.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns outcomes newest first
func (s *PostgreSQLStore) ListOutcomes(ctx context.Context, task string, limit int) ([]*models.Outcome, error) {
	query := `
		SELECT session_id, task_name, run_count, target_count, branch_index, next_jump, errors::text, recorded_at
		FROM outcomes WHERE ($1::text = '' OR task_name = $1)
		ORDER BY recorded_at DESC, id DESC`
	args := []interface{}{task}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// HealthCheck pings the database
func (s *PostgreSQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection pool
func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}
