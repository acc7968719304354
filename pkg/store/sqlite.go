package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tnez/RRF-Loop/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the outcome store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL for concurrent readers, busy timeout so `history` does not fail while `run` writes
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		task_name TEXT NOT NULL,
		run_count INTEGER NOT NULL,
		target_count INTEGER NOT NULL,
		branch_index INTEGER NOT NULL,
		next_jump TEXT,
		errors TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_task ON outcomes(task_name, recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordOutcome inserts one outcome row
func (s *SQLiteStore) RecordOutcome(ctx context.Context, outcome *models.Outcome) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, outcome.SessionID, outcome.TaskName, outcome.RunCount, outcome.TargetCount,
		outcome.BranchIndex, outcome.NextJump, string(errs), outcome.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns outcomes newest first
func (s *SQLiteStore) ListOutcomes(ctx context.Context, task string, limit int) ([]*models.Outcome, error) {
	query := `
		SELECT session_id, task_name, run_count, target_count, branch_index, next_jump, errors, recorded_at
		FROM outcomes WHERE (? = '' OR task_name = ?)
		ORDER BY recorded_at DESC, id DESC`
	args := []interface{}{task, task}
	if limit > 0 {
		query += " LIMIT ?"
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
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanOutcomes(rows *sql.Rows) ([]*models.Outcome, error) {
	var outcomes []*models.Outcome
	for rows.Next() {
		var o models.Outcome
		var nextJump, errsJSON sql.NullString
		if err := rows.Scan(&o.SessionID, &o.TaskName, &o.RunCount, &o.TargetCount,
			&o.BranchIndex, &nextJump, &errsJSON, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.NextJump = nextJump.String
		if errsJSON.Valid && errsJSON.String != "" && errsJSON.String != "null" {
			if err := json.Unmarshal([]byte(errsJSON.String), &o.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
			}
		}
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}
