// Package sqlite provides SQLite-backed audit persistence.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ryanranft/statguard/internal/domain/audit"
	"github.com/ryanranft/statguard/internal/domain/validation"
)

// defaultRetentionDays is how long events are kept before pruning.
const defaultRetentionDays = 30

// AuditStore implements audit.Store and audit.QueryStore backed by a
// SQLite database file.
type AuditStore struct {
	db            *sql.DB
	retentionDays int
	logger        *slog.Logger
}

// Config holds settings for the SQLite audit store.
type Config struct {
	// Path is the database file location.
	Path string
	// RetentionDays is how many days of events to keep (default 30).
	RetentionDays int
}

// Open initializes or connects to the audit database and applies migrations.
func Open(cfg Config, logger *slog.Logger) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit database path must not be empty")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &AuditStore{
		db:            db,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// migrate creates the events table if it does not exist.
func (s *AuditStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS security_events (
	id         TEXT PRIMARY KEY,
	timestamp  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	rule       TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	params     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_security_events_client ON security_events(client_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Append stores events in a single transaction.
func (s *AuditStore) Append(ctx context.Context, events ...audit.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
INSERT INTO security_events (id, timestamp, kind, client_id, rule, detail, params)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, e := range events {
		params, err := json.Marshal(e.Params)
		if err != nil {
			return fmt.Errorf("encode params for event %s: %w", e.ID, err)
		}
		_, err = tx.ExecContext(ctx, insert,
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.Kind),
			e.ClientID,
			e.Rule,
			e.Detail,
			string(params),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// Query retrieves events matching the filter, newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.SecurityEvent, error) {
	query := `SELECT id, timestamp, kind, client_id, rule, detail, params FROM security_events WHERE 1=1`
	var args []any

	if !filter.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if !filter.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime.UTC().Format(time.RFC3339Nano))
	}
	if filter.ClientID != "" {
		query += " AND client_id = ?"
		args = append(args, filter.ClientID)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []audit.SecurityEvent
	for rows.Next() {
		var e audit.SecurityEvent
		var ts, kind, params string
		if err := rows.Scan(&e.ID, &ts, &kind, &e.ClientID, &e.Rule, &e.Detail, &params); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		e.Kind = validation.Kind(kind)
		if params != "" && params != "{}" && params != "null" {
			if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
				return nil, fmt.Errorf("decode params for event %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneOlderThan deletes events older than the given time.
// Returns the number of events deleted.
func (s *AuditStore) PruneOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM security_events WHERE timestamp < ?",
		before.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}

// RunRetention prunes events past the configured retention window.
func (s *AuditStore) RunRetention(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("pruned expired audit events",
			"deleted", deleted,
			"retention_days", s.retentionDays,
		)
	}
	return nil
}

// Flush is a no-op: every Append commits synchronously.
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
var _ audit.QueryStore = (*AuditStore)(nil)
