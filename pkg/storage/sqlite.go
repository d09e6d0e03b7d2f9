// Package storage provides policy and audit persistence for the gateway.
// The production backend is SQLite; an in-memory implementation backs tests
// and ephemeral deployments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS security_policies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	risk_category TEXT    NOT NULL UNIQUE,
	risk_name     TEXT    NOT NULL,
	threshold     REAL    NOT NULL DEFAULT 0.5,
	enabled       INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp      TIMESTAMP NOT NULL,
	user_input     TEXT      NOT NULL,
	model_response TEXT,
	risk_score     REAL      NOT NULL DEFAULT 0,
	risk_details   TEXT      NOT NULL DEFAULT '',
	action         TEXT      NOT NULL,
	latency_ms     REAL      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action    ON audit_logs(action);
`

// SQLiteStore implements domain.PolicyStore and domain.AuditStore on a
// single SQLite database.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenSQLite connects to the database at path, applies pragmas suited to a
// concurrent HTTP service, and runs the schema migration.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListActive returns all enabled policies.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]domain.Policy, error) {
	var policies []domain.Policy
	err := s.db.SelectContext(ctx, &policies,
		`SELECT * FROM security_policies WHERE enabled = 1 ORDER BY id`)
	return policies, err
}

// List returns every policy, enabled or not.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Policy, error) {
	var policies []domain.Policy
	err := s.db.SelectContext(ctx, &policies,
		`SELECT * FROM security_policies ORDER BY id`)
	return policies, err
}

// Update sets threshold and enabled atomically for one policy.
func (s *SQLiteStore) Update(ctx context.Context, id int64, threshold float64, enabled bool) (*domain.Policy, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE security_policies SET threshold = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		threshold, enabled, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update policy %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrPolicyNotFound
	}

	var p domain.Policy
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM security_policies WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SeedDefaults inserts a default policy for each catalog category not
// already present. INSERT OR IGNORE on the unique category keeps the call
// idempotent: customized rows are never reset.
func (s *SQLiteStore) SeedDefaults(ctx context.Context, catalog []domain.RiskCategory) error {
	now := time.Now().UTC()
	inserted := 0
	for _, entry := range catalog {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO security_policies
			 (risk_category, risk_name, threshold, enabled, created_at, updated_at)
			 VALUES (?, ?, 0.5, 1, ?, ?)`,
			entry.Code, entry.Name, now, now)
		if err != nil {
			return fmt.Errorf("seed policy %s: %w", entry.Code, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if inserted > 0 {
		s.logger.Info("seeded default policies", "inserted", inserted, "catalog", len(catalog))
	}
	return nil
}

// Insert appends one audit record.
func (s *SQLiteStore) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs
		 (timestamp, user_input, model_response, risk_score, risk_details, action, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.UserInput, rec.ModelResponse, rec.TriggeringScore,
		rec.RiskDetails, rec.Action, rec.LatencyMs)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListRecent returns the most recent records, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []domain.AuditRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	return records, err
}

// Stats computes the dashboard counters. block_rate is 0 for an empty table.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	if err := s.db.GetContext(ctx, &stats.TotalRequests,
		`SELECT COUNT(*) FROM audit_logs`); err != nil {
		return stats, err
	}
	if err := s.db.GetContext(ctx, &stats.BlockedRequests,
		`SELECT COUNT(*) FROM audit_logs WHERE action != ?`, domain.ActionAllow); err != nil {
		return stats, err
	}
	if stats.TotalRequests > 0 {
		stats.BlockRate = float64(stats.BlockedRequests) / float64(stats.TotalRequests)
	}
	return stats, nil
}
