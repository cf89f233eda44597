package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the catalog in a single-file database, suitable for
// one runner host.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle and ensures the schema
// exists. The caller owns the handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("catalog: migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_runs (
		episode_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_success TEXT,
		pass INTEGER NOT NULL DEFAULT 0,
		fail INTEGER NOT NULL DEFAULT 0,
		inconclusive INTEGER NOT NULL DEFAULT 0,
		trust_level TEXT,
		facts_digest TEXT,
		assertions_digest TEXT,
		receipt TEXT,
		audited_at TEXT NOT NULL,
		PRIMARY KEY (episode_id, run_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record upserts the entry under (episode_id, run_id).
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	query := `INSERT INTO audit_runs (
		episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
		trust_level, facts_digest, assertions_digest, receipt, audited_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (episode_id, run_id) DO UPDATE SET
		outcome = excluded.outcome,
		task_success = excluded.task_success,
		pass = excluded.pass,
		fail = excluded.fail,
		inconclusive = excluded.inconclusive,
		trust_level = excluded.trust_level,
		facts_digest = excluded.facts_digest,
		assertions_digest = excluded.assertions_digest,
		receipt = excluded.receipt,
		audited_at = excluded.audited_at`

	_, err := s.db.ExecContext(ctx, query,
		e.EpisodeID, e.RunID, string(e.Outcome), encodeTri(e.TaskSuccess),
		e.Pass, e.Fail, e.Inconclusive, string(e.TrustLevel),
		e.FactsDigest, e.AssertionsDigest, e.Receipt,
		e.AuditedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("catalog: record run %s/%s: %w", e.EpisodeID, e.RunID, err)
	}
	return nil
}

// Get returns the entry for one run, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, episodeID, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
		       trust_level, facts_digest, assertions_digest, receipt, audited_at
		FROM audit_runs
		WHERE episode_id = ? AND run_id = ?`, episodeID, runID)

	e, err := scanTextRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get run %s/%s: %w", episodeID, runID, err)
	}
	return e, nil
}

// List returns up to limit entries for an episode, newest first.
func (s *SQLiteStore) List(ctx context.Context, episodeID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
		       trust_level, facts_digest, assertions_digest, receipt, audited_at
		FROM audit_runs
		WHERE episode_id = ?
		ORDER BY audited_at DESC, run_id ASC
		LIMIT ?`, episodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list runs for %s: %w", episodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanTextRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTextRow decodes a row whose timestamp column is RFC 3339 text.
func scanTextRow(row rowScanner) (*Entry, error) {
	var (
		e           Entry
		outcome     string
		taskSuccess sql.NullString
		trust       sql.NullString
		audited     string
	)
	err := row.Scan(&e.EpisodeID, &e.RunID, &outcome, &taskSuccess,
		&e.Pass, &e.Fail, &e.Inconclusive, &trust,
		&e.FactsDigest, &e.AssertionsDigest, &e.Receipt, &audited)
	if err != nil {
		return nil, err
	}
	fillEntry(&e, outcome, taskSuccess, trust)
	e.AuditedAt = parseTime(audited)
	return &e, nil
}

func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
