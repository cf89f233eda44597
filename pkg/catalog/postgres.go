package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps the catalog in PostgreSQL for fleets of runners
// sharing one history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle and ensures the schema
// exists. The caller owns the handle.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("catalog: migrate postgres: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
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
		audited_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (episode_id, run_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record upserts the entry under (episode_id, run_id).
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO audit_runs (episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
			trust_level, facts_digest, assertions_digest, receipt, audited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (episode_id, run_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			task_success = EXCLUDED.task_success,
			pass = EXCLUDED.pass,
			fail = EXCLUDED.fail,
			inconclusive = EXCLUDED.inconclusive,
			trust_level = EXCLUDED.trust_level,
			facts_digest = EXCLUDED.facts_digest,
			assertions_digest = EXCLUDED.assertions_digest,
			receipt = EXCLUDED.receipt,
			audited_at = EXCLUDED.audited_at`

	_, err := s.db.ExecContext(ctx, query,
		e.EpisodeID, e.RunID, string(e.Outcome), encodeTri(e.TaskSuccess),
		e.Pass, e.Fail, e.Inconclusive, string(e.TrustLevel),
		e.FactsDigest, e.AssertionsDigest, e.Receipt, e.AuditedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("catalog: record run %s/%s: %w", e.EpisodeID, e.RunID, err)
	}
	return nil
}

// Get returns the entry for one run, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, episodeID, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
		       trust_level, facts_digest, assertions_digest, receipt, audited_at
		FROM audit_runs
		WHERE episode_id = $1 AND run_id = $2`, episodeID, runID)

	e, err := scanTimeRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get run %s/%s: %w", episodeID, runID, err)
	}
	return e, nil
}

// List returns up to limit entries for an episode, newest first.
func (s *PostgresStore) List(ctx context.Context, episodeID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT episode_id, run_id, outcome, task_success, pass, fail, inconclusive,
		       trust_level, facts_digest, assertions_digest, receipt, audited_at
		FROM audit_runs
		WHERE episode_id = $1
		ORDER BY audited_at DESC, run_id ASC
		LIMIT $2`, episodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list runs for %s: %w", episodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanTimeRow(rows)
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

// scanTimeRow decodes a row whose timestamp column is a native
// timestamp the driver hands back as time.Time.
func scanTimeRow(row rowScanner) (*Entry, error) {
	var (
		e           Entry
		outcome     string
		taskSuccess sql.NullString
		trust       sql.NullString
		audited     time.Time
	)
	err := row.Scan(&e.EpisodeID, &e.RunID, &outcome, &taskSuccess,
		&e.Pass, &e.Fail, &e.Inconclusive, &trust,
		&e.FactsDigest, &e.AssertionsDigest, &e.Receipt, &audited)
	if err != nil {
		return nil, err
	}
	fillEntry(&e, outcome, taskSuccess, trust)
	e.AuditedAt = audited.UTC()
	return &e, nil
}
