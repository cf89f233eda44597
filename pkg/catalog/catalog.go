// Package catalog keeps the cross-run verdict history: what each
// episode scored on each audit run. Runners consult it to answer
// "what did this episode score last time"; the core pipeline never
// reads it, so catalog state can never influence a verdict.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Entry is one recorded audit outcome, keyed by episode id + run id.
type Entry struct {
	EpisodeID        string               `json:"episode_id"`
	RunID            string               `json:"run_id"`
	Outcome          contracts.Result     `json:"outcome"`
	TaskSuccess      *bool                `json:"task_success"`
	Pass             int                  `json:"pass"`
	Fail             int                  `json:"fail"`
	Inconclusive     int                  `json:"inconclusive"`
	TrustLevel       contracts.TrustLevel `json:"trust_level"`
	FactsDigest      string               `json:"facts_digest"`
	AssertionsDigest string               `json:"assertions_digest"`
	// Receipt is the signed attestation token for this run, when the
	// runner issued one.
	Receipt   string    `json:"receipt,omitempty"`
	AuditedAt time.Time `json:"audited_at"`
}

// FromReport builds the catalog entry for a finished report.
func FromReport(r *audit.Report, receiptToken string) Entry {
	return Entry{
		EpisodeID:        r.EpisodeID,
		RunID:            r.RunID,
		Outcome:          r.Summary.Outcome,
		TaskSuccess:      r.Summary.TaskSuccess,
		Pass:             r.Summary.Counts.Pass,
		Fail:             r.Summary.Counts.Fail,
		Inconclusive:     r.Summary.Counts.Inconclusive,
		TrustLevel:       r.Summary.TrustLevel,
		FactsDigest:      r.FactsDigest,
		AssertionsDigest: r.AssertionsDigest,
		Receipt:          receiptToken,
		AuditedAt:        time.UnixMilli(r.AuditedAtMS).UTC(),
	}
}

// Store records and retrieves audit outcomes across runs.
type Store interface {
	// Record upserts the entry under (episode_id, run_id).
	Record(ctx context.Context, e Entry) error
	// Get returns the entry for one run, or nil when absent.
	Get(ctx context.Context, episodeID, runID string) (*Entry, error)
	// List returns up to limit entries for an episode, newest first.
	List(ctx context.Context, episodeID string, limit int) ([]Entry, error)
}

// Open wires the backend named by the runner profile: "memory" (the
// default), "sqlite" with a file DSN, or "postgres". The returned
// closer owns the underlying connection.
func Open(backend, dsn string) (Store, func() error, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: open sqlite: %w", err)
		}
		st, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	case "postgres":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: open postgres: %w", err)
		}
		st, err := NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	}
	return nil, nil, fmt.Errorf("catalog: unknown backend %q", backend)
}

// encodeTri flattens a tri-state bool into a nullable text column,
// which every supported driver round-trips identically.
func encodeTri(b *bool) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	if *b {
		return sql.NullString{String: "true", Valid: true}
	}
	return sql.NullString{String: "false", Valid: true}
}

func decodeTri(s sql.NullString) *bool {
	if !s.Valid {
		return nil
	}
	v := s.String == "true"
	return &v
}

func fillEntry(e *Entry, outcome string, taskSuccess, trust sql.NullString) {
	e.Outcome = contracts.Result(outcome)
	e.TaskSuccess = decodeTri(taskSuccess)
	e.TrustLevel = contracts.TrustLevel(trust.String)
}
