// Package audit orchestrates one verification pass over an episode
// bundle: compile the policy, extract facts, evaluate assertions, then
// persist the canonical record set and patch every episode summary.
//
// The engine is deliberately single-threaded per invocation. Output
// determinism comes from sorting records by id before write, not from
// execution order, so re-auditing an unchanged bundle reproduces
// facts.jsonl and assertions.jsonl byte for byte.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/arbiter/pkg/assertion"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/detector"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
	"github.com/Mindburn-Labs/arbiter/pkg/factstore"
	"github.com/Mindburn-Labs/arbiter/pkg/observability"
	"github.com/Mindburn-Labs/arbiter/pkg/policy"
	"github.com/Mindburn-Labs/arbiter/pkg/schema"
)

// EngineVersion is stamped into every audit block so a summary always
// names the engine revision that produced it.
const EngineVersion = "0.3.0"

// Report is the outcome of one engine invocation: the records as
// persisted plus the digests and paths downstream collaborators
// (receipts, catalogs, archives) bind to.
type Report struct {
	RunID     string
	EpisodeID string

	Facts   []contracts.Fact
	Results []contracts.AssertionResult
	Summary Summary

	FactsDigest      string
	AssertionsDigest string

	FactsPath      string
	AssertionsPath string
	SummaryPaths   []string

	AuditedAtMS int64
}

// Engine wires the detector and assertion stages to an episode bundle.
type Engine struct {
	detectors *detector.Registry
	registry  *assertion.Registry
	validator *schema.Validator
	logger    *slog.Logger
	telemetry *observability.Provider
	clock     func() time.Time
	newRunID  func() string
}

// NewEngine builds an engine over the default detector and assertion
// registries. Callers own the returned engine and should Close it to
// release assertion sandboxes.
func NewEngine() (*Engine, error) {
	reg, err := assertion.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("audit: build assertion registry: %w", err)
	}
	val, err := schema.NewValidator()
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("audit: compile record schemas: %w", err)
	}
	return &Engine{
		detectors: detector.DefaultRegistry(),
		registry:  reg,
		validator: val,
		logger:    slog.Default().With("component", "audit_engine"),
		telemetry: observability.Nop(),
		clock:     time.Now,
		newRunID:  func() string { return uuid.New().String() },
	}, nil
}

// WithDetectors replaces the detector registry.
func (e *Engine) WithDetectors(reg *detector.Registry) *Engine {
	e.detectors = reg
	return e
}

// WithRegistry replaces the assertion registry. The engine takes over
// closing it.
func (e *Engine) WithRegistry(reg *assertion.Registry) *Engine {
	e.registry = reg
	return e
}

// WithLogger overrides the engine logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// WithTelemetry attaches an observability provider; spans and counters
// cover each pipeline stage of subsequent runs.
func (e *Engine) WithTelemetry(p *observability.Provider) *Engine {
	e.telemetry = p
	return e
}

// WithClock overrides the audit timestamp source.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithRunID overrides the audit run id generator.
func (e *Engine) WithRunID(gen func() string) *Engine {
	e.newRunID = gen
	return e
}

// Close releases assertion runtimes held by the registry.
func (e *Engine) Close() error {
	return e.registry.Close()
}

// Run audits the episode at episodeDir under the given case layers and
// returns the persisted report.
//
// Recoverable trouble (a failing detector, a misconfigured assertion)
// lands inside the record set as diagnostic facts or INCONCLUSIVE
// verdicts. Run itself fails only on contract violations: an unreadable
// bundle, a duplicate fact id, or a record that does not validate —
// nothing is written in that case.
func (e *Engine) Run(ctx context.Context, episodeDir string, cases ...contracts.CaseContext) (_ *Report, err error) {
	bundle, err := episode.Open(episodeDir)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	runID := e.newRunID()
	epID := episodeID(bundle)
	ctx, finish := e.telemetry.TrackOperation(ctx, "audit.run", observability.EpisodeRun(epID, runID)...)
	defer func() { finish(err) }()

	cc := MergeCases(cases)
	var pol *contracts.SafetyPolicy
	var eval *contracts.EvalSpec
	if cc != nil {
		pol = cc.Policy
		eval = cc.Eval
	}
	_, compileSpan := e.telemetry.StartSpan(ctx, "audit.compile")
	compiled := policy.Compile(pol, eval)
	compileSpan.End()
	e.logger.Info("audit starting",
		"episode_dir", episodeDir, "run_id", runID, "assertion_configs", len(compiled.Configs))

	_, detectSpan := e.telemetry.StartSpan(ctx, "audit.detect")
	facts, err := detector.NewStage(e.detectors).Run(bundle, cc)
	if err != nil {
		detectSpan.RecordError(err)
		detectSpan.End()
		return nil, fmt.Errorf("audit: detector stage: %w", err)
	}
	detectSpan.End()
	e.telemetry.RecordFacts(ctx, int64(len(facts)))

	store := factstore.New()
	for _, f := range facts {
		if strings.HasPrefix(f.FactID, detector.ErrorFactPrefix) {
			e.telemetry.RecordDetectorError(ctx, strings.TrimPrefix(f.FactID, detector.ErrorFactPrefix))
		}
		if err := e.validator.ValidateFact(&f); err != nil {
			return nil, fmt.Errorf("audit: fact %s: %w", f.FactID, err)
		}
		if err := store.Add(f); err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
	}
	store.Freeze()

	actx, assertSpan := e.telemetry.StartSpan(ctx, "audit.assert")
	results := assertion.NewEngine(e.registry).WithLogger(e.logger).Run(actx, compiled.Configs, store, cc)
	assertSpan.End()
	for i := range results {
		if err := e.validator.ValidateAssertionResult(&results[i]); err != nil {
			return nil, fmt.Errorf("audit: assertion %s: %w", results[i].AssertionID, err)
		}
		e.telemetry.RecordAssertion(ctx, results[i].AssertionID, string(results[i].Result))
	}

	report := &Report{
		RunID:       runID,
		EpisodeID:   epID,
		Facts:       store.All(),
		Results:     results,
		AuditedAtMS: e.clock().UnixMilli(),
	}

	_, finalizeSpan := e.telemetry.StartSpan(ctx, "audit.finalize")
	defer func() {
		if err != nil {
			finalizeSpan.RecordError(err)
		}
		finalizeSpan.End()
	}()

	report.FactsPath = outputPath(bundle, episode.FactsFile)
	report.FactsDigest, err = writeFacts(report.FactsPath, report.Facts)
	if err != nil {
		return nil, err
	}
	report.AssertionsPath = outputPath(bundle, episode.AssertionsFile)
	report.AssertionsDigest, err = writeResults(report.AssertionsPath, report.Results)
	if err != nil {
		return nil, err
	}

	report.SummaryPaths = bundle.SummaryPaths()
	summary := buildSummary(report.Facts, report.Results)
	summary.absorbPrior(readPriorAudit(report.SummaryPaths))
	report.Summary = summary

	block := report.auditBlock()
	for _, path := range report.SummaryPaths {
		if err := patchSummary(path, block, summary.Violations); err != nil {
			return nil, err
		}
	}

	e.logger.Info("episode audited",
		"episode_id", report.EpisodeID,
		"run_id", report.RunID,
		"outcome", summary.Outcome,
		"facts", len(report.Facts),
		"results", len(report.Results),
		"violations", len(summary.Violations))
	return report, nil
}

// MergeCases collapses layered case specs into one context. Later
// layers win field by field; policy and eval replace wholesale because
// eval-level layering already happens inside the policy compiler.
// Returns nil when no layer is given.
func MergeCases(cases []contracts.CaseContext) *contracts.CaseContext {
	if len(cases) == 0 {
		return nil
	}
	merged := cases[0]
	for _, c := range cases[1:] {
		if c.TaskID != "" {
			merged.TaskID = c.TaskID
		}
		if c.CaseID != "" {
			merged.CaseID = c.CaseID
		}
		if c.ImpactLevel != "" {
			merged.ImpactLevel = c.ImpactLevel
		}
		if c.PolicyDir != "" {
			merged.PolicyDir = c.PolicyDir
		}
		if c.Policy != nil {
			merged.Policy = c.Policy
		}
		if c.Eval != nil {
			merged.Eval = c.Eval
		}
	}
	return &merged
}

// episodeID prefers the harness-assigned run id and falls back to the
// bundle directory name for manifests the harness never wrote.
func episodeID(b *episode.Bundle) string {
	if m, err := b.ReadManifest(); err == nil && m.RunID != "" {
		return m.RunID
	}
	return filepath.Base(b.Root())
}
