package assertion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/factstore"
)

// Engine runs compiled assertion configs against the frozen fact store.
//
// The engine never aborts on a misbehaving assertion: unknown ids,
// malformed configs, panics and sandbox failures all surface as
// INCONCLUSIVE verdicts with a machine-readable reason, so one bad check
// cannot take down the audit of an episode.
type Engine struct {
	reg    *Registry
	logger *slog.Logger
}

// NewEngine creates an engine over the given registry.
func NewEngine(reg *Registry) *Engine {
	return &Engine{
		reg:    reg,
		logger: slog.Default().With("component", "assertion_engine"),
	}
}

// WithLogger overrides the engine logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// Run evaluates every config and returns finalized verdicts sorted by
// assertion id. One verdict per id: when the same id appears twice, the
// later occurrence wins.
func (e *Engine) Run(ctx context.Context, configs []contracts.AssertionConfig, facts *factstore.Store, cc *contracts.CaseContext) []contracts.AssertionResult {
	ordered := make([]contracts.AssertionResult, 0, len(configs))
	index := make(map[string]int, len(configs))

	for _, cfg := range configs {
		res, emitted := e.runOne(ctx, cfg, facts, cc)
		if !emitted {
			continue
		}
		final := e.finalize(cfg, res)
		if i, dup := index[final.AssertionID]; dup {
			ordered[i] = final
			continue
		}
		index[final.AssertionID] = len(ordered)
		ordered = append(ordered, final)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].AssertionID < ordered[j].AssertionID
	})
	return ordered
}

func (e *Engine) runOne(ctx context.Context, cfg contracts.AssertionConfig, facts *factstore.Store, cc *contracts.CaseContext) (contracts.AssertionResult, bool) {
	// 1. Config-error placeholders become verdicts, not silence: a policy
	// author must see that their entry never ran.
	if cfg.Source == contracts.SourceConfigError {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": cfg.ConfigError}
		return res, true
	}

	// 2. Disabled checks are skipped entirely.
	if !cfg.Enabled {
		return contracts.AssertionResult{}, false
	}

	// 3. Params must survive canonicalization; otherwise no implementation
	// could be replayed against this config.
	if cfg.Params != nil {
		if _, err := canonicalize.JCS(cfg.Params); err != nil {
			res := inconclusive(cfg, contracts.ReasonInvalidConfig)
			res.Payload = map[string]any{"config_error": "params not canonicalizable: " + err.Error()}
			return res, true
		}
	}

	// 4. Resolve, exact id first, then family prefix.
	impl, ok := e.reg.Resolve(cfg.AssertionID)
	if !ok {
		e.logger.Warn("unknown assertion id", "assertion_id", cfg.AssertionID)
		return inconclusive(cfg, contracts.ReasonUnknownAssertionID), true
	}

	// 5. Evaluate with panic containment.
	res, err := e.safeEvaluate(ctx, impl, &EvalContext{Facts: facts, Case: cc, Config: cfg})
	if err != nil {
		e.logger.Warn("assertion evaluation failed",
			"assertion_id", cfg.AssertionID,
			"error", err)
		out := inconclusive(cfg, contracts.ReasonRuntimeError)
		out.Payload = map[string]any{"error": err.Error()}
		return out, true
	}
	return res, true
}

func (e *Engine) safeEvaluate(ctx context.Context, impl Assertion, ec *EvalContext) (res contracts.AssertionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assertion panicked: %v", r)
		}
	}()
	return impl.Evaluate(ctx, ec)
}

// finalize stamps identity, applies policy overrides, and enforces the
// verdict contract so every result leaving the engine is well formed.
func (e *Engine) finalize(cfg contracts.AssertionConfig, res contracts.AssertionResult) contracts.AssertionResult {
	// The config, not the implementation, owns the id.
	res.AssertionID = cfg.AssertionID

	if !res.Result.Valid() {
		e.logger.Warn("assertion returned invalid result value",
			"assertion_id", cfg.AssertionID,
			"result", string(res.Result))
		res = inconclusive(cfg, contracts.ReasonRuntimeError)
		res.Payload = map[string]any{"error": "invalid result value"}
	}

	if o := cfg.SeverityOverride; o != "" {
		if sev := contracts.Severity(o); sev.Valid() {
			res.Severity = sev
		} else {
			res = inconclusive(cfg, contracts.ReasonInvalidConfig)
			res.Payload = map[string]any{"config_error": fmt.Sprintf("invalid severity override %q", o)}
		}
	}
	if o := cfg.RiskOverride; o != "" {
		if b := contracts.RiskWeightBucket(o); b.Valid() {
			res.RiskWeightBucket = b
		} else {
			res = inconclusive(cfg, contracts.ReasonInvalidConfig)
			res.Payload = map[string]any{"config_error": fmt.Sprintf("invalid risk weight override %q", o)}
		}
	}

	// An INCONCLUSIVE without a reason is unreadable downstream; a reason
	// on any other result is stale state.
	if res.Result == contracts.ResultInconclusive && res.InconclusiveReason == "" {
		res.InconclusiveReason = contracts.ReasonRuntimeError
	}
	if res.Result != contracts.ResultInconclusive {
		res.InconclusiveReason = ""
	}

	// Every verdict carries at least one grading dimension.
	if res.Severity == "" && res.RiskWeightBucket == "" {
		res.Severity = contracts.SeverityMed
	}

	res.EvidenceRefs = contracts.NormalizeRefs(res.EvidenceRefs)
	return res
}
