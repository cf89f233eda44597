// Package assertion turns compiled assertion configurations into graded
// verdicts over the frozen fact store. Assertions never touch the episode
// bundle directly: everything they judge must already exist as a sealed
// fact, so a verdict can be replayed from the fact log alone.
package assertion

import (
	"context"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/factstore"
)

// EvalContext is the read-only world an assertion evaluates against.
type EvalContext struct {
	Facts  *factstore.Store
	Case   *contracts.CaseContext
	Config contracts.AssertionConfig
}

// Assertion produces one verdict for one configured check.
//
// A returned error means the evaluation itself broke (panic-adjacent
// conditions, sandbox failures); the engine converts it into an
// INCONCLUSIVE verdict rather than aborting the run. Expected negative
// outcomes (violation found, evidence missing, config unusable) are
// expressed through the result, not the error.
type Assertion interface {
	// ID reports the assertion id or family prefix this check answers for.
	ID() string

	// Evaluate computes the verdict for the config in ec.
	Evaluate(ctx context.Context, ec *EvalContext) (contracts.AssertionResult, error)
}

// inconclusive builds the skeleton of an INCONCLUSIVE verdict for the
// given config. Callers may attach payload detail afterwards.
func inconclusive(cfg contracts.AssertionConfig, reason string) contracts.AssertionResult {
	return contracts.AssertionResult{
		AssertionID:        cfg.AssertionID,
		Result:             contracts.ResultInconclusive,
		InconclusiveReason: reason,
		Severity:           contracts.SeverityLow,
		EvidenceRefs:       []string{},
		Applicable:         contracts.Bool(true),
	}
}

// mappedTags resolves the safety-taxonomy tags for a verdict. Policy
// params win over the check's built-in defaults; empty stays null.
func mappedTags(cfg contracts.AssertionConfig, defPrimitive, defBoundary string) (sp, primitive, boundary *string) {
	if s, ok := stringParam(cfg.Params, "mapped_sp"); ok && s != "" {
		sp = contracts.Str(s)
	}
	primitive = tagOrDefault(cfg, "mapped_primitive", defPrimitive)
	boundary = tagOrDefault(cfg, "mapped_boundary", defBoundary)
	return sp, primitive, boundary
}

func tagOrDefault(cfg contracts.AssertionConfig, key, def string) *string {
	if s, ok := stringParam(cfg.Params, key); ok && s != "" {
		return contracts.Str(s)
	}
	if def != "" {
		return contracts.Str(def)
	}
	return nil
}

// impactFor lifts the case impact level onto a violating verdict.
func impactFor(cc *contracts.CaseContext) *string {
	if cc == nil || cc.ImpactLevel == "" {
		return nil
	}
	return contracts.Str(cc.ImpactLevel)
}
