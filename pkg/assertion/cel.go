package assertion

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/google/cel-go/cel"
)

// bannedCallRe matches clock, randomness and date functions. A predicate
// must replay bit-identical from the fact log alone, so expressions that
// reach for the environment are rejected before compilation.
var bannedCallRe = regexp.MustCompile(`\b(now|timestamp|duration|random|uuid|` +
	`getDate|getDayOfMonth|getDayOfWeek|getDayOfYear|getFullYear|getHours|` +
	`getMilliseconds|getMinutes|getMonth|getSeconds|getTimezoneOffset)\s*\(`)

func lintExpr(expr string) error {
	if m := bannedCallRe.FindStringSubmatch(expr); m != nil {
		return fmt.Errorf("function %q is not allowed in predicates", m[1])
	}
	return nil
}

// CelPredicate evaluates policy-authored CEL expressions against the
// fact store. One instance answers for the whole SA_CelPredicate/*
// family; compiled programs are cached per expression so re-audits of
// large suites do not recompile.
//
// Expressions see three variables:
//
//	facts   map of fact_id to payload
//	params  the assertion's own params block
//	case    task_id, case_id and impact_level of the case under audit
type CelPredicate struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelPredicate creates the family evaluator with a standard environment.
func NewCelPredicate() (*CelPredicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.DynType),
		cel.Variable("params", cel.DynType),
		cel.Variable("case", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CelPredicate{env: env, programs: make(map[string]cel.Program)}, nil
}

func (*CelPredicate) ID() string { return contracts.AssertCelPredicateFamily }

func (c *CelPredicate) Evaluate(_ context.Context, ec *EvalContext) (contracts.AssertionResult, error) {
	cfg := ec.Config

	expr, ok := stringParam(cfg.Params, "expr")
	if !ok || expr == "" {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": "expr param required"}
		return res, nil
	}

	if err := lintExpr(expr); err != nil {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": err.Error()}
		return res, nil
	}

	prg, err := c.program(expr)
	if err != nil {
		// A non-compiling expression is a policy bug, not a runtime one.
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": err.Error()}
		return res, nil
	}

	caseInfo := map[string]any{}
	if cc := ec.Case; cc != nil {
		caseInfo["task_id"] = cc.TaskID
		caseInfo["case_id"] = cc.CaseID
		caseInfo["impact_level"] = cc.ImpactLevel
	}
	out, _, err := prg.Eval(map[string]any{
		"facts":  ec.Facts.Payloads(),
		"params": cfg.Params,
		"case":   caseInfo,
	})
	if err != nil {
		return contracts.AssertionResult{}, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	value, ok := out.Value().(bool)
	if !ok {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": fmt.Sprintf("expr must evaluate to bool, got %T", out.Value())}
		return res, nil
	}

	sp, primitive, boundary := mappedTags(cfg, "", "")
	res := contracts.AssertionResult{
		AssertionID:     cfg.AssertionID,
		Severity:        contracts.SeverityMed,
		EvidenceRefs:    []string{},
		Applicable:      contracts.Bool(true),
		MappedSP:        sp,
		MappedPrimitive: primitive,
		MappedBoundary:  boundary,
		Payload:         map[string]any{"expr": expr, "value": value},
	}

	// The evidence_fact param names the fact whose refs anchor this
	// predicate's verdict.
	var refs []string
	if name, _ := stringParam(cfg.Params, "evidence_fact"); name != "" {
		if f, ok := ec.Facts.Get(name); ok {
			refs = f.EvidenceRefs
			res.Payload["evidence_fact"] = name
		}
	}

	if value {
		res.Result = contracts.ResultPass
		res.EvidenceRefs = refs
		return res, nil
	}

	// A failing predicate needs a line-addressable anchor; without one
	// it cannot be graded as a violation.
	var lineRefs []string
	for _, r := range refs {
		if contracts.HasLineRef(r) {
			lineRefs = append(lineRefs, r)
		}
	}
	if len(lineRefs) == 0 {
		res.Result = contracts.ResultInconclusive
		res.InconclusiveReason = contracts.ReasonEvidenceUnavailable
		return res, nil
	}
	res.Result = contracts.ResultFail
	res.RiskWeightBucket = contracts.RiskMed
	res.ImpactLevel = impactFor(ec.Case)
	res.EvidenceRefs = lineRefs
	return res, nil
}

// program compiles expr or returns the cached build. Cost and interrupt
// limits keep hostile expressions from stalling the audit.
func (c *CelPredicate) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, found := c.programs[expr]
	c.mu.RUnlock()
	if found {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, found := c.programs[expr]; found {
		return prg, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("build program for %q: %w", expr, err)
	}
	c.programs[expr] = prg
	return prg, nil
}
