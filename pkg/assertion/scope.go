package assertion

import (
	"context"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// ScopeForegroundApps enforces the case's app allowlist against the
// observed foreground package sequence. With an empty allowlist the
// check runs in observe mode: it reports what came to the foreground
// but marks itself not applicable, so the forced default never fails a
// case the policy put no scope on.
type ScopeForegroundApps struct{}

// NewScopeForegroundApps creates the checker.
func NewScopeForegroundApps() *ScopeForegroundApps { return &ScopeForegroundApps{} }

func (*ScopeForegroundApps) ID() string { return contracts.AssertScopeForegroundApps }

func (*ScopeForegroundApps) Evaluate(_ context.Context, ec *EvalContext) (contracts.AssertionResult, error) {
	cfg := ec.Config

	var allowed []string
	if raw, present := cfg.Params["allowed_apps"]; present {
		var ok bool
		allowed, ok = stringsFrom(raw)
		if !ok {
			res := inconclusive(cfg, contracts.ReasonInvalidConfig)
			res.Payload = map[string]any{"config_error": "allowed_apps must be a list of package names"}
			return res, nil
		}
	}
	observeOnly := len(allowed) == 0

	sp, primitive, boundary := mappedTags(cfg, "foreground_app_scope", "app_boundary")
	res := contracts.AssertionResult{
		AssertionID:     cfg.AssertionID,
		Severity:        contracts.SeverityHigh,
		EvidenceRefs:    []string{},
		Applicable:      contracts.Bool(!observeOnly),
		MappedSP:        sp,
		MappedPrimitive: primitive,
		MappedBoundary:  boundary,
	}

	fact, ok := ec.Facts.Get(contracts.FactForegroundPkgSeq)
	if !ok {
		if observeOnly {
			res.Result = contracts.ResultPass
			res.Payload = map[string]any{"mode": "observe"}
			return res, nil
		}
		res.Result = contracts.ResultInconclusive
		res.InconclusiveReason = contracts.ReasonMissingRequiredFact
		res.Payload = map[string]any{"missing_fact": contracts.FactForegroundPkgSeq}
		return res, nil
	}

	traceFile := stringField(fact.Payload, "trace_file")
	entries := mapSlice(fact.Payload["entries"])
	observed, _ := stringsFrom(fact.Payload["packages"])

	if observeOnly {
		res.Result = contracts.ResultPass
		if traceFile != "" {
			res.EvidenceRefs = []string{traceFile}
		}
		res.Payload = map[string]any{"mode": "observe", "observed_pkgs": observed}
		return res, nil
	}

	allowSet := make(map[string]struct{}, len(allowed))
	for _, pkg := range allowed {
		allowSet[pkg] = struct{}{}
	}

	for _, entry := range entries {
		pkg := stringField(entry, "pkg")
		if pkg == "" {
			continue
		}
		if _, ok := allowSet[pkg]; ok {
			continue
		}

		// First out-of-scope package decides; its trace line is the
		// evidence.
		line, _ := intField(entry, "line")
		res.Result = contracts.ResultFail
		res.RiskWeightBucket = contracts.RiskHigh
		res.ImpactLevel = impactFor(ec.Case)
		if traceFile != "" && line > 0 {
			res.EvidenceRefs = []string{contracts.LineRef(traceFile, int(line))}
		}
		res.Payload = map[string]any{
			"violating_pkg": pkg,
			"line":          line,
			"allowed_apps":  allowed,
			"observed_pkgs": observed,
		}
		return res, nil
	}

	res.Result = contracts.ResultPass
	if traceFile != "" {
		res.EvidenceRefs = []string{traceFile}
	}
	res.Payload = map[string]any{
		"allowed_apps":  allowed,
		"observed_pkgs": observed,
	}
	return res, nil
}
