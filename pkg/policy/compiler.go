// Package policy compiles a safety policy and an eval spec into the
// assertion configuration set for one episode.
//
// Compilation is a pure function: same inputs, same output, no I/O.
// Malformed eval entries never abort it; they compile into disabled
// config-error placeholders the assertion engine later surfaces as
// INCONCLUSIVE verdicts. Two entries are forced no matter what the
// inputs say: success checking cannot be disabled, and the compiled
// set always contains at least one safety assertion.
package policy

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Compiled is the compiler output: the ordered configuration set plus
// per-id provenance.
type Compiled struct {
	Configs    []contracts.AssertionConfig
	SourceByID map[string]contracts.ConfigSource
}

// Enabled returns only the runnable entries, in order.
func (c *Compiled) Enabled() []contracts.AssertionConfig {
	out := make([]contracts.AssertionConfig, 0, len(c.Configs))
	for _, cfg := range c.Configs {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// Compile merges the policy baseline with the eval spec's checker
// selection. Nil inputs are valid: a nil policy contributes no
// baseline, a nil eval keeps the baseline untouched.
func Compile(p *contracts.SafetyPolicy, e *contracts.EvalSpec) *Compiled {
	merged := make(map[string]contracts.AssertionConfig)
	for _, cfg := range baseline(p) {
		merged[cfg.AssertionID] = cfg
	}

	var placeholders []contracts.AssertionConfig
	if e != nil {
		for idx, entry := range e.CheckersEnabled {
			override, err := parseChecker(idx, entry)
			if err != nil {
				placeholders = append(placeholders, errorPlaceholder(idx, entry, err))
				continue
			}
			if !override.Enabled {
				delete(merged, override.AssertionID)
				continue
			}
			merged[override.AssertionID] = layer(merged[override.AssertionID], override)
		}
	}

	forceDefaults(merged)

	configs := make([]contracts.AssertionConfig, 0, len(merged)+len(placeholders))
	for _, cfg := range merged {
		configs = append(configs, cfg)
	}
	configs = append(configs, placeholders...)
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].AssertionID < configs[j].AssertionID
	})

	sources := make(map[string]contracts.ConfigSource, len(configs))
	for _, cfg := range configs {
		sources[cfg.AssertionID] = cfg.Source
	}
	return &Compiled{Configs: configs, SourceByID: sources}
}

// baseline derives assertion activations from policy fields alone. A
// policy without budgets yields no loop budget entry; absence of a cap
// is not a cap of zero.
func baseline(p *contracts.SafetyPolicy) []contracts.AssertionConfig {
	if p == nil {
		return nil
	}
	var out []contracts.AssertionConfig

	if p.Budgets != nil && p.Budgets.MaxSteps != nil {
		out = append(out, contracts.AssertionConfig{
			AssertionID: contracts.AssertLoopBudget,
			Enabled:     true,
			Params:      map[string]any{"max_steps": *p.Budgets.MaxSteps},
			Source:      contracts.SourcePolicyBaseline,
		})
	}

	if p.Scope != nil && len(p.Scope.AllowedApps) > 0 {
		apps := make([]any, 0, len(p.Scope.AllowedApps))
		for _, a := range p.Scope.AllowedApps {
			apps = append(apps, a)
		}
		out = append(out, contracts.AssertionConfig{
			AssertionID: contracts.AssertScopeForegroundApps,
			Enabled:     true,
			Params:      map[string]any{"allowed_apps": apps},
			Source:      contracts.SourcePolicyBaseline,
		})
	}

	for _, rule := range p.Predicates {
		if rule.ID == "" || rule.Expr == "" {
			continue
		}
		params := map[string]any{"expr": rule.Expr}
		if rule.EvidenceFact != "" {
			params["evidence_fact"] = rule.EvidenceFact
		}
		out = append(out, contracts.AssertionConfig{
			AssertionID:      contracts.FamilyMember(contracts.AssertCelPredicateFamily, rule.ID),
			Enabled:          true,
			Params:           params,
			SeverityOverride: rule.Severity,
			RiskOverride:     rule.RiskWeight,
			Source:           contracts.SourcePolicyBaseline,
		})
	}

	for _, rule := range p.Plugins {
		if rule.ID == "" || rule.Module == "" {
			continue
		}
		params := map[string]any{"module": rule.Module}
		if rule.SHA256 != "" {
			params["sha256"] = rule.SHA256
		}
		out = append(out, contracts.AssertionConfig{
			AssertionID:      contracts.FamilyMember(contracts.AssertWasmPluginFamily, rule.ID),
			Enabled:          true,
			Params:           params,
			SeverityOverride: rule.Severity,
			Source:           contracts.SourcePolicyBaseline,
		})
	}

	return out
}

// parseChecker accepts the two tolerated entry shapes: a bare
// assertion id string, or an object keyed by assertion_id (legacy
// key: id).
func parseChecker(idx int, entry any) (contracts.AssertionConfig, error) {
	switch v := entry.(type) {
	case string:
		if v == "" {
			return contracts.AssertionConfig{}, fmt.Errorf("entry %d: empty assertion id", idx)
		}
		return contracts.AssertionConfig{
			AssertionID: v,
			Enabled:     true,
			Source:      contracts.SourceEvalOverride,
		}, nil

	case map[string]any:
		id, err := checkerID(v)
		if err != nil {
			return contracts.AssertionConfig{}, fmt.Errorf("entry %d: %w", idx, err)
		}
		cfg := contracts.AssertionConfig{
			AssertionID: id,
			Enabled:     true,
			Source:      contracts.SourceEvalOverride,
		}
		if raw, ok := v["enabled"]; ok {
			b, ok := raw.(bool)
			if !ok {
				return contracts.AssertionConfig{}, fmt.Errorf("entry %d (%s): enabled is %T, want bool", idx, id, raw)
			}
			cfg.Enabled = b
		}
		if raw, ok := v["params"]; ok && raw != nil {
			params, ok := raw.(map[string]any)
			if !ok {
				return contracts.AssertionConfig{}, fmt.Errorf("entry %d (%s): params is %T, want object", idx, id, raw)
			}
			cfg.Params = params
		}
		if raw, ok := v["severity_override"]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return contracts.AssertionConfig{}, fmt.Errorf("entry %d (%s): severity_override is %T, want string", idx, id, raw)
			}
			cfg.SeverityOverride = contracts.Severity(s)
		}
		if raw, ok := v["risk_weight_bucket_override"]; ok && raw != nil {
			s, ok := raw.(string)
			if !ok {
				return contracts.AssertionConfig{}, fmt.Errorf("entry %d (%s): risk_weight_bucket_override is %T, want string", idx, id, raw)
			}
			cfg.RiskOverride = contracts.RiskWeightBucket(s)
		}
		return cfg, nil

	default:
		return contracts.AssertionConfig{}, fmt.Errorf("entry %d: unsupported type %T", idx, entry)
	}
}

func checkerID(v map[string]any) (string, error) {
	for _, key := range []string{"assertion_id", "id"} {
		raw, ok := v[key]
		if !ok {
			continue
		}
		id, ok := raw.(string)
		if !ok || id == "" {
			return "", fmt.Errorf("%s is %T, want non-empty string", key, raw)
		}
		return id, nil
	}
	return "", fmt.Errorf("missing assertion_id")
}

// layer applies an eval override on top of a baseline entry. Fields
// the override leaves unspecified inherit from the baseline, so legacy
// bare-string entries keep the policy's params.
func layer(base, override contracts.AssertionConfig) contracts.AssertionConfig {
	out := override
	if out.Params == nil {
		out.Params = base.Params
	}
	if out.SeverityOverride == "" {
		out.SeverityOverride = base.SeverityOverride
	}
	if out.RiskOverride == "" {
		out.RiskOverride = base.RiskOverride
	}
	out.Source = contracts.SourceEvalOverride
	return out
}

// forceDefaults guarantees the two non-negotiable entries: success
// checking always runs, and the safety set is never empty. An eval
// that disables every safety checker still gets the foreground scope
// observer.
func forceDefaults(merged map[string]contracts.AssertionConfig) {
	if _, ok := merged[contracts.AssertSuccessOracle]; !ok {
		merged[contracts.AssertSuccessOracle] = contracts.AssertionConfig{
			AssertionID: contracts.AssertSuccessOracle,
			Enabled:     true,
			Source:      contracts.SourceForcedDefault,
		}
	}

	for id, cfg := range merged {
		if cfg.Enabled && contracts.IsSafetyAssertion(id) {
			return
		}
	}
	merged[contracts.AssertScopeForegroundApps] = contracts.AssertionConfig{
		AssertionID: contracts.AssertScopeForegroundApps,
		Enabled:     true,
		Params:      map[string]any{"allowed_apps": []any{}},
		Source:      contracts.SourceForcedDefault,
	}
}

func errorPlaceholder(idx int, entry any, parseErr error) contracts.AssertionConfig {
	id := fmt.Sprintf("invalid_checker_%d", idx)
	if m, ok := entry.(map[string]any); ok {
		if known, err := checkerID(m); err == nil {
			id = known
		}
	}
	return contracts.AssertionConfig{
		AssertionID: id,
		Enabled:     false,
		Source:      contracts.SourceConfigError,
		ConfigError: parseErr.Error(),
	}
}
