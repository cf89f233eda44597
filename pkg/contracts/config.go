// Compiled assertion configuration.
package contracts

// ConfigSource records which layer of the policy merge produced a
// compiled assertion entry.
type ConfigSource string

const (
	// SourcePolicyBaseline marks entries derived from safety policy
	// fields (budgets, scope, predicates, plugins).
	SourcePolicyBaseline ConfigSource = "policy_baseline"
	// SourceEvalOverride marks entries the eval spec enabled or
	// replaced explicitly.
	SourceEvalOverride ConfigSource = "eval_override"
	// SourceForcedDefault marks entries the compiler injects so that
	// every run keeps a success check and at least one safety check.
	SourceForcedDefault ConfigSource = "forced_default"
	// SourceConfigError marks placeholders for eval entries that could
	// not be parsed. They are never executed; the assertion engine
	// surfaces them as INCONCLUSIVE verdicts instead.
	SourceConfigError ConfigSource = "config_error"
)

// AssertionConfig is one compiled, mergeable assertion activation.
type AssertionConfig struct {
	AssertionID string         `json:"assertion_id"`
	Enabled     bool           `json:"enabled"`
	Params      map[string]any `json:"params,omitempty"`
	// Overrides replace the assertion's default grading when set.
	SeverityOverride Severity         `json:"severity_override,omitempty"`
	RiskOverride     RiskWeightBucket `json:"risk_weight_bucket_override,omitempty"`
	Source           ConfigSource     `json:"source,omitempty"`
	// ConfigError holds the parse failure for SourceConfigError entries.
	ConfigError string `json:"config_error,omitempty"`
}
