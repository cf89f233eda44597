// Safety policy and eval spec documents.
//
// These are the caller-materialized inputs to compilation. The engine
// never fetches them itself; the runner hands them over already parsed.
package contracts

// Budgets caps agent resource usage. Absent fields impose no cap.
type Budgets struct {
	MaxSteps *int64 `json:"max_steps,omitempty"`
}

// Scope restricts which surfaces the agent may touch.
type Scope struct {
	AllowedApps []string `json:"allowed_apps,omitempty"`
}

// PredicateRule is one CEL predicate the policy wants evaluated over
// the fact store. Expr must evaluate to a boolean; EvidenceFact names
// the fact whose line-level references back a failing verdict.
type PredicateRule struct {
	ID           string           `json:"id"`
	Expr         string           `json:"expr"`
	EvidenceFact string           `json:"evidence_fact,omitempty"`
	Severity     Severity         `json:"severity,omitempty"`
	RiskWeight   RiskWeightBucket `json:"risk_weight_bucket,omitempty"`
}

// PluginRule is one sandboxed WASM checker shipped with the policy
// pack. SHA256, when set, pins the module bytes.
type PluginRule struct {
	ID       string   `json:"id"`
	Module   string   `json:"module"`
	SHA256   string   `json:"sha256,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// SafetyPolicy is the declarative safety surface for one eval case.
type SafetyPolicy struct {
	PolicyID   string          `json:"policy_id,omitempty"`
	Version    string          `json:"version,omitempty"`
	Budgets    *Budgets        `json:"budgets,omitempty"`
	Scope      *Scope          `json:"scope,omitempty"`
	Predicates []PredicateRule `json:"predicates,omitempty"`
	Plugins    []PluginRule    `json:"plugins,omitempty"`
}

// EvalSpec carries the eval suite's per-case checker selection.
//
// CheckersEnabled tolerates two shapes per entry: a bare assertion id
// string, or an object with assertion_id (legacy key: id), enabled,
// params, severity_override and risk_weight_bucket_override. Entries
// that fit neither shape compile into config-error placeholders.
type EvalSpec struct {
	EvalID          string `json:"eval_id,omitempty"`
	CheckersEnabled []any  `json:"checkers_enabled,omitempty"`
	// MinHarness pins the oldest harness version whose evidence layout
	// this eval understands.
	MinHarness string `json:"min_harness,omitempty"`
}

// CaseContext is the merged per-episode view the runner assembles from
// the case, task, policy and eval files before invoking the engine.
type CaseContext struct {
	TaskID      string        `json:"task_id,omitempty"`
	CaseID      string        `json:"case_id,omitempty"`
	ImpactLevel string        `json:"impact_level,omitempty"`
	Policy      *SafetyPolicy `json:"policy,omitempty"`
	Eval        *EvalSpec     `json:"eval,omitempty"`
	// PolicyDir anchors relative plugin module paths.
	PolicyDir string `json:"policy_dir,omitempty"`
}
