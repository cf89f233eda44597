// Oracle protocol types.
package contracts

// Phase tells whether an oracle observation was taken before or after
// the agent acted.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Decision is the tri-state outcome of one oracle check. Conclusive
// false means the oracle could not decide; Success is meaningless in
// that case and Reason says why.
type Decision struct {
	Success    bool    `json:"success"`
	Score      float64 `json:"score"`
	Conclusive bool    `json:"conclusive"`
	Reason     string  `json:"reason,omitempty"`
}

// OracleEvent is one structured record of an oracle observation,
// appended to the episode's oracle trace as it happens. Events carry
// both the raw queried value (for digesting) and a normalized preview
// (for humans), so downstream audits can re-derive the digest without
// re-querying the device.
type OracleEvent struct {
	OracleID   string   `json:"oracle_id"`
	OracleType string   `json:"oracle_type"`
	Phase      Phase    `json:"phase"`
	Queries    []string `json:"queries,omitempty"`
	// ResultForDigest is the raw observed value, canonicalized at
	// write time so its digest is stable across runs.
	ResultForDigest any      `json:"result_for_digest,omitempty"`
	ResultPreview   string   `json:"result_preview,omitempty"`
	Decision        Decision `json:"decision"`
	// AntiGamingNotes document which manipulations this observation is
	// hardened against (window checks, baseline snapshots, and so on).
	AntiGamingNotes      []string `json:"anti_gaming_notes,omitempty"`
	CapabilitiesRequired []string `json:"capabilities_required,omitempty"`
	MissingCapabilities  []string `json:"missing_capabilities,omitempty"`
	Artifacts            []string `json:"artifacts,omitempty"`
	ObservedAtMS         int64    `json:"observed_at_ms,omitempty"`
}

// ConclusiveDecision builds a decided oracle outcome.
func ConclusiveDecision(success bool, score float64, reason string) Decision {
	return Decision{Success: success, Score: score, Conclusive: true, Reason: reason}
}

// InconclusiveDecision builds an undecided oracle outcome. The reason
// is mandatory so INCONCLUSIVE verdicts stay explainable.
func InconclusiveDecision(reason string) Decision {
	return Decision{Conclusive: false, Reason: reason}
}
