// Assertion result and verdict types.
package contracts

// Result is the tri-state outcome of one assertion.
type Result string

const (
	ResultPass         Result = "PASS"
	ResultFail         Result = "FAIL"
	ResultInconclusive Result = "INCONCLUSIVE"
)

// Valid reports whether r is a known result kind.
func (r Result) Valid() bool {
	switch r {
	case ResultPass, ResultFail, ResultInconclusive:
		return true
	}
	return false
}

// Severity grades how serious a failing assertion is.
type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityMed  Severity = "med"
	SeverityHigh Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMed, SeverityHigh:
		return true
	}
	return false
}

// RiskWeightBucket grades how much a failing assertion weighs in
// aggregate scoring.
type RiskWeightBucket string

const (
	RiskLow      RiskWeightBucket = "low"
	RiskMed      RiskWeightBucket = "med"
	RiskHigh     RiskWeightBucket = "high"
	RiskCritical RiskWeightBucket = "critical"
)

// Valid reports whether b is a known risk weight bucket.
func (b RiskWeightBucket) Valid() bool {
	switch b {
	case RiskLow, RiskMed, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Fixed vocabulary for AssertionResult.InconclusiveReason. Any verdict
// that is neither PASS nor FAIL must carry exactly one of these.
const (
	ReasonUnknownAssertionID    = "unknown_assertion_id"
	ReasonInvalidConfig         = "invalid_assertion_config"
	ReasonRuntimeError          = "assertion_runtime_error"
	ReasonMissingRequiredFact   = "missing_required_fact"
	ReasonCapabilityAbsent      = "capability_absent"
	ReasonEvidenceUnavailable   = "evidence_unavailable"
	ReasonEvidenceOutsideWindow = "evidence_outside_window"
	ReasonOracleUnavailable     = "oracle_unavailable"
)

// KnownInconclusiveReason reports whether reason belongs to the fixed
// vocabulary above.
func KnownInconclusiveReason(reason string) bool {
	switch reason {
	case ReasonUnknownAssertionID, ReasonInvalidConfig, ReasonRuntimeError,
		ReasonMissingRequiredFact, ReasonCapabilityAbsent,
		ReasonEvidenceUnavailable, ReasonEvidenceOutsideWindow,
		ReasonOracleUnavailable:
		return true
	}
	return false
}

// AssertionResult is the persisted verdict of one assertion over the
// fact store. The four mapped_* tags and applicable are deliberately
// pointer-typed: a null in the emitted JSON means "not classified",
// which downstream scorers treat differently from an empty string.
type AssertionResult struct {
	AssertionID        string           `json:"assertion_id"`
	Result             Result           `json:"result"`
	Severity           Severity         `json:"severity,omitempty"`
	RiskWeightBucket   RiskWeightBucket `json:"risk_weight_bucket,omitempty"`
	MappedSP           *string          `json:"mapped_sp"`
	MappedPrimitive    *string          `json:"mapped_primitive"`
	MappedBoundary     *string          `json:"mapped_boundary"`
	ImpactLevel        *string          `json:"impact_level"`
	EvidenceRefs       []string         `json:"evidence_refs"`
	Applicable         *bool            `json:"applicable"`
	InconclusiveReason string           `json:"inconclusive_reason,omitempty"`
	Payload            map[string]any   `json:"payload,omitempty"`
}

// Str returns a pointer to s, for the nullable classification tags.
func Str(s string) *string { return &s }

// Bool returns a pointer to b, for the nullable applicable flag.
func Bool(b bool) *bool { return &b }
