package audit

import (
	"strings"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Counts tallies assertion verdicts by outcome.
type Counts struct {
	Pass         int `json:"pass"`
	Fail         int `json:"fail"`
	Inconclusive int `json:"inconclusive"`
}

// Violation is one failed safety assertion as surfaced in summary.json.
type Violation struct {
	AssertionID      string                     `json:"assertion_id"`
	Severity         contracts.Severity         `json:"severity,omitempty"`
	RiskWeightBucket contracts.RiskWeightBucket `json:"risk_weight_bucket,omitempty"`
	EvidenceRefs     []string                   `json:"evidence_refs"`
}

// Summary is the episode-level rollup of one audit pass.
type Summary struct {
	// Outcome is FAIL when any assertion failed, PASS when every
	// assertion passed, INCONCLUSIVE otherwise (including an empty
	// result set).
	Outcome contracts.Result `json:"outcome"`
	// TaskSuccess mirrors the success-oracle verdict; nil when that
	// verdict was inconclusive or never ran.
	TaskSuccess *bool  `json:"task_success"`
	Counts      Counts `json:"result_counts"`
	// ApplicableRate excludes results marked applicable=false from its
	// numerator; both rates share the full result count as denominator.
	ApplicableRate   float64                `json:"applicable_rate"`
	InconclusiveRate float64                `json:"inconclusive_rate"`
	TrustLevel       contracts.TrustLevel   `json:"trust_level"`
	OracleSource     contracts.OracleSource `json:"oracle_source"`
	Violations       []Violation            `json:"violations"`
}

func buildSummary(facts []contracts.Fact, results []contracts.AssertionResult) Summary {
	s := Summary{Violations: []Violation{}}

	applicable := 0
	for _, r := range results {
		switch r.Result {
		case contracts.ResultPass:
			s.Counts.Pass++
		case contracts.ResultFail:
			s.Counts.Fail++
		default:
			s.Counts.Inconclusive++
		}
		if r.Applicable == nil || *r.Applicable {
			applicable++
		}
		if r.Result == contracts.ResultFail && strings.HasPrefix(r.AssertionID, contracts.SafetyAssertionPrefix) {
			s.Violations = append(s.Violations, Violation{
				AssertionID:      r.AssertionID,
				Severity:         r.Severity,
				RiskWeightBucket: r.RiskWeightBucket,
				EvidenceRefs:     r.EvidenceRefs,
			})
		}
		if r.AssertionID == contracts.AssertSuccessOracle {
			switch r.Result {
			case contracts.ResultPass:
				s.TaskSuccess = contracts.Bool(true)
			case contracts.ResultFail:
				s.TaskSuccess = contracts.Bool(false)
			}
		}
	}

	total := len(results)
	switch {
	case s.Counts.Fail > 0:
		s.Outcome = contracts.ResultFail
	case s.Counts.Inconclusive > 0 || total == 0:
		s.Outcome = contracts.ResultInconclusive
	default:
		s.Outcome = contracts.ResultPass
	}
	if total > 0 {
		s.ApplicableRate = float64(applicable) / float64(total)
		s.InconclusiveRate = float64(s.Counts.Inconclusive) / float64(total)
	}

	s.TrustLevel, s.OracleSource = trustFromFacts(facts)
	return s
}

// trustFromFacts grades the evidence behind the verdict. The oracle
// events fact decides when present: its provenance is what the success
// verdict actually rests on. Otherwise the strongest provenance any
// fact carries stands in.
func trustFromFacts(facts []contracts.Fact) (contracts.TrustLevel, contracts.OracleSource) {
	best := contracts.OracleSourceNone
	for _, f := range facts {
		if f.FactID == contracts.FactOracleEvents {
			return contracts.TrustFor(f.OracleSource), f.OracleSource
		}
		if contracts.TrustFor(f.OracleSource).Rank() > contracts.TrustFor(best).Rank() {
			best = f.OracleSource
		}
	}
	return contracts.TrustFor(best), best
}

// absorbPrior keeps a previously recorded trust signal when this pass
// could not establish one of its own. A pass that did derive provenance
// from facts overrides the prior value in either direction.
func (s *Summary) absorbPrior(prior priorAudit) {
	if s.TrustLevel == contracts.TrustUnknown && prior.Trust.Rank() > contracts.TrustUnknown.Rank() {
		s.TrustLevel = prior.Trust
		s.OracleSource = prior.Source
	}
}

// auditBlock is the object merged into every summary.json under the
// top-level "audit" key.
func (r *Report) auditBlock() map[string]any {
	return map[string]any{
		"run_id":            r.RunID,
		"engine_version":    EngineVersion,
		"audited_at_ms":     r.AuditedAtMS,
		"outcome":           r.Summary.Outcome,
		"task_success":      r.Summary.TaskSuccess,
		"result_counts":     r.Summary.Counts,
		"applicable_rate":   r.Summary.ApplicableRate,
		"inconclusive_rate": r.Summary.InconclusiveRate,
		"trust_level":       r.Summary.TrustLevel,
		"oracle_source":     r.Summary.OracleSource,
		"facts_digest":      r.FactsDigest,
		"assertions_digest": r.AssertionsDigest,
	}
}
