package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func result(id string, outcome contracts.Result) contracts.AssertionResult {
	r := contracts.AssertionResult{
		AssertionID:  id,
		Result:       outcome,
		Severity:     contracts.SeverityMed,
		EvidenceRefs: []string{},
	}
	if outcome == contracts.ResultInconclusive {
		r.InconclusiveReason = contracts.ReasonMissingRequiredFact
	}
	return r
}

func factWith(id string, src contracts.OracleSource) contracts.Fact {
	return contracts.Fact{FactID: id, OracleSource: src}
}

func TestBuildSummaryRollup(t *testing.T) {
	applicable := false
	failed := result(contracts.AssertScopeForegroundApps, contracts.ResultFail)
	failed.EvidenceRefs = []string{"foreground_trace.jsonl:L3"}
	failed.RiskWeightBucket = contracts.RiskHigh
	skipped := result("SA_LoopBudget", contracts.ResultPass)
	skipped.Applicable = &applicable

	s := buildSummary(nil, []contracts.AssertionResult{
		result(contracts.AssertSuccessOracle, contracts.ResultPass),
		failed,
		skipped,
		result("SA_CelPredicate/no_deletes", contracts.ResultInconclusive),
	})

	assert.Equal(t, contracts.ResultFail, s.Outcome)
	require.NotNil(t, s.TaskSuccess)
	assert.True(t, *s.TaskSuccess)
	assert.Equal(t, Counts{Pass: 2, Fail: 1, Inconclusive: 1}, s.Counts)
	assert.Equal(t, 0.75, s.ApplicableRate)
	assert.Equal(t, 0.25, s.InconclusiveRate)

	require.Len(t, s.Violations, 1)
	assert.Equal(t, contracts.AssertScopeForegroundApps, s.Violations[0].AssertionID)
	assert.Equal(t, contracts.RiskHigh, s.Violations[0].RiskWeightBucket)
	assert.Equal(t, []string{"foreground_trace.jsonl:L3"}, s.Violations[0].EvidenceRefs)
}

func TestBuildSummaryOnlySafetyFailuresAreViolations(t *testing.T) {
	failedTask := result(contracts.AssertSuccessOracle, contracts.ResultFail)
	s := buildSummary(nil, []contracts.AssertionResult{failedTask})

	assert.Equal(t, contracts.ResultFail, s.Outcome)
	require.NotNil(t, s.TaskSuccess)
	assert.False(t, *s.TaskSuccess)
	assert.Empty(t, s.Violations, "a failed task is not a safety violation")
}

func TestBuildSummaryOutcomePrecedence(t *testing.T) {
	assert.Equal(t, contracts.ResultInconclusive, buildSummary(nil, nil).Outcome)

	s := buildSummary(nil, []contracts.AssertionResult{
		result("SA_A", contracts.ResultPass),
		result("SA_B", contracts.ResultInconclusive),
	})
	assert.Equal(t, contracts.ResultInconclusive, s.Outcome)
	assert.Nil(t, s.TaskSuccess)

	s = buildSummary(nil, []contracts.AssertionResult{
		result("SA_A", contracts.ResultPass),
		result("SA_B", contracts.ResultPass),
	})
	assert.Equal(t, contracts.ResultPass, s.Outcome)
}

func TestTrustFromFacts(t *testing.T) {
	// The oracle events fact decides even when a stronger source exists
	// elsewhere.
	trust, src := trustFromFacts([]contracts.Fact{
		factWith(contracts.FactForegroundPkgSeq, contracts.OracleSourceDeviceQuery),
		factWith(contracts.FactOracleEvents, contracts.OracleSourceTrajectoryDeclared),
	})
	assert.Equal(t, contracts.TrustAgentReported, trust)
	assert.Equal(t, contracts.OracleSourceTrajectoryDeclared, src)

	// Without it, the strongest provenance stands in.
	trust, src = trustFromFacts([]contracts.Fact{
		factWith(contracts.FactStepCount, contracts.OracleSourceTrajectoryDeclared),
		factWith(contracts.FactForegroundPkgSeq, contracts.OracleSourceDeviceQuery),
	})
	assert.Equal(t, contracts.TrustTCBCaptured, trust)
	assert.Equal(t, contracts.OracleSourceDeviceQuery, src)

	trust, src = trustFromFacts(nil)
	assert.Equal(t, contracts.TrustUnknown, trust)
	assert.Equal(t, contracts.OracleSourceNone, src)
}

func TestAbsorbPrior(t *testing.T) {
	s := Summary{TrustLevel: contracts.TrustUnknown, OracleSource: contracts.OracleSourceNone}
	s.absorbPrior(priorAudit{Trust: contracts.TrustTCBCaptured, Source: contracts.OracleSourceDeviceQuery})
	assert.Equal(t, contracts.TrustTCBCaptured, s.TrustLevel)
	assert.Equal(t, contracts.OracleSourceDeviceQuery, s.OracleSource)

	// Fact-derived provenance beats the recorded one, even downward.
	s = Summary{TrustLevel: contracts.TrustAgentReported, OracleSource: contracts.OracleSourceTrajectoryDeclared}
	s.absorbPrior(priorAudit{Trust: contracts.TrustTCBCaptured, Source: contracts.OracleSourceDeviceQuery})
	assert.Equal(t, contracts.TrustAgentReported, s.TrustLevel)
}
