package assertion

import (
	"context"
	"testing"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func celConfig(params map[string]any) contracts.AssertionConfig {
	return enabled(contracts.FamilyMember(contracts.AssertCelPredicateFamily, "p1"), params)
}

func signalFact() contracts.Fact {
	return contracts.Fact{
		FactID:        "fact.custom_signal",
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceDeviceQuery,
		EvidenceRefs:  []string{"logcat.txt", "logcat.txt:L17"},
		Payload:       map[string]any{"alarm": true},
	}
}

func TestCelPredicatePass(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t, stepFact(5)),
		Config: celConfig(map[string]any{"expr": `facts["fact.step_count"].step_count <= 10`}),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultPass, res.Result)
	assert.Equal(t, true, res.Payload["value"])
}

func TestCelPredicateFailWithLineEvidence(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts: newStore(t, signalFact()),
		Config: celConfig(map[string]any{
			"expr":          `!facts["fact.custom_signal"].alarm`,
			"evidence_fact": "fact.custom_signal",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.ResultFail, res.Result)
	assert.Equal(t, []string{"logcat.txt:L17"}, res.EvidenceRefs)
	assert.Equal(t, "fact.custom_signal", res.Payload["evidence_fact"])
}

func TestCelPredicateFailWithoutLineEvidence(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts: newStore(t, foregroundFact()),
		Config: celConfig(map[string]any{
			"expr":          `facts["fact.foreground_pkg_seq"].packages.size() <= 1`,
			"evidence_fact": "fact.foreground_pkg_seq",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.ResultInconclusive, res.Result)
	assert.Equal(t, contracts.ReasonEvidenceUnavailable, res.InconclusiveReason)
}

func TestCelPredicateParamsAndCaseVars(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts: newStore(t, stepFact(5)),
		Case:  &contracts.CaseContext{TaskID: "task-3", CaseID: "case-7", ImpactLevel: "high"},
		Config: celConfig(map[string]any{
			"expr":      `params.threshold <= facts["fact.step_count"].step_count && case.impact_level == "high"`,
			"threshold": 3,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultPass, res.Result)
}

func TestCelPredicateNonBool(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t),
		Config: celConfig(map[string]any{"expr": `1 + 1`}),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultInconclusive, res.Result)
	assert.Equal(t, contracts.ReasonInvalidConfig, res.InconclusiveReason)
}

func TestCelPredicateCompileError(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t),
		Config: celConfig(map[string]any{"expr": `facts[`}),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultInconclusive, res.Result)
	assert.Equal(t, contracts.ReasonInvalidConfig, res.InconclusiveReason)
}

func TestCelPredicateBannedFunction(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t),
		Config: celConfig(map[string]any{"expr": `now() < 5`}),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultInconclusive, res.Result)
	assert.Equal(t, contracts.ReasonInvalidConfig, res.InconclusiveReason)
	assert.Contains(t, res.Payload["config_error"], "now")
}

func TestCelPredicateMissingExpr(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	res, err := c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t),
		Config: celConfig(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ResultInconclusive, res.Result)
	assert.Equal(t, contracts.ReasonInvalidConfig, res.InconclusiveReason)
}

func TestCelPredicateEvalErrorSurfacesAsError(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	_, err = c.Evaluate(context.Background(), &EvalContext{
		Facts:  newStore(t),
		Config: celConfig(map[string]any{"expr": `facts["absent"].field == 1`}),
	})
	assert.Error(t, err)
}

func TestCelPredicateProgramCache(t *testing.T) {
	c, err := NewCelPredicate()
	require.NoError(t, err)

	ec := &EvalContext{
		Facts:  newStore(t, stepFact(5)),
		Config: celConfig(map[string]any{"expr": `facts["fact.step_count"].step_count <= 10`}),
	}
	_, err = c.Evaluate(context.Background(), ec)
	require.NoError(t, err)
	_, err = c.Evaluate(context.Background(), ec)
	require.NoError(t, err)

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.programs, 1)
}

func TestCelPredicateThroughEngine(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	defer reg.Close()
	eng := NewEngine(reg)

	cfg := enabled(
		contracts.FamilyMember(contracts.AssertCelPredicateFamily, "alarm_off"),
		map[string]any{
			"expr":          `!facts["fact.custom_signal"].alarm`,
			"evidence_fact": "fact.custom_signal",
		},
	)
	cfg.SeverityOverride = "high"

	results := eng.Run(context.Background(), []contracts.AssertionConfig{cfg}, newStore(t, signalFact()), nil)
	require.Len(t, results, 1)
	assert.Equal(t, "SA_CelPredicate/alarm_off", results[0].AssertionID)
	assert.Equal(t, contracts.ResultFail, results[0].Result)
	assert.Equal(t, contracts.SeverityHigh, results[0].Severity)
	assert.Equal(t, []string{"logcat.txt:L17"}, results[0].EvidenceRefs)
}
