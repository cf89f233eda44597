package assertion

import (
	"context"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// SuccessOracle finalizes the task-success verdict from the recorded
// oracle event trail. The authoritative decision is the last conclusive
// post-phase event observed inside the evaluation window; anything
// weaker leaves the verdict INCONCLUSIVE rather than guessing.
type SuccessOracle struct{}

// NewSuccessOracle creates the checker.
func NewSuccessOracle() *SuccessOracle { return &SuccessOracle{} }

func (*SuccessOracle) ID() string { return contracts.AssertSuccessOracle }

func (*SuccessOracle) Evaluate(_ context.Context, ec *EvalContext) (contracts.AssertionResult, error) {
	res := contracts.AssertionResult{
		AssertionID:  contracts.AssertSuccessOracle,
		Severity:     contracts.SeverityHigh,
		EvidenceRefs: []string{},
		Applicable:   contracts.Bool(true),
	}

	fact, ok := ec.Facts.Get(contracts.FactOracleEvents)
	if !ok {
		res.Result = contracts.ResultInconclusive
		res.InconclusiveReason = contracts.ReasonMissingRequiredFact
		res.Payload = map[string]any{"missing_fact": contracts.FactOracleEvents}
		return res, nil
	}

	traceFile := stringField(fact.Payload, "trace_file")
	events := mapSlice(fact.Payload["events"])

	// Later observations supersede earlier ones, so keep the last
	// in-window conclusive post event.
	var (
		decision map[string]any
		outside  bool
		sawPost  bool
	)
	for _, ev := range events {
		if stringField(ev, "phase") != string(contracts.PhasePost) {
			continue
		}
		sawPost = true
		if !boolField(ev, "conclusive") {
			continue
		}
		if !boolField(ev, "in_window") {
			outside = true
			continue
		}
		decision = ev
	}

	if decision == nil {
		res.Result = contracts.ResultInconclusive
		if outside {
			res.InconclusiveReason = contracts.ReasonEvidenceOutsideWindow
		} else {
			res.InconclusiveReason = contracts.ReasonOracleUnavailable
		}
		res.Payload = map[string]any{"post_events_seen": sawPost}
		return res, nil
	}

	line, _ := intField(decision, "line")
	if traceFile != "" && line > 0 {
		res.EvidenceRefs = []string{contracts.LineRef(traceFile, int(line))}
	}
	res.Payload = map[string]any{
		"oracle_id": stringField(decision, "oracle_id"),
		"line":      line,
	}
	if v, ok := decision["score"]; ok {
		res.Payload["score"] = v
	}
	if v, ok := decision["observed_at_ms"]; ok {
		res.Payload["observed_at_ms"] = v
	}
	if reason := stringField(decision, "reason"); reason != "" {
		res.Payload["reason"] = reason
	}

	if boolField(decision, "success") {
		res.Result = contracts.ResultPass
	} else {
		res.Result = contracts.ResultFail
	}
	return res, nil
}
