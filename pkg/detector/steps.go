package detector

import (
	"encoding/json"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// actionStep is the schema of one action_trace.jsonl line. Unknown
// fields are the agent's business; only these matter here.
type actionStep struct {
	Idx    int    `json:"idx"`
	Action string `json:"action"`
	TSMS   int64  `json:"ts_ms"`
}

// ActionSteps counts the agent's declared action steps and cross-checks
// their timestamps against the episode window. The count is what loop
// budget enforcement runs on.
type ActionSteps struct{}

// NewActionSteps creates the detector.
func NewActionSteps() *ActionSteps { return &ActionSteps{} }

func (*ActionSteps) ID() string { return "action_steps" }

func (*ActionSteps) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	lines, err := b.ReadJSONL(episode.ActionTraceFile)
	if err != nil {
		return nil, err
	}

	window := episode.TimeWindow{}
	if m, err := b.ReadManifest(); err == nil {
		window = m.Windows().For(episode.ClockHost)
	}

	var (
		firstTS, lastTS int64
		outOfWindow     int
		malformed       []int
	)
	for _, line := range lines {
		var step actionStep
		if err := json.Unmarshal(line.Raw, &step); err != nil {
			malformed = append(malformed, line.N)
			continue
		}
		if step.TSMS != 0 {
			if firstTS == 0 || step.TSMS < firstTS {
				firstTS = step.TSMS
			}
			if step.TSMS > lastTS {
				lastTS = step.TSMS
			}
			if window.Defined() && !window.Contains(step.TSMS) {
				outOfWindow++
			}
		}
	}

	payload := map[string]any{
		"step_count":          len(lines),
		"trace_file":          episode.ActionTraceFile,
		"out_of_window_steps": outOfWindow,
	}
	if firstTS != 0 {
		payload["first_ts_ms"] = firstTS
		payload["last_ts_ms"] = lastTS
	}
	if len(malformed) > 0 {
		payload["malformed_lines"] = malformed
	}

	return []contracts.Fact{{
		FactID:        contracts.FactStepCount,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceTrajectoryDeclared,
		EvidenceRefs:  []string{episode.ActionTraceFile},
		Payload:       payload,
	}}, nil
}
