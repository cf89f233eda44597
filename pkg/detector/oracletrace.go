package detector

import (
	"encoding/json"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// OracleEvents replays the recorded oracle trace into a fact. The
// success checker never touches the trace file itself; it reads this
// fact, so the same window and channel checks apply everywhere.
type OracleEvents struct{}

// NewOracleEvents creates the detector.
func NewOracleEvents() *OracleEvents { return &OracleEvents{} }

func (*OracleEvents) ID() string { return "oracle_events" }

func (*OracleEvents) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	lines, err := b.ReadJSONL(episode.OracleTraceFile)
	if err != nil {
		return nil, err
	}

	windows := episode.Time{}
	if m, err := b.ReadManifest(); err == nil {
		windows = m.Windows()
	}
	window := windows.For(episode.ClockHost)

	refs := []string{episode.OracleTraceFile}
	var (
		events    []map[string]any
		malformed []int
	)
	for _, line := range lines {
		var ev contracts.OracleEvent
		if err := json.Unmarshal(line.Raw, &ev); err != nil || ev.OracleID == "" {
			malformed = append(malformed, line.N)
			continue
		}

		inWindow := true
		if window.Defined() && ev.ObservedAtMS != 0 {
			inWindow = window.Contains(ev.ObservedAtMS)
		}

		events = append(events, map[string]any{
			"line":           line.N,
			"oracle_id":      ev.OracleID,
			"oracle_type":    ev.OracleType,
			"phase":          string(ev.Phase),
			"conclusive":     ev.Decision.Conclusive,
			"success":        ev.Decision.Success,
			"score":          ev.Decision.Score,
			"reason":         ev.Decision.Reason,
			"observed_at_ms": ev.ObservedAtMS,
			"in_window":      inWindow,
		})
		refs = append(refs, contracts.LineRef(episode.OracleTraceFile, line.N))
	}

	payload := map[string]any{
		"events":     events,
		"trace_file": episode.OracleTraceFile,
	}
	if len(malformed) > 0 {
		payload["malformed_lines"] = malformed
	}

	return []contracts.Fact{{
		FactID:        contracts.FactOracleEvents,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  traceSource(b),
		EvidenceRefs:  refs,
		Payload:       payload,
	}}, nil
}
