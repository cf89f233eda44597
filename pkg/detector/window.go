package detector

import (
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// TimeWindow lifts the manifest's clock windows into a fact. Windows
// are the anchor for every out-of-window evidence check downstream.
type TimeWindow struct{}

// NewTimeWindow creates the detector.
func NewTimeWindow() *TimeWindow { return &TimeWindow{} }

func (*TimeWindow) ID() string { return "time_window" }

func (*TimeWindow) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	m, err := b.ReadManifest()
	if err != nil {
		return nil, err
	}
	w := m.Windows()
	return []contracts.Fact{{
		FactID:        contracts.FactTimeWindow,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceNone,
		EvidenceRefs:  []string{episode.ManifestFile},
		Payload: map[string]any{
			"host":           windowPayload(w.Host),
			"host_defined":   w.Host.Defined(),
			"device":         windowPayload(w.Device),
			"device_defined": w.Device.Defined(),
		},
	}}, nil
}

func windowPayload(w episode.TimeWindow) map[string]any {
	return map[string]any{
		"start_ms": w.StartMS,
		"end_ms":   w.EndMS,
		"slack_ms": w.SlackMS,
	}
}
