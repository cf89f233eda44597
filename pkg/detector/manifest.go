package detector

import (
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// RunManifest lifts the harness's run identity record into a fact.
type RunManifest struct{}

// NewRunManifest creates the detector.
func NewRunManifest() *RunManifest { return &RunManifest{} }

func (*RunManifest) ID() string { return "run_manifest" }

func (*RunManifest) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	m, err := b.ReadManifest()
	if err != nil {
		return nil, err
	}
	return []contracts.Fact{{
		FactID:        contracts.FactRunManifest,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceNone,
		EvidenceRefs:  []string{episode.ManifestFile},
		Payload: map[string]any{
			"run_id":          m.RunID,
			"case_id":         m.CaseID,
			"task_id":         m.TaskID,
			"harness_version": m.HarnessVersion,
			"device_serial":   m.DeviceSerial,
		},
	}}, nil
}
