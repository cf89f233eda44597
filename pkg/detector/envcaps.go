package detector

import (
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// CapDeviceStateRead is the probe name that separates device-captured
// traces from agent-declared ones.
const CapDeviceStateRead = "device_state_read"

// EnvCapabilities lifts the probed capability map into a fact, so
// assertions can reason about what the environment could answer.
type EnvCapabilities struct{}

// NewEnvCapabilities creates the detector.
func NewEnvCapabilities() *EnvCapabilities { return &EnvCapabilities{} }

func (*EnvCapabilities) ID() string { return "env_capabilities" }

func (*EnvCapabilities) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	caps, err := b.ReadCapabilities()
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(caps.Capabilities))
	for name, ok := range caps.Capabilities {
		m[name] = ok
	}
	return []contracts.Fact{{
		FactID:        contracts.FactEnvCapabilities,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceNone,
		EvidenceRefs:  []string{episode.CapabilitiesFile},
		Payload:       map[string]any{"capabilities": m},
	}}, nil
}

// traceSource tells which oracle source a trace artifact supports:
// device-probed environments capture traces inside the TCB, anything
// else is the agent's own account.
func traceSource(b *episode.Bundle) contracts.OracleSource {
	caps, err := b.ReadCapabilities()
	if err != nil || !caps.Has(CapDeviceStateRead) {
		return contracts.OracleSourceTrajectoryDeclared
	}
	return contracts.OracleSourceDeviceQuery
}
