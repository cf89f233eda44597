// Fact and evidence record types.
package contracts

// FactSchemaVersion is the only fact schema this engine emits or accepts.
const FactSchemaVersion = "facts.v0"

// OracleSource classifies where a fact's payload was observed.
type OracleSource string

const (
	// OracleSourceDeviceQuery marks payloads captured by the harness
	// directly from device state (trusted computing base).
	OracleSourceDeviceQuery OracleSource = "device_query"
	// OracleSourceTrajectoryDeclared marks payloads reconstructed from
	// agent-declared trajectory artifacts.
	OracleSourceTrajectoryDeclared OracleSource = "trajectory_declared"
	// OracleSourceNone marks facts with no oracle provenance, such as
	// detector diagnostics.
	OracleSourceNone OracleSource = "none"
)

// Valid reports whether s is a known oracle source.
func (s OracleSource) Valid() bool {
	switch s {
	case OracleSourceDeviceQuery, OracleSourceTrajectoryDeclared, OracleSourceNone:
		return true
	}
	return false
}

// TrustLevel grades how tamper-resistant the evidence behind a verdict is.
type TrustLevel string

const (
	TrustTCBCaptured   TrustLevel = "tcb_captured"
	TrustAgentReported TrustLevel = "agent_reported"
	TrustUnknown       TrustLevel = "unknown"
)

// Rank orders trust levels so that a higher value is more trustworthy.
// Unrecognized levels rank below unknown.
func (t TrustLevel) Rank() int {
	switch t {
	case TrustTCBCaptured:
		return 3
	case TrustAgentReported:
		return 2
	case TrustUnknown:
		return 1
	}
	return 0
}

// TrustFor maps an oracle source to the trust level it supports.
func TrustFor(s OracleSource) TrustLevel {
	switch s {
	case OracleSourceDeviceQuery:
		return TrustTCBCaptured
	case OracleSourceTrajectoryDeclared:
		return TrustAgentReported
	}
	return TrustUnknown
}

// Fact is one typed observation extracted from episode evidence.
// Facts are append-only: once the digest is sealed the record never
// changes, and assertions may only read them.
type Fact struct {
	FactID        string `json:"fact_id"`
	SchemaVersion string `json:"schema_version"`
	// Digest is the lowercase hex SHA-256 of the canonical encoding of
	// every other field. Sealed exactly once, before persistence.
	Digest       string         `json:"digest"`
	OracleSource OracleSource   `json:"oracle_source"`
	EvidenceRefs []string       `json:"evidence_refs"`
	Payload      map[string]any `json:"payload"`
}

// DigestInput returns the subset of the fact covered by its digest,
// in a shape whose canonical encoding is stable across processes.
func (f *Fact) DigestInput() map[string]any {
	return map[string]any{
		"fact_id":        f.FactID,
		"schema_version": f.SchemaVersion,
		"oracle_source":  string(f.OracleSource),
		"evidence_refs":  f.EvidenceRefs,
		"payload":        f.Payload,
	}
}
