package detector

import (
	"github.com/Masterminds/semver/v3"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// SupportedHarness is the harness release range whose evidence layout
// this engine understands.
const SupportedHarness = ">= 1.0.0, < 2.0.0"

// HarnessCompat checks the recorded harness version against the
// engine's supported range and the eval's declared minimum. The result
// is a fact, not a hard stop: assertions decide what incompatibility
// means for their verdicts.
type HarnessCompat struct {
	supported string
}

// NewHarnessCompat creates the detector with the default range.
func NewHarnessCompat() *HarnessCompat {
	return &HarnessCompat{supported: SupportedHarness}
}

func (*HarnessCompat) ID() string { return "harness_compat" }

func (d *HarnessCompat) Extract(b *episode.Bundle, cc *contracts.CaseContext) ([]contracts.Fact, error) {
	m, err := b.ReadManifest()
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"harness_version": m.HarnessVersion,
		"supported_range": d.supported,
	}

	v, err := semver.NewVersion(m.HarnessVersion)
	if err != nil {
		payload["compatible"] = false
		payload["parse_error"] = err.Error()
	} else {
		c, err := semver.NewConstraint(d.supported)
		if err != nil {
			return nil, err
		}
		payload["compatible"] = c.Check(v)

		if cc != nil && cc.Eval != nil && cc.Eval.MinHarness != "" {
			payload["min_harness"] = cc.Eval.MinHarness
			if floor, err := semver.NewVersion(cc.Eval.MinHarness); err != nil {
				payload["meets_min"] = false
				payload["min_parse_error"] = err.Error()
			} else {
				payload["meets_min"] = !v.LessThan(floor)
			}
		}
	}

	return []contracts.Fact{{
		FactID:        contracts.FactHarnessCompat,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceNone,
		EvidenceRefs:  []string{episode.ManifestFile},
		Payload:       payload,
	}}, nil
}
