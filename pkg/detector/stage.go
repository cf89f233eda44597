package detector

import (
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// ErrorFactPrefix namespaces the diagnostic facts emitted when a
// detector fails.
const ErrorFactPrefix = "fact.detector_error/"

// Stage runs every registered detector over a bundle and seals the
// extracted facts. One failing detector never takes the pass down: its
// error becomes a diagnostic fact and the stage moves on.
type Stage struct {
	reg    *Registry
	logger *slog.Logger
}

// NewStage creates a stage over the given registry.
func NewStage(reg *Registry) *Stage {
	return &Stage{
		reg:    reg,
		logger: slog.Default().With("component", "detector_stage"),
	}
}

// WithLogger overrides the stage logger.
func (s *Stage) WithLogger(logger *slog.Logger) *Stage {
	s.logger = logger
	return s
}

// Run executes all detectors in registration order and returns the
// sealed facts. The only errors returned are sealing failures; per-
// detector failures are reported in-band as fact.detector_error facts.
func (s *Stage) Run(b *episode.Bundle, cc *contracts.CaseContext) ([]contracts.Fact, error) {
	var out []contracts.Fact
	for _, d := range s.reg.Detectors() {
		facts, err := safeExtract(d, b, cc)
		if err != nil {
			s.logger.Warn("detector failed, emitting diagnostic fact",
				"detector_id", d.ID(), "error", err)
			facts = []contracts.Fact{errorFact(d.ID(), err)}
		} else {
			s.logger.Debug("detector completed", "detector_id", d.ID(), "facts", len(facts))
		}
		for i := range facts {
			if err := canonicalize.SealFact(&facts[i]); err != nil {
				return nil, fmt.Errorf("detector %s: seal %s: %w", d.ID(), facts[i].FactID, err)
			}
			out = append(out, facts[i])
		}
	}
	return out, nil
}

// safeExtract contains detector panics so adversarial evidence cannot
// crash the audit.
func safeExtract(d Detector, b *episode.Bundle, cc *contracts.CaseContext) (facts []contracts.Fact, err error) {
	defer func() {
		if r := recover(); r != nil {
			facts = nil
			err = fmt.Errorf("detector %s panicked: %v", d.ID(), r)
		}
	}()
	return d.Extract(b, cc)
}

func errorFact(detectorID string, err error) contracts.Fact {
	return contracts.Fact{
		FactID:        ErrorFactPrefix + detectorID,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  contracts.OracleSourceNone,
		EvidenceRefs:  []string{},
		Payload: map[string]any{
			"detector_id": detectorID,
			"error":       err.Error(),
		},
	}
}
