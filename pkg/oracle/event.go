package oracle

import (
	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// NewEvent starts an event for one observation by o during phase.
func NewEvent(o Oracle, phase contracts.Phase) contracts.OracleEvent {
	return contracts.OracleEvent{
		OracleID:   o.ID(),
		OracleType: o.Type(),
		Phase:      phase,
	}
}

// GatedEvent is the inconclusive event emitted when required
// capabilities are absent. The oracle itself never ran.
func GatedEvent(o Oracle, phase contracts.Phase, missing []string) contracts.OracleEvent {
	ev := NewEvent(o, phase)
	ev.CapabilitiesRequired = o.Capabilities()
	ev.MissingCapabilities = missing
	ev.Decision = contracts.InconclusiveDecision("capability_absent")
	return ev
}

// Observe attaches a raw observed value to ev: the value itself for
// digesting, and an NFC-normalized truncated preview for humans. The
// digest side must round-trip canonicalization; if it cannot, the
// event degrades to inconclusive rather than carrying undigestable
// evidence.
func Observe(ev *contracts.OracleEvent, value any) {
	raw, err := canonicalize.JCS(value)
	if err != nil {
		ev.Decision = contracts.InconclusiveDecision("result_not_canonicalizable")
		return
	}
	ev.ResultForDigest = value
	ev.ResultPreview = canonicalize.NormalizePreview(raw, canonicalize.DefaultPreviewRunes)
}

// CheckWindow verifies that an observation timestamp falls inside the
// episode window for its clock source. Out-of-window observations are
// flagged inconclusive: stale or pre-staged state must not count as
// task success.
func CheckWindow(ev *contracts.OracleEvent, w episode.TimeWindow, ts int64) bool {
	ev.ObservedAtMS = ts
	if !w.Defined() {
		ev.AntiGamingNotes = append(ev.AntiGamingNotes, "no clock window declared; window check skipped")
		return true
	}
	if !w.Contains(ts) {
		ev.Decision = contracts.InconclusiveDecision("evidence_outside_window")
		ev.AntiGamingNotes = append(ev.AntiGamingNotes, "observation timestamp outside episode window")
		return false
	}
	ev.AntiGamingNotes = append(ev.AntiGamingNotes, "observation timestamp inside episode window")
	return true
}
