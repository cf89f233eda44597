// Package oracle implements the live observation protocol. Oracles run
// inside the harness while the agent acts: pre_check snapshots state
// before the task, post_check verifies the outcome after it. Every
// observation lands in the oracle trace as a structured event, so the
// offline audit can replay the decision without re-querying a device.
//
// The protocol is anti-gaming by construction: observations are gated
// on probed capabilities, timestamped against the episode windows, and
// baselined so "was already true before the agent started" is
// distinguishable from "agent did it".
package oracle

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// CapabilityProbe answers what the environment can be asked. The
// harness materializes it from env_capabilities.json.
type CapabilityProbe interface {
	Has(name string) bool
	Missing(required []string) []string
}

// Oracle is one ground-truth checker.
type Oracle interface {
	// ID uniquely names this oracle within a run.
	ID() string
	// Type classifies the observation channel, e.g. "device_state".
	Type() string
	// Capabilities lists the probe names this oracle needs. Gating
	// happens before any check runs; oracles never see an environment
	// that cannot answer them.
	Capabilities() []string
	// PreCheck snapshots state before the agent acts.
	PreCheck(ctx context.Context, oc *Context) []contracts.OracleEvent
	// PostCheck decides the outcome after the agent acted.
	PostCheck(ctx context.Context, oc *Context) []contracts.OracleEvent
}

// Context carries the run-scoped collaborators an oracle may use.
type Context struct {
	Bundle    *episode.Bundle
	Windows   episode.Time
	Caps      CapabilityProbe
	Baselines *BaselineStore
	Throttle  *QueryThrottle
	Case      *contracts.CaseContext
}

// RunPhase executes one protocol phase over a set of oracles. Capability
// gating and panic containment happen here: a missing capability or a
// crashing oracle produces an inconclusive event, never an abort, and
// every event is appended to the recorder in execution order.
func RunPhase(ctx context.Context, rec *Recorder, phase contracts.Phase, oracles []Oracle, oc *Context) ([]contracts.OracleEvent, error) {
	var out []contracts.OracleEvent
	for _, o := range oracles {
		events := runOne(ctx, o, phase, oc)
		for _, ev := range events {
			recorded, err := rec.Record(ev)
			if err != nil {
				return out, fmt.Errorf("oracle %s: record event: %w", o.ID(), err)
			}
			out = append(out, recorded)
		}
	}
	return out, nil
}

func runOne(ctx context.Context, o Oracle, phase contracts.Phase, oc *Context) (events []contracts.OracleEvent) {
	if missing := oc.Caps.Missing(o.Capabilities()); len(missing) > 0 {
		return []contracts.OracleEvent{GatedEvent(o, phase, missing)}
	}

	defer func() {
		if r := recover(); r != nil {
			ev := NewEvent(o, phase)
			ev.Decision = contracts.InconclusiveDecision("oracle_runtime_error")
			ev.AntiGamingNotes = []string{fmt.Sprintf("oracle panicked: %v", r)}
			events = []contracts.OracleEvent{ev}
		}
	}()

	switch phase {
	case contracts.PhasePre:
		events = o.PreCheck(ctx, oc)
	default:
		events = o.PostCheck(ctx, oc)
	}
	return events
}
