package oracle

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Recorder appends oracle events to the episode's oracle trace as they
// happen. Each line is the canonical JSON encoding of one event, so
// the trace digests identically wherever it is replayed.
type Recorder struct {
	mu     sync.Mutex
	path   string
	events []contracts.OracleEvent
	clock  func() time.Time
}

// NewRecorder creates a recorder writing to path. The file is created
// lazily on the first event.
func NewRecorder(path string) *Recorder {
	return &Recorder{
		path:   path,
		events: make([]contracts.OracleEvent, 0),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// Record stamps, serializes and persists one event, returning the
// stamped copy.
func (r *Recorder) Record(ev contracts.OracleEvent) (contracts.OracleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ObservedAtMS == 0 {
		ev.ObservedAtMS = r.clock().UnixMilli()
	}

	line, err := canonicalize.JCS(ev)
	if err != nil {
		return ev, fmt.Errorf("oracle: canonicalize event from %s: %w", ev.OracleID, err)
	}

	//nolint:gosec // G302/G304: trace file lives inside the episode bundle
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return ev, fmt.Errorf("oracle: open trace %s: %w", r.path, err)
	}
	defer f.Close() //nolint:errcheck // best-effort close

	if _, err := f.Write(append(line, '\n')); err != nil {
		return ev, fmt.Errorf("oracle: append trace %s: %w", r.path, err)
	}

	r.events = append(r.events, ev)
	return ev, nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []contracts.OracleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.OracleEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
