// Package lease serializes audits of one episode across runner
// processes. Summary patching rewrites files in place, so two
// concurrent passes over the same bundle could interleave reads and
// writes; holding the episode lease for the duration of a run rules
// that out. The lease is advisory and single-instance: one Redis,
// SET NX PX to acquire, compare-and-delete to release. A
// process-local locker backs tests and single-host runs.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHeld signals that another process holds the episode lease.
	ErrHeld = errors.New("lease: episode already leased")
	// ErrNotHeld signals a release or renew after the lease expired
	// or was taken over.
	ErrNotHeld = errors.New("lease: lease no longer held")
)

// DefaultTTL bounds how long a crashed holder can block an episode.
const DefaultTTL = 30 * time.Second

const keyPrefix = "arbiter:lease:"

// Lease is the proof of ownership handed back by Acquire. The token
// fences release and renew against a lease that expired and was
// re-acquired by someone else.
type Lease struct {
	EpisodeID string
	Key       string
	Token     string
	TTL       time.Duration
}

// Locker hands out per-episode leases.
type Locker interface {
	// Acquire takes the episode lease or fails with ErrHeld. A
	// non-positive ttl selects DefaultTTL.
	Acquire(ctx context.Context, episodeID string, ttl time.Duration) (*Lease, error)
	// Renew extends the lease by its TTL; ErrNotHeld if it was lost.
	Renew(ctx context.Context, lease *Lease) error
	// Release gives the lease up; ErrNotHeld if it was lost.
	Release(ctx context.Context, lease *Lease) error
}

// Config selects the lease backend. An empty endpoint runs
// process-local.
type Config struct {
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// Open builds the locker for cfg: Redis when an endpoint is set,
// otherwise in-process.
func Open(cfg Config) Locker {
	if cfg.Endpoint == "" {
		return NewMemoryLocker()
	}
	return NewRedisLocker(cfg.Endpoint, cfg.Password, cfg.DB)
}

func newLease(episodeID string, ttl time.Duration) (*Lease, error) {
	if episodeID == "" {
		return nil, errors.New("lease: episode id must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lease{
		EpisodeID: episodeID,
		Key:       keyPrefix + episodeID,
		Token:     uuid.NewString(),
		TTL:       ttl,
	}, nil
}

type memEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker keeps leases in process memory. Expired entries are
// dropped lazily, which mirrors Redis TTL from the caller's side.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memEntry
	clock func() time.Time
}

// NewMemoryLocker creates a process-local locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memEntry{}, clock: time.Now}
}

// WithClock overrides the expiry clock.
func (m *MemoryLocker) WithClock(clock func() time.Time) *MemoryLocker {
	m.clock = clock
	return m
}

// live returns the current entry for key, dropping it when expired.
// Caller holds m.mu.
func (m *MemoryLocker) live(key string) (memEntry, bool) {
	entry, ok := m.held[key]
	if !ok {
		return memEntry{}, false
	}
	if !m.clock().Before(entry.expires) {
		delete(m.held, key)
		return memEntry{}, false
	}
	return entry, true
}

// Acquire takes the episode lease or fails with ErrHeld.
func (m *MemoryLocker) Acquire(_ context.Context, episodeID string, ttl time.Duration) (*Lease, error) {
	lease, err := newLease(episodeID, ttl)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(lease.Key); ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, episodeID)
	}
	m.held[lease.Key] = memEntry{token: lease.Token, expires: m.clock().Add(lease.TTL)}
	return lease, nil
}

// Renew extends the lease by its TTL.
func (m *MemoryLocker) Renew(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.live(lease.Key)
	if !ok || entry.token != lease.Token {
		return fmt.Errorf("%w: %s", ErrNotHeld, lease.EpisodeID)
	}
	m.held[lease.Key] = memEntry{token: lease.Token, expires: m.clock().Add(lease.TTL)}
	return nil
}

// Release gives the lease up.
func (m *MemoryLocker) Release(_ context.Context, lease *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.live(lease.Key)
	if !ok || entry.token != lease.Token {
		return fmt.Errorf("%w: %s", ErrNotHeld, lease.EpisodeID)
	}
	delete(m.held, lease.Key)
	return nil
}
