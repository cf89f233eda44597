package oracle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// BaselineStore snapshots observed state during pre_check so that
// post_check can prove a transition actually happened during the
// episode. Without it, an agent gets credit for state that was already
// true before it started.
type BaselineStore struct {
	mu  sync.RWMutex
	dir string
}

// NewBaselineStore creates a snapshot directory, usually inside the
// episode bundle.
func NewBaselineStore(dir string) (*BaselineStore, error) {
	//nolint:gosec // G301: snapshots are plain evidence files
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("oracle: ensure baseline dir: %w", err)
	}
	return &BaselineStore{dir: dir}, nil
}

// Put stores the pre-task snapshot for one oracle observation key.
func (s *BaselineStore) Put(oracleID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := episode.WriteFileAtomic(s.snapPath(oracleID, key), value); err != nil {
		return fmt.Errorf("oracle: baseline %s/%s: %w", oracleID, key, err)
	}
	return nil
}

// Get loads a snapshot. The second return is false when no pre_check
// snapshot was taken for this key.
func (s *BaselineStore) Get(oracleID, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.snapPath(oracleID, key)) //nolint:gosec // path components are sanitized
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("oracle: baseline %s/%s: %w", oracleID, key, err)
	}
	return data, true, nil
}

// Changed compares the current observation against the snapshot. With
// no snapshot present the comparison is indeterminate and the second
// return is false.
func (s *BaselineStore) Changed(oracleID, key string, current []byte) (changed, known bool, err error) {
	prior, ok, err := s.Get(oracleID, key)
	if err != nil || !ok {
		return false, false, err
	}
	return canonicalize.HashBytes(prior) != canonicalize.HashBytes(current), true, nil
}

func (s *BaselineStore) snapPath(oracleID, key string) string {
	return filepath.Join(s.dir, sanitize(oracleID)+"__"+sanitize(key)+".snap")
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, name)
}
