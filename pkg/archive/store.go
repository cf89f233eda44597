// Package archive preserves finalized episode bundles in content-
// addressed storage. A bundle is packed into a single zip with a
// checksum manifest, then stored under its own SHA-256 so identical
// bundles dedupe and any retrieval is integrity-checkable. The core
// pipeline never writes here; archival happens after a run succeeds.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound signals a hash with no stored blob behind it.
var ErrNotFound = errors.New("archive: blob not found")

const hashPrefix = "sha256:"

// HashOf returns the content address for data: "sha256:<hex>".
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// parseHash validates a "sha256:<hex>" address and returns the raw hex.
func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("archive: invalid hash format: %s", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("archive: invalid hash hex: %w", err)
	}
	return raw, nil
}

// Store is content-addressed storage for packed bundles.
type Store interface {
	// Store persists data and returns its content hash. Storing the
	// same bytes twice is a no-op.
	Store(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes a blob; deleting an absent blob is a no-op.
	Delete(ctx context.Context, hash string) error
}

// FileStore keeps blobs as <hex>.blob files under one directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the directory if needed and wraps it.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: ensure blob dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) blobPath(rawHash string) string {
	return filepath.Join(s.baseDir, rawHash+".blob")
}

// Store writes the blob via temp-then-rename; a blob already present
// under its hash is left alone.
func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashOf(data)
	path := s.blobPath(hash[len(hashPrefix):])
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // blobs are world-readable by design
		return "", fmt.Errorf("archive: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("archive: commit blob: %w", err)
	}
	return hash, nil
}

// Get retrieves a blob by content hash.
func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(raw)) //nolint:gosec // hash validated as hex
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("archive: read blob: %w", err)
	}
	return data, nil
}

// Exists reports whether a blob is present.
func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(s.blobPath(raw)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("archive: stat blob: %w", err)
	}
	return true, nil
}

// Delete removes a blob; a missing blob is not an error.
func (s *FileStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := parseHash(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(raw)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: delete blob: %w", err)
	}
	return nil
}
