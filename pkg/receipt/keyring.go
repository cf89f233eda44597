// Package receipt issues and verifies audit receipts: compact signed
// attestations that one audit run produced exactly one record set.
// Receipts exist for deduplication and provenance bookkeeping, not
// non-repudiation; the trust story of the records themselves lives in
// their digests.
package receipt

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider yields signing material for receipts. Implementations can
// back it with an HSM or a cloud KMS; the in-memory provider serves
// tests and single-host runners.
type KeyProvider interface {
	Signer() crypto.Signer
	PublicKey() ed25519.PublicKey
}

// EpisodeKeyDeriver is implemented by providers that can mint a
// per-episode subkey. Providers that cannot derive sign everything with
// their root key instead.
type EpisodeKeyDeriver interface {
	DeriveForEpisode(episodeID string) (KeyProvider, error)
}

// MemoryKeyProvider keeps an Ed25519 keypair in process memory.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh random keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds the deterministic keypair for a
// 32-byte seed, so a runner restarted with the same configured seed
// keeps verifying its own receipts.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("receipt: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}

// LoadSeed reads a signing seed from disk. The file holds either the
// raw 32 seed bytes or their hex encoding; surrounding whitespace is
// ignored.
func LoadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-configured seed path
	if err != nil {
		return nil, fmt.Errorf("receipt: read seed file: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == hex.EncodedLen(ed25519.SeedSize) {
		seed := make([]byte, ed25519.SeedSize)
		if _, err := hex.Decode(seed, trimmed); err == nil {
			return seed, nil
		}
	}
	if len(trimmed) != ed25519.SeedSize {
		return nil, fmt.Errorf("receipt: seed file %s must hold %d raw bytes or their hex encoding", path, ed25519.SeedSize)
	}
	return trimmed, nil
}

// Signer exposes the private key for JWT signing.
func (m *MemoryKeyProvider) Signer() crypto.Signer { return m.priv }

// PublicKey returns the verification key.
func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey { return m.pub }

// DeriveForEpisode derives the episode-specific keypair using
// HKDF-SHA256 over the root seed with the episode id as info. The same
// root and episode always yield the same keypair.
func (m *MemoryKeyProvider) DeriveForEpisode(episodeID string) (KeyProvider, error) {
	if episodeID == "" {
		return nil, errors.New("receipt: episode id must not be empty")
	}
	reader := hkdf.New(sha256.New, m.priv.Seed(), []byte("arbiter-episode-kdf"), []byte(episodeID))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("receipt: HKDF derivation failed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}
