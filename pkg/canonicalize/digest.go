package canonicalize

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// ErrDigestMismatch signals a fact whose digest does not match its
// canonical content.
var ErrDigestMismatch = errors.New("canonicalize: fact digest mismatch")

var hexDigestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// WellFormedDigest reports whether d looks like a lowercase hex SHA-256.
func WellFormedDigest(d string) bool {
	return hexDigestRe.MatchString(d)
}

// FactDigest computes the digest a sealed fact must carry: the SHA-256
// of the canonical encoding of every field except the digest itself.
func FactDigest(f *contracts.Fact) (string, error) {
	d, err := CanonicalHash(f.DigestInput())
	if err != nil {
		return "", fmt.Errorf("canonicalize: fact %s: %w", f.FactID, err)
	}
	return d, nil
}

// SealFact normalizes the fact's evidence refs and stamps its digest.
// A fact is immutable once sealed; callers must not touch it afterwards.
func SealFact(f *contracts.Fact) error {
	f.EvidenceRefs = contracts.NormalizeRefs(f.EvidenceRefs)
	if f.Payload == nil {
		f.Payload = map[string]any{}
	}
	d, err := FactDigest(f)
	if err != nil {
		return err
	}
	f.Digest = d
	return nil
}

// VerifyFactDigest recomputes the digest and compares it with the one
// the fact carries.
func VerifyFactDigest(f *contracts.Fact) error {
	want, err := FactDigest(f)
	if err != nil {
		return err
	}
	if f.Digest != want {
		return fmt.Errorf("%w: fact %s carries %s, content hashes to %s",
			ErrDigestMismatch, f.FactID, f.Digest, want)
	}
	return nil
}
