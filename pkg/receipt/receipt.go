package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
)

const claimIssuer = "arbiter/receipt"

// Claims bind a receipt to the exact byte surface one audit run wrote.
type Claims struct {
	jwt.RegisteredClaims
	EpisodeID        string `json:"episode_id"`
	RunID            string `json:"run_id"`
	FactsDigest      string `json:"facts_digest"`
	AssertionsDigest string `json:"assertions_digest"`
	Outcome          string `json:"outcome"`
	Pass             int    `json:"pass"`
	Fail             int    `json:"fail"`
	Inconclusive     int    `json:"inconclusive"`
}

// Matches checks that the receipt attests exactly the given report.
func (c *Claims) Matches(r *audit.Report) error {
	switch {
	case c.EpisodeID != r.EpisodeID:
		return fmt.Errorf("receipt: episode id %s does not match report %s", c.EpisodeID, r.EpisodeID)
	case c.RunID != r.RunID:
		return fmt.Errorf("receipt: run id %s does not match report %s", c.RunID, r.RunID)
	case c.FactsDigest != r.FactsDigest:
		return errors.New("receipt: facts digest mismatch")
	case c.AssertionsDigest != r.AssertionsDigest:
		return errors.New("receipt: assertions digest mismatch")
	case c.Pass != r.Summary.Counts.Pass || c.Fail != r.Summary.Counts.Fail || c.Inconclusive != r.Summary.Counts.Inconclusive:
		return errors.New("receipt: verdict counts mismatch")
	}
	return nil
}

// Issuer signs receipts for finished audit runs with per-episode keys
// derived from one root provider.
type Issuer struct {
	root  KeyProvider
	ttl   time.Duration
	clock func() time.Time
}

// NewIssuer wraps a root key provider. Receipts do not expire unless a
// TTL is set.
func NewIssuer(root KeyProvider) *Issuer {
	return &Issuer{root: root, clock: time.Now}
}

// WithTTL sets an expiry on issued receipts.
func (i *Issuer) WithTTL(ttl time.Duration) *Issuer {
	i.ttl = ttl
	return i
}

// WithClock overrides the issue timestamp source.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// episodeKey resolves the signing key for an episode: a derived subkey
// when the provider supports derivation, the root key otherwise.
func (i *Issuer) episodeKey(episodeID string) (KeyProvider, error) {
	if d, ok := i.root.(EpisodeKeyDeriver); ok {
		return d.DeriveForEpisode(episodeID)
	}
	return i.root, nil
}

// Issue signs a receipt for the report.
func (i *Issuer) Issue(r *audit.Report) (string, error) {
	if r == nil {
		return "", errors.New("receipt: nil report")
	}
	key, err := i.episodeKey(r.EpisodeID)
	if err != nil {
		return "", fmt.Errorf("receipt: derive episode key: %w", err)
	}

	now := i.clock().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       r.RunID,
			Subject:  r.EpisodeID,
			Issuer:   claimIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		EpisodeID:        r.EpisodeID,
		RunID:            r.RunID,
		FactsDigest:      r.FactsDigest,
		AssertionsDigest: r.AssertionsDigest,
		Outcome:          string(r.Summary.Outcome),
		Pass:             r.Summary.Counts.Pass,
		Fail:             r.Summary.Counts.Fail,
		Inconclusive:     r.Summary.Counts.Inconclusive,
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key.Signer())
	if err != nil {
		return "", fmt.Errorf("receipt: sign: %w", err)
	}
	return signed, nil
}

// Verify parses a receipt, resolving the verification key from the
// episode id the claims carry, and checks the signature.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok || claims.EpisodeID == "" {
			return nil, errors.New("receipt: claims carry no episode id")
		}
		key, err := i.episodeKey(claims.EpisodeID)
		if err != nil {
			return nil, err
		}
		return key.PublicKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("receipt: verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
