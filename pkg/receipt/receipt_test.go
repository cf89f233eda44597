package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func testRoot(t *testing.T) *MemoryKeyProvider {
	t.Helper()
	seed := make([]byte, 32)
	copy(seed, "arbiter-receipt-test-seed")
	root, err := NewMemoryKeyProviderFromSeed(seed)
	require.NoError(t, err)
	return root
}

func testReport() *audit.Report {
	return &audit.Report{
		RunID:            "11111111-1111-4111-8111-111111111111",
		EpisodeID:        "r-42",
		FactsDigest:      strings.Repeat("a", 64),
		AssertionsDigest: strings.Repeat("b", 64),
		Summary: audit.Summary{
			Outcome: contracts.ResultPass,
			Counts:  audit.Counts{Pass: 3},
		},
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer := NewIssuer(testRoot(t))
	report := testReport()

	token, err := issuer.Issue(report)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "r-42", claims.EpisodeID)
	assert.Equal(t, report.RunID, claims.RunID)
	assert.Equal(t, report.FactsDigest, claims.FactsDigest)
	assert.Equal(t, "PASS", claims.Outcome)
	assert.Equal(t, 3, claims.Pass)
	assert.NoError(t, claims.Matches(report))
}

func TestVerifyRejectsTampering(t *testing.T) {
	issuer := NewIssuer(testRoot(t))
	token, err := issuer.Issue(testReport())
	require.NoError(t, err)

	// Corrupt the payload segment.
	parts := strings.SplitN(token, ".", 3)
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "xx" + "." + parts[2]

	_, err = issuer.Verify(tampered)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignRoot(t *testing.T) {
	token, err := NewIssuer(testRoot(t)).Issue(testReport())
	require.NoError(t, err)

	other, err := NewMemoryKeyProvider()
	require.NoError(t, err)
	_, err = NewIssuer(other).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := NewIssuer(testRoot(t)).
		WithTTL(time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })

	token, err := issuer.Issue(testReport())
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestMatchesDetectsMismatch(t *testing.T) {
	issuer := NewIssuer(testRoot(t))
	token, err := issuer.Issue(testReport())
	require.NoError(t, err)
	claims, err := issuer.Verify(token)
	require.NoError(t, err)

	other := testReport()
	other.FactsDigest = strings.Repeat("c", 64)
	assert.Error(t, claims.Matches(other))

	other = testReport()
	other.Summary.Counts.Fail = 1
	assert.Error(t, claims.Matches(other))
}

func TestEpisodeDerivationIsDeterministic(t *testing.T) {
	root := testRoot(t)

	a1, err := root.DeriveForEpisode("ep-a")
	require.NoError(t, err)
	a2, err := root.DeriveForEpisode("ep-a")
	require.NoError(t, err)
	b, err := root.DeriveForEpisode("ep-b")
	require.NoError(t, err)

	assert.Equal(t, a1.PublicKey(), a2.PublicKey())
	assert.NotEqual(t, a1.PublicKey(), b.PublicKey())
	assert.NotEqual(t, root.PublicKey(), a1.PublicKey())

	_, err = root.DeriveForEpisode("")
	assert.Error(t, err)
}
