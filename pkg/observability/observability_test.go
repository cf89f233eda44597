package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "arbiter", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestNewProviderWithNilConfig(t *testing.T) {
	// Defaults are disabled, so no collector connection is attempted.
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestNopProviderIsInert(t *testing.T) {
	p := Nop()
	ctx := context.Background()

	ctx, span := p.StartSpan(ctx, "audit.run")
	require.NotNil(t, span)
	span.End()

	// None of these may panic without initialized instruments.
	p.RecordError(ctx, errors.New("boom"))
	p.RecordDuration(ctx, 100*time.Millisecond)
	p.RecordFacts(ctx, 7)
	p.RecordAssertion(ctx, "TB_SuccessOracle", "PASS")
	p.RecordDetectorError(ctx, "detector.window")

	require.NoError(t, p.Shutdown(ctx))
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, finish := p.TrackOperation(context.Background(), "audit.run",
		EpisodeRun("ep-1", "r-42")...)
	require.NotNil(t, ctx)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "audit.run")
	finish(errors.New("detector stage failed"))
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestEpisodeRun(t *testing.T) {
	attrs := EpisodeRun("ep-1", "r-42")
	require.Len(t, attrs, 2)
	require.Equal(t, "arbiter.episode.id", string(attrs[0].Key))
	require.Equal(t, "ep-1", attrs[0].Value.AsString())
	require.Equal(t, "arbiter.run.id", string(attrs[1].Key))
	require.Equal(t, "r-42", attrs[1].Value.AsString())
}

func TestAssertionOutcome(t *testing.T) {
	attrs := AssertionOutcome("SA_ScopeForegroundApps", "FAIL")
	require.Len(t, attrs, 2)
	require.Equal(t, "arbiter.assertion.id", string(attrs[0].Key))
	require.Equal(t, "FAIL", attrs[1].Value.AsString())
}

func TestSpanFromContext(t *testing.T) {
	span := SpanFromContext(context.Background())
	require.NotNil(t, span)
}

func TestAddSpanEvent(t *testing.T) {
	AddSpanEvent(context.Background(), "facts.frozen", attribute.Int("count", 4))
}

func TestSetSpanStatus(t *testing.T) {
	SetSpanStatus(context.Background(), errors.New("schema violation"))
	SetSpanStatus(context.Background(), nil)
}
