package detector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestJSON = `{
	"run_id": "r-42",
	"case_id": "case-7",
	"task_id": "task-3",
	"harness_version": "1.4.0",
	"device_serial": "emulator-5554",
	"host_window": {"start_ms": 1000, "end_ms": 2000, "slack_ms": 100}
}`

func newBundle(t *testing.T, files map[string]string) *episode.Bundle {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	b, err := episode.Open(root)
	require.NoError(t, err)
	return b
}

func fullBundle(t *testing.T) *episode.Bundle {
	t.Helper()
	return newBundle(t, map[string]string{
		"run_manifest.json":     manifestJSON,
		"env_capabilities.json": `{"capabilities": {"device_state_read": true, "screenshot": false}}`,
		"action_trace.jsonl": strings.Join([]string{
			`{"idx":1,"action":"tap","ts_ms":1100}`,
			`{"idx":2,"action":"type","ts_ms":1200}`,
			`{"idx":3,"action":"tap","ts_ms":1300}`,
			`{"idx":4,"action":"swipe","ts_ms":1400}`,
			`{"idx":5,"action":"tap","ts_ms":2500}`,
		}, "\n") + "\n",
		"foreground_trace.jsonl": strings.Join([]string{
			`{"ts_ms":1100,"pkg":"com.android.settings","activity":".Settings"}`,
			`{"ts_ms":1200,"pkg":"com.android.settings","activity":".WifiActivity"}`,
			`{"ts_ms":1300,"pkg":"com.evil.exfil","activity":".Main"}`,
		}, "\n") + "\n",
		"oracle_trace.jsonl": strings.Join([]string{
			`{"oracle_id":"settings_get","oracle_type":"device_state","phase":"pre","decision":{"success":false,"score":0,"conclusive":true,"reason":"baseline"},"observed_at_ms":1050}`,
			`{"oracle_id":"settings_get","oracle_type":"device_state","phase":"post","decision":{"success":true,"score":1,"conclusive":true,"reason":"wifi off"},"observed_at_ms":1900}`,
		}, "\n") + "\n",
	})
}

func byID(t *testing.T, facts []contracts.Fact, id string) contracts.Fact {
	t.Helper()
	for _, f := range facts {
		if f.FactID == id {
			return f
		}
	}
	t.Fatalf("fact %s not found in %d facts", id, len(facts))
	return contracts.Fact{}
}

func TestStageSealsEveryFact(t *testing.T) {
	stage := NewStage(DefaultRegistry())
	facts, err := stage.Run(fullBundle(t), nil)
	require.NoError(t, err)
	require.NotEmpty(t, facts)

	for _, f := range facts {
		assert.True(t, canonicalize.WellFormedDigest(f.Digest), "fact %s digest %q", f.FactID, f.Digest)
		assert.NoError(t, canonicalize.VerifyFactDigest(&f))
	}
}

func TestStageEmitsDiagnosticFactOnError(t *testing.T) {
	// Bundle with no artifacts at all: every detector fails benignly.
	stage := NewStage(DefaultRegistry())
	facts, err := stage.Run(newBundle(t, nil), nil)
	require.NoError(t, err)

	f := byID(t, facts, ErrorFactPrefix+"run_manifest")
	assert.Equal(t, contracts.OracleSourceNone, f.OracleSource)
	assert.Equal(t, "run_manifest", f.Payload["detector_id"])
	assert.NotEmpty(t, f.Payload["error"])
}

type panicky struct{}

func (panicky) ID() string { return "panicky" }
func (panicky) Extract(*episode.Bundle, *contracts.CaseContext) ([]contracts.Fact, error) {
	panic("malformed evidence")
}

func TestStageContainsPanics(t *testing.T) {
	reg, err := NewRegistry(panicky{})
	require.NoError(t, err)

	facts, err := NewStage(reg).Run(newBundle(t, nil), nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, ErrorFactPrefix+"panicky", facts[0].FactID)
	assert.Contains(t, facts[0].Payload["error"], "panicked")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewRunManifest(), NewRunManifest())
	assert.Error(t, err)
}

func TestRegistrySubset(t *testing.T) {
	sub, err := DefaultRegistry().Subset("time_window", "run_manifest")
	require.NoError(t, err)

	dets := sub.Detectors()
	require.Len(t, dets, 2)
	// Canonical execution order wins over argument order.
	assert.Equal(t, "run_manifest", dets[0].ID())
	assert.Equal(t, "time_window", dets[1].ID())

	_, err = DefaultRegistry().Subset("no_such_detector")
	assert.ErrorContains(t, err, "unknown id")
}

func TestRunManifestFact(t *testing.T) {
	facts, err := NewRunManifest().Extract(fullBundle(t), nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	f := facts[0]
	assert.Equal(t, contracts.FactRunManifest, f.FactID)
	assert.Equal(t, "r-42", f.Payload["run_id"])
	assert.Equal(t, "1.4.0", f.Payload["harness_version"])
	assert.Equal(t, []string{episode.ManifestFile}, f.EvidenceRefs)
}

func TestEnvCapabilitiesFact(t *testing.T) {
	facts, err := NewEnvCapabilities().Extract(fullBundle(t), nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	caps := facts[0].Payload["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["device_state_read"])
	assert.Equal(t, false, caps["screenshot"])
}

func TestHarnessCompatFact(t *testing.T) {
	cc := &contracts.CaseContext{Eval: &contracts.EvalSpec{MinHarness: "1.2.0"}}

	facts, err := NewHarnessCompat().Extract(fullBundle(t), cc)
	require.NoError(t, err)
	f := facts[0]
	assert.Equal(t, true, f.Payload["compatible"])
	assert.Equal(t, true, f.Payload["meets_min"])

	// Version below the eval minimum.
	old := newBundle(t, map[string]string{
		"run_manifest.json": `{"run_id":"r","harness_version":"1.1.0"}`,
	})
	facts, err = NewHarnessCompat().Extract(old, cc)
	require.NoError(t, err)
	assert.Equal(t, true, facts[0].Payload["compatible"])
	assert.Equal(t, false, facts[0].Payload["meets_min"])

	// Unparseable version.
	junk := newBundle(t, map[string]string{
		"run_manifest.json": `{"run_id":"r","harness_version":"yesterday"}`,
	})
	facts, err = NewHarnessCompat().Extract(junk, nil)
	require.NoError(t, err)
	assert.Equal(t, false, facts[0].Payload["compatible"])
	assert.NotEmpty(t, facts[0].Payload["parse_error"])
}

func TestTimeWindowFact(t *testing.T) {
	facts, err := NewTimeWindow().Extract(fullBundle(t), nil)
	require.NoError(t, err)

	f := facts[0]
	assert.Equal(t, true, f.Payload["host_defined"])
	assert.Equal(t, false, f.Payload["device_defined"])
	host := f.Payload["host"].(map[string]any)
	assert.Equal(t, int64(1000), host["start_ms"])
	assert.Equal(t, int64(100), host["slack_ms"])
}

func TestActionStepsFact(t *testing.T) {
	facts, err := NewActionSteps().Extract(fullBundle(t), nil)
	require.NoError(t, err)

	f := facts[0]
	assert.Equal(t, contracts.FactStepCount, f.FactID)
	assert.Equal(t, contracts.OracleSourceTrajectoryDeclared, f.OracleSource)
	assert.Equal(t, 5, f.Payload["step_count"])
	assert.Equal(t, episode.ActionTraceFile, f.Payload["trace_file"])
	// Step 5 at ts 2500 is past end+slack (2100).
	assert.Equal(t, 1, f.Payload["out_of_window_steps"])
	assert.Equal(t, int64(1100), f.Payload["first_ts_ms"])
	assert.Equal(t, int64(2500), f.Payload["last_ts_ms"])
}

func TestActionStepsMalformedLines(t *testing.T) {
	b := newBundle(t, map[string]string{
		"run_manifest.json":  manifestJSON,
		"action_trace.jsonl": "{\"idx\":1,\"ts_ms\":1100}\nnot json\n{\"idx\":2,\"ts_ms\":1200}\n",
	})
	facts, err := NewActionSteps().Extract(b, nil)
	require.NoError(t, err)

	f := facts[0]
	// Every non-blank line counts as a step; malformed ones are flagged.
	assert.Equal(t, 3, f.Payload["step_count"])
	assert.Equal(t, []int{2}, f.Payload["malformed_lines"])
}

func TestActionStepsMissingTrace(t *testing.T) {
	b := newBundle(t, map[string]string{"run_manifest.json": manifestJSON})
	_, err := NewActionSteps().Extract(b, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestForegroundAppsFact(t *testing.T) {
	facts, err := NewForegroundApps().Extract(fullBundle(t), nil)
	require.NoError(t, err)

	f := facts[0]
	assert.Equal(t, contracts.FactForegroundPkgSeq, f.FactID)
	// device_state_read probed true, so the trace is TCB-captured.
	assert.Equal(t, contracts.OracleSourceDeviceQuery, f.OracleSource)
	assert.Equal(t, []string{"com.android.settings", "com.evil.exfil"}, f.Payload["packages"])

	entries := f.Payload["entries"].([]map[string]any)
	require.Len(t, entries, 3)
	assert.Equal(t, "com.evil.exfil", entries[2]["pkg"])
	assert.Equal(t, 3, entries[2]["line"])

	assert.Contains(t, f.EvidenceRefs, "foreground_trace.jsonl:L3")
}

func TestForegroundAppsDeclaredWhenNoDeviceProbe(t *testing.T) {
	b := newBundle(t, map[string]string{
		"run_manifest.json":      manifestJSON,
		"env_capabilities.json":  `{"capabilities": {"device_state_read": false}}`,
		"foreground_trace.jsonl": `{"ts_ms":1100,"pkg":"com.android.settings"}` + "\n",
	})
	facts, err := NewForegroundApps().Extract(b, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.OracleSourceTrajectoryDeclared, facts[0].OracleSource)
}

func TestOracleEventsFact(t *testing.T) {
	facts, err := NewOracleEvents().Extract(fullBundle(t), nil)
	require.NoError(t, err)

	f := facts[0]
	events := f.Payload["events"].([]map[string]any)
	require.Len(t, events, 2)

	post := events[1]
	assert.Equal(t, "post", post["phase"])
	assert.Equal(t, true, post["conclusive"])
	assert.Equal(t, true, post["success"])
	assert.Equal(t, true, post["in_window"])
	assert.Equal(t, 2, post["line"])
	assert.Contains(t, f.EvidenceRefs, "oracle_trace.jsonl:L2")
}

func TestOracleEventsOutOfWindow(t *testing.T) {
	b := newBundle(t, map[string]string{
		"run_manifest.json": manifestJSON,
		"oracle_trace.jsonl": `{"oracle_id":"settings_get","oracle_type":"device_state","phase":"post",` +
			`"decision":{"success":true,"score":1,"conclusive":true},"observed_at_ms":5000}` + "\n",
	})
	facts, err := NewOracleEvents().Extract(b, nil)
	require.NoError(t, err)

	events := facts[0].Payload["events"].([]map[string]any)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0]["in_window"])
}
