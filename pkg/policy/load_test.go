package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicyJSON(t *testing.T) {
	path := writeDoc(t, "policy.json", `{
		"policy_id": "pol.base",
		"version": "1.2.0",
		"budgets": {"max_steps": 40},
		"predicates": [
			{"id": "no_oow_steps", "expr": "facts['fact.step_count'].oow == 0", "severity": "high"}
		]
	}`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "pol.base", p.PolicyID)
	require.NotNil(t, p.Budgets)
	require.NotNil(t, p.Budgets.MaxSteps)
	assert.Equal(t, int64(40), *p.Budgets.MaxSteps)
	require.Len(t, p.Predicates, 1)
	assert.Equal(t, contracts.SeverityHigh, p.Predicates[0].Severity)
}

func TestLoadPolicyYAML(t *testing.T) {
	path := writeDoc(t, "policy.yaml", `
policy_id: pol.yaml
scope:
  allowed_apps:
    - com.android.settings
plugins:
  - id: notif_check
    module: plugins/notif.wasm
    sha256: ab12
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "pol.yaml", p.PolicyID)
	require.NotNil(t, p.Scope)
	assert.Equal(t, []string{"com.android.settings"}, p.Scope.AllowedApps)
	require.Len(t, p.Plugins, 1)
	assert.Equal(t, "plugins/notif.wasm", p.Plugins[0].Module)
}

func TestLoadEvalKeepsCheckerEntryShapes(t *testing.T) {
	path := writeDoc(t, "eval.yml", `
eval_id: eval.smoke
min_harness: 1.4.0
checkers_enabled:
  - TB_SuccessOracle
  - assertion_id: SA_LoopBudget
    enabled: true
    severity_override: high
    params:
      max_steps: 25
`)

	e, err := LoadEval(path)
	require.NoError(t, err)
	assert.Equal(t, "eval.smoke", e.EvalID)
	assert.Equal(t, "1.4.0", e.MinHarness)
	require.Len(t, e.CheckersEnabled, 2)
	assert.IsType(t, "", e.CheckersEnabled[0])
	assert.IsType(t, map[string]any{}, e.CheckersEnabled[1])

	// The loaded entries must survive compilation untouched.
	c := Compile(nil, e)
	cfg := find(t, c, contracts.AssertLoopBudget)
	assert.Equal(t, contracts.SeverityHigh, cfg.SeverityOverride)
	assert.EqualValues(t, 25, cfg.Params["max_steps"])
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeDoc(t, "policy.toml", `policy_id = "nope"`)
	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document format")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeDoc(t, "policy.yaml", "policy_id: [unclosed")
	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
