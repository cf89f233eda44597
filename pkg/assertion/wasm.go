package assertion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const (
	wasmMemoryLimitBytes = 16 << 20
	wasmRunTimeout       = 2 * time.Second
)

// WasmPlugin runs policy-shipped WebAssembly checkers for the
// SA_WasmPlugin/* family inside a deny-by-default WASI sandbox: no
// filesystem mounts, no network, no env vars. The module reads one
// canonical JSON evaluation input on stdin and writes a verdict
// fragment to stdout.
//
// Modules are pinned by content digest. An unpinned or tampered module
// never executes.
type WasmPlugin struct {
	runtime wazero.Runtime
	timeout time.Duration
}

// NewWasmPlugin creates the family checker with a memory-capped runtime.
func NewWasmPlugin() *WasmPlugin {
	ctx := context.Background()
	// wazero measures memory in pages (64KB each)
	pages := uint32(wasmMemoryLimitBytes / (64 * 1024))
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(pages))
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &WasmPlugin{runtime: r, timeout: wasmRunTimeout}
}

func (*WasmPlugin) ID() string { return contracts.AssertWasmPluginFamily }

// Close shuts down the wazero runtime, freeing all resources.
func (p *WasmPlugin) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.runtime.Close(ctx)
}

func (p *WasmPlugin) Evaluate(ctx context.Context, ec *EvalContext) (contracts.AssertionResult, error) {
	cfg := ec.Config

	module, _ := stringParam(cfg.Params, "module")
	if module == "" {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": "module param required"}
		return res, nil
	}
	pin, _ := stringParam(cfg.Params, "sha256")
	if pin == "" {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": "sha256 pin required for plugin modules"}
		return res, nil
	}

	wasmBytes, err := loadModule(ec.Case, module, pin)
	if err != nil {
		res := inconclusive(cfg, contracts.ReasonInvalidConfig)
		res.Payload = map[string]any{"config_error": err.Error()}
		return res, nil
	}

	caseInfo := map[string]any{}
	if cc := ec.Case; cc != nil {
		caseInfo["task_id"] = cc.TaskID
		caseInfo["case_id"] = cc.CaseID
		caseInfo["impact_level"] = cc.ImpactLevel
	}
	stdin, err := canonicalize.JCS(map[string]any{
		"assertion_id": cfg.AssertionID,
		"params":       cfg.Params,
		"facts":        ec.Facts.Payloads(),
		"case":         caseInfo,
	})
	if err != nil {
		return contracts.AssertionResult{}, fmt.Errorf("canonicalize plugin input: %w", err)
	}

	stdout, err := p.run(ctx, cfg.AssertionID, wasmBytes, stdin)
	if err != nil {
		return contracts.AssertionResult{}, err
	}
	return pluginVerdict(cfg, ec, stdout)
}

// loadModule resolves the module path under the policy directory and
// verifies the content pin. Escaping the policy directory is a config
// error, not a runtime one.
func loadModule(cc *contracts.CaseContext, module, pin string) ([]byte, error) {
	if cc == nil || cc.PolicyDir == "" {
		return nil, errors.New("no policy directory to resolve plugin modules against")
	}
	clean := filepath.Clean(module)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("module path %q escapes the policy directory", module)
	}
	full := filepath.Join(cc.PolicyDir, clean)
	data, err := os.ReadFile(full) //nolint:gosec // confined to the policy dir above
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != strings.ToLower(pin) {
		return nil, fmt.Errorf("module %s digest mismatch: got %s, pinned %s", module, got, pin)
	}
	return data, nil
}

// run executes the module with input on stdin, CPU bounded by deadline.
func (p *WasmPlugin) run(ctx context.Context, name string, wasmBytes, input []byte) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	compiled, err := p.runtime.CompileModule(runCtx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile plugin: %w", err)
	}
	defer func() { _ = compiled.Close(runCtx) }()

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)
	// Deny-by-default: no WithFSConfig, no WithEnv, no WithRandSource.

	mod, err := p.runtime.InstantiateModule(runCtx, compiled, modCfg)
	if mod != nil {
		defer func() { _ = mod.Close(runCtx) }()
	}
	if err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("plugin timed out after %v", p.timeout)
		}
		// WASI toolchains end _start via proc_exit; code 0 is a normal exit.
		var exit *sys.ExitError
		if !errors.As(err, &exit) || exit.ExitCode() != 0 {
			return nil, fmt.Errorf("plugin execution failed (stderr: %s): %w", strings.TrimSpace(stderr.String()), err)
		}
	}
	if stderr.Len() > 0 {
		return nil, fmt.Errorf("plugin wrote to stderr: %s", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// pluginVerdict parses the stdout fragment into a finalized result. The
// plugin chooses the verdict; the engine still owns identity and
// overrides. A FAIL without a line-addressable reference degrades to
// INCONCLUSIVE instead of entering the audit ungrounded.
func pluginVerdict(cfg contracts.AssertionConfig, ec *EvalContext, out []byte) (contracts.AssertionResult, error) {
	var frag struct {
		Result             string         `json:"result"`
		EvidenceRefs       []string       `json:"evidence_refs"`
		InconclusiveReason string         `json:"inconclusive_reason"`
		Severity           string         `json:"severity"`
		RiskWeightBucket   string         `json:"risk_weight_bucket"`
		Applicable         *bool          `json:"applicable"`
		Payload            map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &frag); err != nil {
		return contracts.AssertionResult{}, fmt.Errorf("plugin verdict is not valid JSON: %w", err)
	}

	result := contracts.Result(frag.Result)
	if !result.Valid() {
		return contracts.AssertionResult{}, fmt.Errorf("plugin verdict %q is not a known result", frag.Result)
	}

	sp, primitive, boundary := mappedTags(cfg, "", "")
	res := contracts.AssertionResult{
		AssertionID:     cfg.AssertionID,
		Result:          result,
		Severity:        contracts.SeverityMed,
		EvidenceRefs:    frag.EvidenceRefs,
		Applicable:      contracts.Bool(true),
		MappedSP:        sp,
		MappedPrimitive: primitive,
		MappedBoundary:  boundary,
		Payload:         frag.Payload,
	}
	if frag.Applicable != nil {
		res.Applicable = frag.Applicable
	}
	if sev := contracts.Severity(frag.Severity); frag.Severity != "" && sev.Valid() {
		res.Severity = sev
	}
	if b := contracts.RiskWeightBucket(frag.RiskWeightBucket); frag.RiskWeightBucket != "" && b.Valid() {
		res.RiskWeightBucket = b
	}

	switch result {
	case contracts.ResultFail:
		if contracts.AnyLineRef(res.EvidenceRefs) {
			res.ImpactLevel = impactFor(ec.Case)
			break
		}
		res.Result = contracts.ResultInconclusive
		res.InconclusiveReason = contracts.ReasonEvidenceUnavailable
		if res.Payload == nil {
			res.Payload = map[string]any{}
		}
		res.Payload["degraded_from"] = "FAIL"
	case contracts.ResultInconclusive:
		res.InconclusiveReason = frag.InconclusiveReason
		if res.InconclusiveReason == "" {
			res.InconclusiveReason = contracts.ReasonRuntimeError
		}
	}
	return res, nil
}
