// Package episode reads one episode's evidence bundle from disk and
// anchors the clock windows the rest of the pipeline reasons against.
//
// A bundle is a directory the harness produced. Artifacts may sit at
// the bundle root or nested one level under evidence/; logical names
// used in evidence refs never include the evidence/ prefix.
package episode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Well-known artifact names inside a bundle.
const (
	ManifestFile        = "run_manifest.json"
	CapabilitiesFile    = "env_capabilities.json"
	ActionTraceFile     = "action_trace.jsonl"
	ForegroundTraceFile = "foreground_trace.jsonl"
	OracleTraceFile     = "oracle_trace.jsonl"
	SummaryFile         = "summary.json"
	FactsFile           = "facts.jsonl"
	AssertionsFile      = "assertions.jsonl"

	evidenceSubdir = "evidence"
)

// Bundle is read access to one episode directory.
type Bundle struct {
	root string
}

// Open validates that root is a directory and wraps it.
func Open(root string) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("episode: open bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("episode: open bundle: %s is not a directory", root)
	}
	return &Bundle{root: root}, nil
}

// Root returns the bundle directory.
func (b *Bundle) Root() string { return b.root }

// Resolve maps a logical artifact name to its on-disk path, trying the
// bundle root first and the evidence/ subdirectory second.
func (b *Bundle) Resolve(name string) (string, bool) {
	direct := filepath.Join(b.root, name)
	if fileExists(direct) {
		return direct, true
	}
	nested := filepath.Join(b.root, evidenceSubdir, name)
	if fileExists(nested) {
		return nested, true
	}
	return "", false
}

// Exists reports whether the named artifact is present.
func (b *Bundle) Exists(name string) bool {
	_, ok := b.Resolve(name)
	return ok
}

// ReadFile loads the named artifact.
func (b *Bundle) ReadFile(name string) ([]byte, error) {
	path, ok := b.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("episode: artifact %s: %w", name, os.ErrNotExist)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path derives from the bundle root
	if err != nil {
		return nil, fmt.Errorf("episode: read %s: %w", name, err)
	}
	return data, nil
}

// ReadJSON loads and decodes the named JSON artifact.
func (b *Bundle) ReadJSON(name string, v any) error {
	data, err := b.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("episode: decode %s: %w", name, err)
	}
	return nil
}

// SummaryPaths returns every summary.json that logically belongs to
// this episode: at the bundle root, inside evidence/, and — when the
// bundle root itself is an evidence/ directory — next to it in the
// parent. Only existing files are returned.
func (b *Bundle) SummaryPaths() []string {
	candidates := []string{
		filepath.Join(b.root, SummaryFile),
		filepath.Join(b.root, evidenceSubdir, SummaryFile),
	}
	if filepath.Base(b.root) == evidenceSubdir {
		candidates = append(candidates, filepath.Join(filepath.Dir(b.root), SummaryFile))
	}
	var out []string
	for _, p := range candidates {
		if fileExists(p) {
			out = append(out, p)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
