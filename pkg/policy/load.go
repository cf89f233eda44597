package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// LoadPolicy reads a safety policy document from a JSON or YAML file.
func LoadPolicy(path string) (*contracts.SafetyPolicy, error) {
	var p contracts.SafetyPolicy
	if err := loadDocument(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadEval reads an eval spec document from a JSON or YAML file.
func LoadEval(path string) (*contracts.EvalSpec, error) {
	var e contracts.EvalSpec
	if err := loadDocument(path, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// loadDocument parses the file at path into out. YAML documents are
// bridged through JSON so the contract types keep a single set of field
// tags.
func loadDocument(path string, out any) error {
	data, err := os.ReadFile(path) //nolint:gosec // caller-supplied document path
	if err != nil {
		return fmt.Errorf("policy: read %s: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("policy: parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("policy: parse %s: %w", path, err)
		}
		bridge, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("policy: parse %s: %w", path, err)
		}
		if err := json.Unmarshal(bridge, out); err != nil {
			return fmt.Errorf("policy: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("policy: %s: unsupported document format (want .json, .yaml or .yml)", path)
	}
	return nil
}
