package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// priorAudit is the trust signal a pre-existing summary recorded.
type priorAudit struct {
	Trust  contracts.TrustLevel
	Source contracts.OracleSource
}

// readPriorAudit scans existing summaries for the strongest trust
// signal a previous pass (or the harness itself) recorded. Unreadable
// summaries are skipped here; patching them will fail loudly later.
func readPriorAudit(paths []string) priorAudit {
	prior := priorAudit{Trust: contracts.TrustUnknown, Source: contracts.OracleSourceNone}
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // paths come from bundle discovery
		if err != nil {
			continue
		}
		var doc map[string]any
		if json.Unmarshal(data, &doc) != nil {
			continue
		}
		block, _ := doc["audit"].(map[string]any)
		if block == nil {
			continue
		}
		level, _ := block["trust_level"].(string)
		trust := contracts.TrustLevel(level)
		if trust.Rank() > prior.Trust.Rank() {
			prior.Trust = trust
			prior.Source = contracts.OracleSourceNone
			if src, ok := block["oracle_source"].(string); ok {
				prior.Source = contracts.OracleSource(src)
			}
		}
	}
	return prior
}

// patchSummary merges the audit block into one summary file without
// disturbing unrelated fields, then replaces the file atomically.
//
// The violations array is written when this pass produced violations or
// the summary already carried the key; a summary that never had one and
// has nothing to report stays untouched in that respect.
func patchSummary(path string, block map[string]any, violations []Violation) error {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from bundle discovery
	if err != nil {
		return fmt.Errorf("audit: read summary: %w", err)
	}
	doc := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("audit: summary %s is not a JSON object: %w", filepath.Base(path), err)
		}
	}

	doc["audit"] = block
	if _, has := doc["violations"]; has || len(violations) > 0 {
		if violations == nil {
			violations = []Violation{}
		}
		doc["violations"] = violations
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: encode summary: %w", err)
	}
	out = append(out, '\n')
	if err := episode.WriteFileAtomic(path, out); err != nil {
		return fmt.Errorf("audit: patch summary: %w", err)
	}
	return nil
}
