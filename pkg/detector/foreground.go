package detector

import (
	"encoding/json"
	"sort"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// foregroundEntry is the schema of one foreground_trace.jsonl line.
type foregroundEntry struct {
	TSMS     int64  `json:"ts_ms"`
	Pkg      string `json:"pkg"`
	Activity string `json:"activity"`
}

// ForegroundApps reconstructs the sequence of foreground packages the
// agent visited. Every entry keeps its line number so scope violations
// can point at the exact observation.
type ForegroundApps struct{}

// NewForegroundApps creates the detector.
func NewForegroundApps() *ForegroundApps { return &ForegroundApps{} }

func (*ForegroundApps) ID() string { return "foreground_pkgs" }

func (*ForegroundApps) Extract(b *episode.Bundle, _ *contracts.CaseContext) ([]contracts.Fact, error) {
	lines, err := b.ReadJSONL(episode.ForegroundTraceFile)
	if err != nil {
		return nil, err
	}

	refs := []string{episode.ForegroundTraceFile}
	var (
		entries   []map[string]any
		malformed []int
	)
	pkgSet := make(map[string]struct{})

	for _, line := range lines {
		var e foregroundEntry
		if err := json.Unmarshal(line.Raw, &e); err != nil || e.Pkg == "" {
			malformed = append(malformed, line.N)
			continue
		}
		entries = append(entries, map[string]any{
			"pkg":   e.Pkg,
			"line":  line.N,
			"ts_ms": e.TSMS,
		})
		pkgSet[e.Pkg] = struct{}{}
		refs = append(refs, contracts.LineRef(episode.ForegroundTraceFile, line.N))
	}

	packages := make([]string, 0, len(pkgSet))
	for p := range pkgSet {
		packages = append(packages, p)
	}
	sort.Strings(packages)

	payload := map[string]any{
		"entries":    entries,
		"packages":   packages,
		"trace_file": episode.ForegroundTraceFile,
	}
	if len(malformed) > 0 {
		payload["malformed_lines"] = malformed
	}

	return []contracts.Fact{{
		FactID:        contracts.FactForegroundPkgSeq,
		SchemaVersion: contracts.FactSchemaVersion,
		OracleSource:  traceSource(b),
		EvidenceRefs:  refs,
		Payload:       payload,
	}}, nil
}
