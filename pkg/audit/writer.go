package audit

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/Mindburn-Labs/arbiter/pkg/canonicalize"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// outputPath keeps a re-audit writing where the previous pass wrote:
// an existing artifact is replaced in place, a fresh one lands at the
// bundle root.
func outputPath(b *episode.Bundle, name string) string {
	if path, ok := b.Resolve(name); ok {
		return path
	}
	return filepath.Join(b.Root(), name)
}

// writeFacts persists facts as canonical JSON lines and returns the
// SHA-256 of the written bytes.
func writeFacts(path string, facts []contracts.Fact) (string, error) {
	var buf bytes.Buffer
	for i := range facts {
		if err := appendCanonicalLine(&buf, facts[i]); err != nil {
			return "", fmt.Errorf("audit: encode fact %s: %w", facts[i].FactID, err)
		}
	}
	return flushRecords(path, buf.Bytes())
}

// writeResults persists assertion results as canonical JSON lines and
// returns the SHA-256 of the written bytes.
func writeResults(path string, results []contracts.AssertionResult) (string, error) {
	var buf bytes.Buffer
	for i := range results {
		if err := appendCanonicalLine(&buf, results[i]); err != nil {
			return "", fmt.Errorf("audit: encode result %s: %w", results[i].AssertionID, err)
		}
	}
	return flushRecords(path, buf.Bytes())
}

func appendCanonicalLine(buf *bytes.Buffer, record any) error {
	line, err := canonicalize.JCS(record)
	if err != nil {
		return err
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return nil
}

func flushRecords(path string, data []byte) (string, error) {
	if err := episode.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("audit: write %s: %w", filepath.Base(path), err)
	}
	return canonicalize.HashBytes(data), nil
}
