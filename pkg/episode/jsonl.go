package episode

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// maxJSONLLine bounds a single trace line. Anything larger is a
// malformed or adversarial artifact.
const maxJSONLLine = 8 * 1024 * 1024

// Line is one non-blank JSONL line with its 1-based line number. Blank
// lines keep their number so refs stay aligned with the raw file.
type Line struct {
	N   int
	Raw []byte
}

// ReadJSONL loads the named artifact line by line. It does not decode
// the lines; callers unmarshal Raw themselves so a broken line can be
// reported with its exact number.
func (b *Bundle) ReadJSONL(name string) ([]Line, error) {
	path, ok := b.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("episode: artifact %s: %w", name, os.ErrNotExist)
	}
	f, err := os.Open(path) //nolint:gosec // path derives from the bundle root
	if err != nil {
		return nil, fmt.Errorf("episode: open %s: %w", name, err)
	}
	defer f.Close() //nolint:errcheck // best-effort close

	var lines []Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLLine)
	n := 0
	for scanner.Scan() {
		n++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		lines = append(lines, Line{N: n, Raw: out})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("episode: scan %s: %w", name, err)
	}
	return lines, nil
}
