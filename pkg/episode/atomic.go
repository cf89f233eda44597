package episode

import (
	"fmt"
	"os"
)

// WriteFileAtomic writes data to path via a temp file and rename, so a
// crash mid-write never leaves a truncated artifact behind.
func WriteFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: 0644 is intentional for readable audit artifacts
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("episode: write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("episode: commit %s: %w", path, err)
	}
	return nil
}
