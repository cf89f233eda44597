package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrEmptyDir is returned when the pack request names no bundle.
	ErrEmptyDir = errors.New("archive: bundle dir must not be empty")
)

// manifestName is the checksum manifest added at the pack root.
const manifestName = "pack_manifest.json"

// PackRequest names the finalized bundle to archive.
type PackRequest struct {
	Dir       string `json:"dir"`
	EpisodeID string `json:"episode_id"`
	RunID     string `json:"run_id"`
}

// Packer zips episode bundles with a checksum manifest.
type Packer struct {
	clock func() time.Time
}

// NewPacker creates a packer stamping manifests with wall-clock time.
func NewPacker() *Packer {
	return &Packer{clock: time.Now}
}

// WithClock overrides the manifest timestamp source.
func (p *Packer) WithClock(clock func() time.Time) *Packer {
	p.clock = clock
	return p
}

// Pack zips every file under the bundle directory (walk order, so the
// layout is stable) together with a manifest of per-file SHA-256
// checksums, and returns the zip bytes plus their content hash.
func (p *Packer) Pack(req PackRequest) ([]byte, string, error) {
	if req.Dir == "" {
		return nil, "", ErrEmptyDir
	}
	info, err := os.Stat(req.Dir)
	if err != nil {
		return nil, "", fmt.Errorf("archive: stat bundle: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("archive: %s is not a directory", req.Dir)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	checksums := map[string]string{}

	err = filepath.WalkDir(req.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(req.Dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path) //nolint:gosec // path comes from walking the bundle
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		checksums[rel] = hex.EncodeToString(sum[:])

		f, err := w.Create(rel)
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("archive: pack bundle: %w", err)
	}

	manifest := map[string]any{
		"episode_id":   req.EpisodeID,
		"run_id":       req.RunID,
		"generated_at": p.clock().UTC().Format(time.RFC3339Nano),
		"file_count":   len(checksums),
		"files":        checksums,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("archive: encode manifest: %w", err)
	}
	f, err := w.Create(manifestName)
	if err != nil {
		return nil, "", fmt.Errorf("archive: add manifest: %w", err)
	}
	if _, err := f.Write(manifestJSON); err != nil {
		return nil, "", fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("archive: close pack: %w", err)
	}

	data := buf.Bytes()
	return data, HashOf(data), nil
}
