package archive

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names a blob storage backend.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// Config selects and parameterizes the blob store backing bundle packs.
// Only the fields the chosen backend reads need to be set.
type Config struct {
	Backend  Backend `json:"backend" yaml:"backend"`
	Dir      string  `json:"dir,omitempty" yaml:"dir,omitempty"`
	Bucket   string  `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region   string  `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Prefix   string  `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Open builds the store named by cfg.Backend. An empty backend selects
// the filesystem store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join("data", "archive")
		}
		return NewFileStore(dir)
	case BackendS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case BackendGCS:
		return openGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", backend)
	}
}
