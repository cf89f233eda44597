//go:build gcp

package archive

import "context"

func openGCS(ctx context.Context, cfg Config) (Store, error) {
	return NewGCSStore(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
