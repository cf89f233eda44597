package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/arbiter/pkg/archive"
)

// DefaultPath is the conventional profile location, relative to the
// runner's working directory.
const DefaultPath = "arbiter.yaml"

// EnvConfigPath names the profile file when no flag does.
const EnvConfigPath = "ARBITER_CONFIG"

// Load reads the profile at path. An empty path falls back to
// $ARBITER_CONFIG, then ./arbiter.yaml, then the built-in defaults.
// Keys absent from the file keep their defaults; environment
// overrides apply last.
func Load(path string) (*Profile, error) {
	profile := Default()

	resolved, required := resolvePath(path)
	data, err := os.ReadFile(resolved) //nolint:gosec // operator-chosen profile path
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", resolved, err)
		}
	case required || !os.IsNotExist(err):
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	applyEnv(profile)
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// resolvePath picks the profile file. An explicit path or
// $ARBITER_CONFIG must exist; the conventional arbiter.yaml is
// optional.
func resolvePath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return DefaultPath, false
}

// applyEnv overlays the per-deployment environment overrides.
func applyEnv(p *Profile) {
	if v := os.Getenv("ARBITER_LOG_LEVEL"); v != "" {
		p.LogLevel = v
	}
	if v := os.Getenv("ARBITER_CATALOG_BACKEND"); v != "" {
		p.Catalog.Backend = v
	}
	if v := os.Getenv("ARBITER_CATALOG_DSN"); v != "" {
		p.Catalog.DSN = v
	}
	if v := os.Getenv("ARBITER_LEASE_ENDPOINT"); v != "" {
		p.Lease.Endpoint = v
	}
	if v := os.Getenv("ARBITER_OTLP_ENDPOINT"); v != "" {
		p.Telemetry.Endpoint = v
		p.Telemetry.Enabled = true
	}
	if v := os.Getenv("ARBITER_RECEIPT_SEED_FILE"); v != "" {
		p.Receipt.SeedFile = v
	}
}

// Validate rejects profiles the runner could not honor.
func (p *Profile) Validate() error {
	switch strings.ToLower(p.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", p.LogLevel)
	}

	switch p.Catalog.Backend {
	case "", "memory":
	case "sqlite", "postgres":
		if p.Catalog.DSN == "" {
			return fmt.Errorf("config: catalog backend %q needs a dsn", p.Catalog.Backend)
		}
	default:
		return fmt.Errorf("config: unknown catalog backend %q", p.Catalog.Backend)
	}

	switch p.Archive.Backend {
	case "", archive.BackendFS:
	case archive.BackendS3, archive.BackendGCS:
		if p.Archive.Bucket == "" {
			return fmt.Errorf("config: archive backend %q needs a bucket", p.Archive.Backend)
		}
	default:
		return fmt.Errorf("config: unknown archive backend %q", p.Archive.Backend)
	}

	if p.Telemetry.SampleRate < 0 || p.Telemetry.SampleRate > 1 {
		return fmt.Errorf("config: telemetry sample_rate %v is outside [0, 1]", p.Telemetry.SampleRate)
	}
	if p.Receipt.TTLHours < 0 {
		return fmt.Errorf("config: receipt ttl_hours must not be negative")
	}
	return nil
}
