// Package config loads the runner profile: which catalog, archive,
// lease, and telemetry backends an arbiter process talks to, plus the
// detector set and receipt signing material. The profile is YAML
// (conventionally arbiter.yaml) with environment overrides for the
// handful of settings that differ per deployment.
package config

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/arbiter/pkg/archive"
	"github.com/Mindburn-Labs/arbiter/pkg/lease"
)

// Profile is the runner configuration.
type Profile struct {
	LogLevel  string          `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	PolicyDir string          `yaml:"policy_dir,omitempty" json:"policy_dir,omitempty"`
	Detectors []string        `yaml:"detectors,omitempty" json:"detectors,omitempty"`
	Catalog   CatalogConfig   `yaml:"catalog,omitempty" json:"catalog,omitempty"`
	Archive   archive.Config  `yaml:"archive,omitempty" json:"archive,omitempty"`
	Lease     lease.Config    `yaml:"lease,omitempty" json:"lease,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
	Receipt   ReceiptConfig   `yaml:"receipt,omitempty" json:"receipt,omitempty"`
}

// CatalogConfig selects where audit runs are indexed.
type CatalogConfig struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"` // memory (default), sqlite, postgres
	DSN     string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// TelemetryConfig controls OTLP export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Endpoint    string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SampleRate  float64 `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Environment string  `yaml:"environment,omitempty" json:"environment,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// ReceiptConfig controls receipt signing. SeedFile points at a 32-byte
// ed25519 seed; without one the runner mints an ephemeral root per
// process, whose receipts verify within the batch but not across
// restarts. A zero TTL means receipts never expire.
type ReceiptConfig struct {
	SeedFile string `yaml:"seed_file,omitempty" json:"seed_file,omitempty"`
	TTLHours int    `yaml:"ttl_hours,omitempty" json:"ttl_hours,omitempty"`
}

// Default returns the profile a bare runner starts with: local
// filesystem archive, in-memory catalog, no lease, telemetry off.
func Default() *Profile {
	return &Profile{
		LogLevel: "info",
		Catalog:  CatalogConfig{Backend: "memory"},
		Archive: archive.Config{
			Backend: archive.BackendFS,
			Dir:     filepath.Join("data", "archive"),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			SampleRate:  1.0,
			Environment: "development",
		},
	}
}

// LoggerLevel maps the profile's log_level onto slog.
func (p *Profile) LoggerLevel() slog.Level {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
