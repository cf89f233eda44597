package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Mindburn-Labs/arbiter/pkg/archive"
	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/catalog"
	"github.com/Mindburn-Labs/arbiter/pkg/config"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/detector"
	"github.com/Mindburn-Labs/arbiter/pkg/lease"
	"github.com/Mindburn-Labs/arbiter/pkg/observability"
	"github.com/Mindburn-Labs/arbiter/pkg/policy"
	"github.com/Mindburn-Labs/arbiter/pkg/receipt"
)

// auditLeaseTTL bounds one engine invocation; the lease lapses on its
// own if the process dies without releasing it.
const auditLeaseTTL = 10 * time.Minute

// auditOutput is the --json shape of a finished run.
type auditOutput struct {
	EpisodeID        string                      `json:"episode_id"`
	RunID            string                      `json:"run_id"`
	Summary          audit.Summary               `json:"summary"`
	FactsDigest      string                      `json:"facts_digest"`
	AssertionsDigest string                      `json:"assertions_digest"`
	Results          []contracts.AssertionResult `json:"results"`
	Receipt          string                      `json:"receipt,omitempty"`
	Archive          string                      `json:"archive,omitempty"`
}

// runAuditCmd implements `arbiter audit`.
//
// Exit codes:
//
//	0 = audit completed, outcome PASS or INCONCLUSIVE
//	1 = audit completed with outcome FAIL, or a runtime error
//	2 = usage or configuration error
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		episodeDir string
		policyPath string
		evalPath   string
		taskID     string
		caseID     string
		impact     string
		configPath string
		jsonOutput bool
		archiveIt  bool
		receiptOut string
	)

	cmd.StringVar(&episodeDir, "episode", "", "Path to the episode bundle directory (REQUIRED)")
	cmd.StringVar(&policyPath, "policy", "", "Safety policy document (JSON or YAML)")
	cmd.StringVar(&evalPath, "eval", "", "Eval spec document (JSON or YAML)")
	cmd.StringVar(&taskID, "task-id", "", "Task id recorded on emitted records")
	cmd.StringVar(&caseID, "case-id", "", "Case id recorded on emitted records")
	cmd.StringVar(&impact, "impact-level", "", "Impact level recorded on emitted records")
	cmd.StringVar(&configPath, "config", "", "Runner profile (default: $ARBITER_CONFIG, then arbiter.yaml)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON to stdout")
	cmd.BoolVar(&archiveIt, "archive", false, "Pack and store the audited bundle in the archive backend")
	cmd.StringVar(&receiptOut, "receipt-out", "", "Write the signed receipt token to this file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if episodeDir == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --episode is required")
		return 2
	}

	profile, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: profile.LoggerLevel()}))

	ctx := context.Background()

	telemetry, err := observability.New(ctx, telemetryConfig(profile))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry init: %v\n", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// One engine invocation per bundle directory. The key is the
	// resolved path so relative and absolute invocations contend.
	locker := lease.Open(profile.Lease)
	leaseKey, err := filepath.Abs(episodeDir)
	if err != nil {
		leaseKey = episodeDir
	}
	held, err := locker.Acquire(ctx, leaseKey, auditLeaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			_, _ = fmt.Fprintf(stderr, "Error: another audit run holds the lease for %s\n", episodeDir)
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "Error: acquire lease: %v\n", err)
		return 1
	}
	defer func() {
		if err := locker.Release(context.Background(), held); err != nil {
			logger.Warn("lease release", "error", err)
		}
	}()

	engine, err := audit.NewEngine()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = engine.Close() }()
	engine.WithLogger(logger.With("component", "audit_engine")).WithTelemetry(telemetry)

	if len(profile.Detectors) > 0 {
		subset, err := detector.DefaultRegistry().Subset(profile.Detectors...)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		engine.WithDetectors(subset)
	}

	cc := contracts.CaseContext{
		TaskID:      taskID,
		CaseID:      caseID,
		ImpactLevel: impact,
		PolicyDir:   profile.PolicyDir,
	}
	if policyPath != "" {
		pol, err := policy.LoadPolicy(policyPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		cc.Policy = pol
		cc.PolicyDir = filepath.Dir(policyPath)
	}
	if evalPath != "" {
		ev, err := policy.LoadEval(evalPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		cc.Eval = ev
	}

	started := time.Now()
	report, err := engine.Run(ctx, episodeDir, cc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: audit failed: %v\n", err)
		return 1
	}

	issuer, err := newIssuer(profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := issuer.Issue(report)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if receiptOut != "" {
		if err := os.WriteFile(receiptOut, []byte(token), 0o600); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write receipt: %v\n", err)
			return 1
		}
	}

	store, closeStore, err := catalog.Open(profile.Catalog.Backend, profile.Catalog.DSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closeStore() }()
	if err := store.Record(ctx, catalog.FromReport(report, token)); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: record audit run: %v\n", err)
		return 1
	}

	var archiveHash string
	if archiveIt {
		archiveHash, err = archiveBundle(ctx, profile, episodeDir, report)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: archive bundle: %v\n", err)
			return 1
		}
	}

	if jsonOutput {
		out := auditOutput{
			EpisodeID:        report.EpisodeID,
			RunID:            report.RunID,
			Summary:          report.Summary,
			FactsDigest:      report.FactsDigest,
			AssertionsDigest: report.AssertionsDigest,
			Results:          report.Results,
			Receipt:          token,
			Archive:          archiveHash,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, report, time.Since(started), archiveHash)
	}

	if report.Summary.Outcome == contracts.ResultFail {
		return 1
	}
	return 0
}

// telemetryConfig maps the runner profile onto the provider config.
func telemetryConfig(p *config.Profile) *observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = audit.EngineVersion
	cfg.Enabled = p.Telemetry.Enabled
	cfg.Insecure = p.Telemetry.Insecure
	if p.Telemetry.Endpoint != "" {
		cfg.OTLPEndpoint = p.Telemetry.Endpoint
	}
	if p.Telemetry.SampleRate > 0 {
		cfg.SampleRate = p.Telemetry.SampleRate
	}
	if p.Telemetry.Environment != "" {
		cfg.Environment = p.Telemetry.Environment
	}
	return cfg
}

// newIssuer builds the receipt issuer from the profile: a deterministic
// keypair when a seed file is configured, an ephemeral one otherwise.
func newIssuer(p *config.Profile) (*receipt.Issuer, error) {
	var root receipt.KeyProvider
	if p.Receipt.SeedFile != "" {
		seed, err := receipt.LoadSeed(p.Receipt.SeedFile)
		if err != nil {
			return nil, err
		}
		kp, err := receipt.NewMemoryKeyProviderFromSeed(seed)
		if err != nil {
			return nil, err
		}
		root = kp
	} else {
		kp, err := receipt.NewMemoryKeyProvider()
		if err != nil {
			return nil, err
		}
		root = kp
	}
	issuer := receipt.NewIssuer(root)
	if p.Receipt.TTLHours > 0 {
		issuer = issuer.WithTTL(time.Duration(p.Receipt.TTLHours) * time.Hour)
	}
	return issuer, nil
}

// archiveBundle packs the audited bundle and stores the zip in the
// configured archive backend, returning the content hash.
func archiveBundle(ctx context.Context, profile *config.Profile, dir string, report *audit.Report) (string, error) {
	blob, _, err := archive.NewPacker().Pack(archive.PackRequest{
		Dir:       dir,
		EpisodeID: report.EpisodeID,
		RunID:     report.RunID,
	})
	if err != nil {
		return "", err
	}
	store, err := archive.Open(ctx, profile.Archive)
	if err != nil {
		return "", err
	}
	return store.Store(ctx, blob)
}

func printReport(w io.Writer, report *audit.Report, elapsed time.Duration, archiveHash string) {
	_, _ = fmt.Fprintf(w, "Episode %s audited in %s (run %s)\n\n",
		report.EpisodeID, elapsed.Round(time.Millisecond), report.RunID)

	_, _ = fmt.Fprintf(w, "  %-44s %-14s %s\n", "ASSERTION", "VERDICT", "SEVERITY")
	for _, r := range report.Results {
		sev := string(r.Severity)
		if sev == "" {
			sev = "-"
		}
		_, _ = fmt.Fprintf(w, "  %-44s %s %s\n", r.AssertionID, verdictCell(r.Result), sev)
	}

	c := report.Summary.Counts
	_, _ = fmt.Fprintf(w, "\nOutcome: %s  (%d pass / %d fail / %d inconclusive)\n",
		outcomeCell(report.Summary.Outcome), c.Pass, c.Fail, c.Inconclusive)
	if ts := report.Summary.TaskSuccess; ts != nil {
		_, _ = fmt.Fprintf(w, "Task success: %t\n", *ts)
	} else {
		_, _ = fmt.Fprintln(w, "Task success: unknown")
	}
	_, _ = fmt.Fprintf(w, "Trust: %s (oracle source %s)\n",
		report.Summary.TrustLevel, report.Summary.OracleSource)
	_, _ = fmt.Fprintf(w, "Facts digest:      %s\n", report.FactsDigest)
	_, _ = fmt.Fprintf(w, "Assertions digest: %s\n", report.AssertionsDigest)

	if len(report.Summary.Violations) > 0 {
		_, _ = fmt.Fprintln(w, "\nViolations:")
		for _, v := range report.Summary.Violations {
			_, _ = fmt.Fprintf(w, "  - %s", color.RedString(v.AssertionID))
			if v.Severity != "" {
				_, _ = fmt.Fprintf(w, " (%s)", v.Severity)
			}
			if len(v.EvidenceRefs) > 0 {
				_, _ = fmt.Fprintf(w, " evidence: %s", strings.Join(v.EvidenceRefs, ", "))
			}
			_, _ = fmt.Fprintln(w)
		}
	}
	if archiveHash != "" {
		_, _ = fmt.Fprintf(w, "\nArchived: %s\n", archiveHash)
	}
}

// verdictCell pads before colorizing so escape codes stay out of the
// column width.
func verdictCell(r contracts.Result) string {
	switch r {
	case contracts.ResultPass:
		return color.GreenString("%-14s", string(r))
	case contracts.ResultFail:
		return color.RedString("%-14s", string(r))
	default:
		return color.YellowString("%-14s", string(r))
	}
}

func outcomeCell(r contracts.Result) string {
	switch r {
	case contracts.ResultPass:
		return color.New(color.FgGreen, color.Bold).Sprint(string(r))
	case contracts.ResultFail:
		return color.New(color.FgRed, color.Bold).Sprint(string(r))
	default:
		return color.New(color.FgYellow, color.Bold).Sprint(string(r))
	}
}
