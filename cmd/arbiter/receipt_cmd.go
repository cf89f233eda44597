package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Mindburn-Labs/arbiter/pkg/config"
)

// runReceiptCmd implements `arbiter receipt verify`.
//
// Re-derives the verification key from the configured seed file, so the
// profile must name the same seed the issuing runner used.
//
// Exit codes:
//
//	0 = receipt valid
//	1 = receipt invalid
//	2 = usage or configuration error
func runReceiptCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "verify":
		return runReceiptVerify(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown receipt subcommand: %s\n", args[0])
		return 2
	}
}

func runReceiptVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("receipt verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		tokenFile  string
		configPath string
		jsonOutput bool
	)
	cmd.StringVar(&tokenFile, "token", "", "File holding the receipt token (REQUIRED)")
	cmd.StringVar(&configPath, "config", "", "Runner profile (default: $ARBITER_CONFIG, then arbiter.yaml)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the verified claims as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if tokenFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --token is required")
		return 2
	}

	profile, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if profile.Receipt.SeedFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: receipt verification needs receipt.seed_file in the profile")
		return 2
	}

	raw, err := os.ReadFile(tokenFile) //nolint:gosec // caller-supplied token path
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read token: %v\n", err)
		return 2
	}

	issuer, err := newIssuer(profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	claims, err := issuer.Verify(strings.TrimSpace(string(raw)))
	if err != nil {
		_, _ = fmt.Fprintf(stdout, "%s receipt verification FAILED: %v\n", color.RedString("✗"), err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(claims, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%s receipt VERIFIED\n", color.GreenString("✓"))
	_, _ = fmt.Fprintf(stdout, "Episode: %s\n", claims.EpisodeID)
	_, _ = fmt.Fprintf(stdout, "Run:     %s\n", claims.RunID)
	_, _ = fmt.Fprintf(stdout, "Outcome: %s (%d pass / %d fail / %d inconclusive)\n",
		claims.Outcome, claims.Pass, claims.Fail, claims.Inconclusive)
	_, _ = fmt.Fprintf(stdout, "Facts digest:      %s\n", claims.FactsDigest)
	_, _ = fmt.Fprintf(stdout, "Assertions digest: %s\n", claims.AssertionsDigest)
	if claims.IssuedAt != nil {
		_, _ = fmt.Fprintf(stdout, "Issued:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	}
	return 0
}
