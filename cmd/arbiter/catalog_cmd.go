package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/arbiter/pkg/catalog"
	"github.com/Mindburn-Labs/arbiter/pkg/config"
)

// runCatalogCmd implements `arbiter catalog list|get` over the backend
// named by the runner profile.
//
// Exit codes:
//
//	0 = query succeeded
//	1 = query failed or nothing found
//	2 = usage or configuration error
func runCatalogCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "list":
		return runCatalogList(args[1:], stdout, stderr)
	case "get":
		return runCatalogGet(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown catalog subcommand: %s\n", args[0])
		return 2
	}
}

func runCatalogList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("catalog list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		episodeID  string
		limit      int
		configPath string
		jsonOutput bool
	)
	cmd.StringVar(&episodeID, "episode", "", "Episode id to list runs for (REQUIRED)")
	cmd.IntVar(&limit, "limit", 20, "Maximum number of runs to return, newest first")
	cmd.StringVar(&configPath, "config", "", "Runner profile (default: $ARBITER_CONFIG, then arbiter.yaml)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output entries as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if episodeID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --episode is required")
		return 2
	}

	store, closeStore, code := openCatalog(configPath, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = closeStore() }()

	entries, err := store.List(context.Background(), episodeID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(stdout, "No recorded runs for episode %s\n", episodeID)
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%-36s %-14s %-5s %-5s %-5s %s\n", "RUN", "OUTCOME", "PASS", "FAIL", "INC", "AUDITED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(stdout, "%-36s %s %-5d %-5d %-5d %s\n",
			e.RunID, verdictCell(e.Outcome), e.Pass, e.Fail, e.Inconclusive,
			e.AuditedAt.UTC().Format(time.RFC3339))
	}
	return 0
}

func runCatalogGet(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("catalog get", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		episodeID  string
		runID      string
		configPath string
		jsonOutput bool
	)
	cmd.StringVar(&episodeID, "episode", "", "Episode id (REQUIRED)")
	cmd.StringVar(&runID, "run", "", "Run id (REQUIRED)")
	cmd.StringVar(&configPath, "config", "", "Runner profile (default: $ARBITER_CONFIG, then arbiter.yaml)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the entry as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if episodeID == "" || runID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --episode and --run are required")
		return 2
	}

	store, closeStore, code := openCatalog(configPath, stderr)
	if code != 0 {
		return code
	}
	defer func() { _ = closeStore() }()

	entry, err := store.Get(context.Background(), episodeID, runID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if entry == nil {
		_, _ = fmt.Fprintf(stdout, "No recorded run %s for episode %s\n", runID, episodeID)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(entry, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Episode: %s\n", entry.EpisodeID)
	_, _ = fmt.Fprintf(stdout, "Run:     %s\n", entry.RunID)
	_, _ = fmt.Fprintf(stdout, "Outcome: %s (%d pass / %d fail / %d inconclusive)\n",
		outcomeCell(entry.Outcome), entry.Pass, entry.Fail, entry.Inconclusive)
	if entry.TaskSuccess != nil {
		_, _ = fmt.Fprintf(stdout, "Task success: %t\n", *entry.TaskSuccess)
	} else {
		_, _ = fmt.Fprintln(stdout, "Task success: unknown")
	}
	_, _ = fmt.Fprintf(stdout, "Trust:   %s\n", entry.TrustLevel)
	_, _ = fmt.Fprintf(stdout, "Audited: %s\n", entry.AuditedAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(stdout, "Facts digest:      %s\n", entry.FactsDigest)
	_, _ = fmt.Fprintf(stdout, "Assertions digest: %s\n", entry.AssertionsDigest)
	if entry.Receipt != "" {
		_, _ = fmt.Fprintf(stdout, "Receipt: %s\n", entry.Receipt)
	}
	return 0
}

// openCatalog loads the profile and opens its catalog backend. A
// non-zero code means the caller should return it.
func openCatalog(configPath string, stderr io.Writer) (catalog.Store, func() error, int) {
	profile, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, 2
	}
	store, closeStore, err := catalog.Open(profile.Catalog.Backend, profile.Catalog.DSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, 1
	}
	return store, closeStore, 0
}
