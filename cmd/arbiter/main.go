// Command arbiter audits recorded mobile-agent episodes. It extracts
// facts from an episode bundle, evaluates the compiled assertion set
// and writes the canonical record files back into the bundle, then
// records the run in the catalog and optionally archives the bundle.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/detector"
)

// Version is the CLI release. The engine stamps its own version into
// every summary it patches.
const Version = "0.3.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "receipt":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: arbiter receipt <verify> [flags]")
			return 2
		}
		return runReceiptCmd(args[2:], stdout, stderr)
	case "catalog":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: arbiter catalog <list|get> [flags]")
			return 2
		}
		return runCatalogCmd(args[2:], stdout, stderr)
	case "detectors":
		return runDetectorsCmd(stdout)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "arbiter %s (engine %s)\n", Version, audit.EngineVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%s %s\n", color.New(color.Bold, color.FgBlue).Sprint("Arbiter"), Version)
	_, _ = fmt.Fprintln(w, color.New(color.Faint).Sprint("Agents act. The arbiter grades."))
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%s\n", color.New(color.Bold).Sprint("USAGE:"))
	_, _ = fmt.Fprintln(w, "  arbiter <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "AUDIT")
	printCommand(w, "audit", "Audit an episode bundle (--episode, --policy, --eval)")
	printCommand(w, "detectors", "List built-in detectors in execution order")

	printSection(w, "RECORDS")
	printCommand(w, "receipt", "Verify a signed audit receipt (verify --token)")
	printCommand(w, "catalog", "Query recorded audit runs (list|get)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s\n", color.New(color.Bold, color.FgCyan).Sprintf("%s:", title))
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s %s\n", color.GreenString("%-12s", name), desc)
}

func runDetectorsCmd(stdout io.Writer) int {
	for _, d := range detector.DefaultRegistry().Detectors() {
		_, _ = fmt.Fprintln(stdout, d.ID())
	}
	return 0
}
