package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "import":
		return runImport(args[1:])
	case "dedup":
		return runDedup(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "show-run":
		return runShowRun(args[1:])
	case "serve":
		return runServe(args[1:])
	case "hash-key":
		return runHashKey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "themedup CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  themedup <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Check the database and embedding endpoint")
	fmt.Fprintln(os.Stderr, "  validate  Validate theme JSON files against the record schema")
	fmt.Fprintln(os.Stderr, "  import    Upsert theme records from a file into research.themes")
	fmt.Fprintln(os.Stderr, "  dedup     Deduplicate and cluster themes from a file or the database")
	fmt.Fprintln(os.Stderr, "  runs      List persisted dedup runs")
	fmt.Fprintln(os.Stderr, "  show-run  Show clusters and demotions of one persisted run")
	fmt.Fprintln(os.Stderr, "  serve     Start the review API server")
	fmt.Fprintln(os.Stderr, "  hash-key  Generate or hash an API key for API_KEY_HASH")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"themedup <command> -h\" for command-specific flags.")
}
