package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/themedup/internal/cli"
	"horse.fit/themedup/internal/db"
)

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := pool.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeRunList(os.Stdout, items); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render runs table: %v\n", err)
		return 1
	}
	return 0
}

func runShowRun(args []string) int {
	fs := flag.NewFlagSet("show-run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	runUUID := fs.String("uuid", "", "Run UUID")
	withPairs := fs.Bool("pairs", false, "Include every scored pair (json format only)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	trimmedUUID := strings.TrimSpace(*runUUID)
	if _, err := uuid.Parse(trimmedUUID); err != nil {
		fmt.Fprintln(os.Stderr, "--uuid must be a valid UUID")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	detail, err := pool.GetRun(ctx, trimmedUUID, *withPairs && outputFormat == outputFormatJSON)
	if err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "Run not found: %s\n", trimmedUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load run: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(detail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeRunDetail(os.Stdout, detail); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render run: %v\n", err)
		return 1
	}
	return 0
}

func writeRunList(w io.Writer, items []db.RunSummary) error {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.RunUUID,
			formatUTCTimestamp(item.StartedAt),
			item.Source,
			item.Preset,
			fmt.Sprintf("%d", item.ThemeCount),
			fmt.Sprintf("%d", item.AcceptedCount),
			fmt.Sprintf("%d", item.ClusterCount),
			fmt.Sprintf("%d", item.UnclusteredCount),
			fmt.Sprintf("%d", item.SingletonCount),
		})
	}
	return writeTable(w, []string{"run_uuid", "started_at", "source", "preset", "themes", "accepted", "clusters", "unclustered", "singletons"}, rows)
}

func writeRunDetail(w io.Writer, detail *db.RunDetail) error {
	run := detail.Run
	if _, err := fmt.Fprintf(w, "run=%s source=%s preset=%s started_at=%s themes=%d clusters=%d unclustered=%d singletons=%d\n\n",
		run.RunUUID, run.Source, run.Preset, formatUTCTimestamp(run.StartedAt),
		run.ThemeCount, run.ClusterCount, run.UnclusteredCount, run.SingletonCount,
	); err != nil {
		return err
	}

	if err := writeTable(w, []string{"cluster", "facet", "members", "coverage", "canonical"}, clusterRows(detail.Clusters)); err != nil {
		return err
	}
	if len(detail.Unclustered) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(detail.Unclustered))
	for _, u := range detail.Unclustered {
		rows = append(rows, []string{u.ThemeID, string(u.Reason), strings.Join(u.Related, ",")})
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return writeTable(w, []string{"theme", "reason", "related"}, rows)
}
