package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/themedup/internal/cli"
	"horse.fit/themedup/internal/db"
	"horse.fit/themedup/internal/globaltime"
)

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	input := fs.String("input", "", "Theme file to upsert (JSON array, envelope or JSONL)")
	strict := fs.Bool("strict", false, "Abort without writing when any record is quarantined")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	inputPath := strings.TrimSpace(*input)
	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "--input is required")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	themes, quarantined, err := readThemeFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read themes: %v\n", err)
		return 1
	}
	for _, q := range quarantined {
		fmt.Fprintf(os.Stderr, "QUARANTINED %s[%d] id=%q: %s\n", inputPath, q.Index, q.ID, q.Reason)
	}
	if *strict && len(quarantined) > 0 {
		fmt.Fprintf(os.Stderr, "Import aborted: %d record(s) quarantined\n", len(quarantined))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("import command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	written, err := pool.UpsertThemes(ctx, themes, globaltime.UTC())
	if err != nil {
		logger.Error().Err(err).Int("themes", len(themes)).Msg("import failed")
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return 1
	}

	logger.Info().
		Str("input", inputPath).
		Int("themes", len(themes)).
		Int("quarantined", len(quarantined)).
		Int64("written", written).
		Msg("import completed")
	fmt.Printf("import themes=%d quarantined=%d written=%d\n", len(themes), len(quarantined), written)
	return 0
}
