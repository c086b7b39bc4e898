package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/themedup/internal/cli"
	"horse.fit/themedup/internal/config"
	"horse.fit/themedup/internal/db"
	"horse.fit/themedup/internal/dedup"
	"horse.fit/themedup/internal/embedding"
	"horse.fit/themedup/internal/langdetect"
	"horse.fit/themedup/internal/theme"
)

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	input := fs.String("input", "", "Theme file (JSON array, {\"themes\": [...]} or JSONL)")
	fromDB := fs.Bool("from-db", false, "Load active themes from research.themes")
	subject := fs.String("subject", "", "Only deduplicate themes of this subject")
	preset := fs.String("preset", "", "Threshold preset: broad or strict (default DEDUP_PRESET)")
	out := fs.String("out", "", "Write the full run result as JSON to this file (- for stdout)")
	persist := fs.Bool("persist", false, "Store the run in the research schema")
	format := fs.String("format", outputFormatTable, "Summary format: table or json")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	inputPath := strings.TrimSpace(*input)
	if (inputPath == "") == !*fromDB {
		fmt.Fprintln(os.Stderr, "exactly one of --input or --from-db is required")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if p := strings.TrimSpace(*preset); p != "" {
		cfg.DedupPreset = p
	}
	settings, err := cfg.DedupSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid dedup settings: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var pool *db.Pool
	if *fromDB || *persist {
		pool, err = db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("dedup command failed to connect to database")
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()
	}

	var (
		themes      []theme.Theme
		quarantined []theme.Quarantined
		source      = db.RunSourceFile
	)
	if *fromDB {
		source = db.RunSourceDatabase
		themes, quarantined, err = pool.LoadThemes(ctx, *subject)
		if err != nil {
			logger.Error().Err(err).Str("subject", *subject).Msg("load themes failed")
			fmt.Fprintf(os.Stderr, "Failed to load themes: %v\n", err)
			return 1
		}
	} else {
		themes, quarantined, err = readThemeFile(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read themes: %v\n", err)
			return 1
		}
		themes = filterSubject(themes, *subject)
	}
	for _, q := range quarantined {
		logger.Warn().Int("index", q.Index).Str("theme_id", q.ID).Str("reason", q.Reason).Msg("quarantined theme record")
	}

	engine, err := newEngine(cfg, settings, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dedup engine: %v\n", err)
		return 1
	}

	result, err := engine.Run(ctx, themes)
	if err != nil {
		logger.Error().Err(err).Int("themes", len(themes)).Msg("dedup run failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}
	result.RecordQuarantined(quarantined)

	if target := strings.TrimSpace(*out); target != "" {
		if err := writeResultFile(target, result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write result: %v\n", err)
			return 1
		}
	}

	if *persist {
		runUUID, err := pool.SaveRun(ctx, result, source)
		if err != nil {
			logger.Error().Err(err).Str("run_id", result.RunID).Msg("persist dedup run failed")
			fmt.Fprintf(os.Stderr, "Failed to persist run: %v\n", err)
			return 1
		}
		logger.Info().Str("run_uuid", runUUID).Str("source", source).Msg("dedup run persisted")
	}

	if strings.TrimSpace(*out) == "-" {
		return 0
	}
	if outputFormat == outputFormatJSON {
		if err := printJSON(result.Stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}
	if err := writeRunSummary(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary: %v\n", err)
		return 1
	}
	return 0
}

// newEngine wires the HTTP embedding provider, the batcher and, when the
// language gate is on, lingua detection into a dedup engine.
func newEngine(cfg *config.Config, settings dedup.Settings, logger zerolog.Logger) (*dedup.Engine, error) {
	provider := embedding.NewHTTPProvider(cfg.HTTPEmbeddingOptions(), nil)
	batcher := embedding.NewBatcher(provider, cfg.BatchOptions(), logger)

	var opts []dedup.Option
	if settings.LanguageGate {
		opts = append(opts, dedup.WithLanguageDetector(langdetect.Default().DetectISO6391))
	}
	return dedup.NewEngine(settings, batcher, logger, opts...)
}

func readThemeFile(path string) ([]theme.Theme, []theme.Quarantined, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	themes, quarantined, err := theme.ParseRecords(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return themes, quarantined, nil
}

func filterSubject(themes []theme.Theme, subject string) []theme.Theme {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return themes
	}
	out := make([]theme.Theme, 0, len(themes))
	for _, t := range themes {
		if t.Subject == trimmed {
			out = append(out, t)
		}
	}
	return out
}

func writeResultFile(target string, result *dedup.Result) error {
	if target == "-" {
		return printJSON(result)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if err := writeJSON(f, result); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", target, err)
	}
	return f.Close()
}

func writeRunSummary(w io.Writer, result *dedup.Result) error {
	s := result.Stats
	if _, err := fmt.Fprintf(w,
		"dedup run=%s preset=%s themes=%d skipped=%d candidate_pairs=%d gated=%d accepted=%d clusters=%d unclustered=%d singletons=%d evidence_links=%d embedding_failures=%d elapsed_ms=%d\n",
		result.RunID, result.Settings.Preset,
		s.Themes, s.Skipped, s.CandidatePairs, s.Gated, s.Accepted,
		s.Clusters, s.Unclustered, s.Singletons, s.EvidenceLinks, s.EmbeddingFailures,
		s.ElapsedMilliseconds,
	); err != nil {
		return err
	}
	if len(result.Clusters) == 0 {
		return nil
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return writeTable(w, []string{"cluster", "facet", "members", "coverage", "canonical"}, clusterRows(result.Clusters))
}

func clusterRows(clusters []dedup.Cluster) [][]string {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ID,
			c.Facet,
			fmt.Sprintf("%d", len(c.Members)),
			fmt.Sprintf("%d (%.0f%%)", c.InterviewsCovered, c.CoverageShare*100),
			truncateForTable(c.CanonicalStatement, 72),
		})
	}
	return rows
}
