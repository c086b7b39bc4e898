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

	"horse.fit/themedup/internal/cli"
	"horse.fit/themedup/internal/db"
	"horse.fit/themedup/internal/embedding"
)

// healthProbeText is embedded to prove the embedding endpoint answers with a
// usable vector, not merely that the port is open.
const healthProbeText = "health check"

type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

type healthOutcome struct {
	name string
	err  error
}

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Timeout for all checks")
	skipEmbedding := fs.Bool("skip-embedding", false, "Do not probe the embedding endpoint")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var checks []healthCheck
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		checks = append(checks, healthCheck{name: "database", probe: func(ctx context.Context) error {
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			return pool.Ping(ctx)
		}})
	}
	if !*skipEmbedding {
		provider := embedding.NewHTTPProvider(cfg.HTTPEmbeddingOptions(), nil)
		checks = append(checks, healthCheck{name: "embedding " + provider.Endpoint(), probe: func(ctx context.Context) error {
			return probeEmbedding(ctx, provider)
		}})
	}
	if len(checks) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to check: DATABASE_URL is empty and --skip-embedding is set")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	outcomes := runHealthChecks(ctx, checks)
	for _, o := range outcomes {
		if o.err != nil {
			logger.Error().Err(o.err).Str("check", o.name).Msg("health check failed")
		}
	}
	if !writeHealthReport(os.Stdout, outcomes) {
		return 1
	}
	return 0
}

func runHealthChecks(ctx context.Context, checks []healthCheck) []healthOutcome {
	outcomes := make([]healthOutcome, 0, len(checks))
	for _, c := range checks {
		outcomes = append(outcomes, healthOutcome{name: c.name, err: c.probe(ctx)})
	}
	return outcomes
}

func probeEmbedding(ctx context.Context, provider embedding.Provider) error {
	vectors, err := provider.EmbedBatch(ctx, []string{healthProbeText})
	if err != nil {
		return err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 || !embedding.Finite(vectors[0]) {
		return errors.New("endpoint returned no usable vector")
	}
	return nil
}

// writeHealthReport prints one line per check and reports whether all passed.
func writeHealthReport(w io.Writer, outcomes []healthOutcome) bool {
	healthy := true
	for _, o := range outcomes {
		if o.err != nil {
			healthy = false
			fmt.Fprintf(w, "fail: %s: %v\n", o.name, o.err)
			continue
		}
		fmt.Fprintf(w, "ok: %s\n", o.name)
	}
	return healthy
}
