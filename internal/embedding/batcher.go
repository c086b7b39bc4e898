package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

// BatchOptions bounds how a Batcher talks to its provider.
type BatchOptions struct {
	BatchSize   int
	Concurrency int
	// RequestsPerSecond limits provider calls; zero or less means unlimited.
	RequestsPerSecond float64
}

// Failure records a text whose vector is unavailable.
type Failure struct {
	Index  int
	Reason string
}

// Batcher deduplicates texts, chunks them into provider batches and issues the
// batches concurrently under a concurrency and rate limit. A failing batch
// only marks its own texts as unavailable.
type Batcher struct {
	provider Provider
	opts     BatchOptions
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

func NewBatcher(provider Provider, opts BatchOptions, logger zerolog.Logger) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Concurrency)
	}

	return &Batcher{
		provider: provider,
		opts:     opts,
		limiter:  limiter,
		logger:   logger,
	}
}

type chunk struct {
	start int
	texts []string
}

// Embed returns one vector per input text (nil when unavailable) and the
// failures in index order. The error is non-nil only when ctx ends.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float64, []Failure, error) {
	vectors := make([][]float64, len(texts))
	if len(texts) == 0 {
		return vectors, nil, nil
	}

	unique, positions := dedupeTexts(texts)
	uniqueVectors := make([][]float64, len(unique))
	uniqueReasons := make([]string, len(unique))

	chunks := make([]chunk, 0, (len(unique)+b.opts.BatchSize-1)/b.opts.BatchSize)
	for start := 0; start < len(unique); start += b.opts.BatchSize {
		end := min(start+b.opts.BatchSize, len(unique))
		chunks = append(chunks, chunk{start: start, texts: unique[start:end]})
	}

	var group errgroup.Group
	group.SetLimit(b.opts.Concurrency)
	for _, c := range chunks {
		group.Go(func() error {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}

			// Each chunk owns the [start, start+len) slice of the outputs.
			batch, err := b.provider.EmbedBatch(ctx, c.texts)
			if err == nil && len(batch) != len(c.texts) {
				err = fmt.Errorf("embedding provider returned %d vectors for %d texts", len(batch), len(c.texts))
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logger.Warn().
					Err(err).
					Int("batch_start", c.start).
					Int("batch_size", len(c.texts)).
					Msg("embedding batch failed")
				for i := range c.texts {
					uniqueReasons[c.start+i] = err.Error()
				}
				return nil
			}

			for i, vector := range batch {
				switch {
				case len(vector) == 0:
					uniqueReasons[c.start+i] = "provider returned no vector"
				case !Finite(vector):
					uniqueReasons[c.start+i] = "provider returned a non-finite vector"
				default:
					uniqueVectors[c.start+i] = vector
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, fmt.Errorf("embed texts: %w", err)
	}

	var failures []Failure
	for i := range texts {
		u := positions[i]
		vectors[i] = uniqueVectors[u]
		if vectors[i] == nil {
			failures = append(failures, Failure{Index: i, Reason: uniqueReasons[u]})
		}
	}
	return vectors, failures, nil
}

func dedupeTexts(texts []string) ([]string, []int) {
	unique := make([]string, 0, len(texts))
	positions := make([]int, len(texts))
	seen := make(map[string]int, len(texts))
	for i, text := range texts {
		if u, ok := seen[text]; ok {
			positions[i] = u
			continue
		}
		seen[text] = len(unique)
		positions[i] = len(unique)
		unique = append(unique, text)
	}
	return unique, positions
}
