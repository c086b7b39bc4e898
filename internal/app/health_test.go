package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"horse.fit/themedup/internal/embedding"
)

func TestProbeEmbedding(t *testing.T) {
	t.Parallel()

	ok := embedding.ProviderFunc(func(_ context.Context, texts []string) ([][]float64, error) {
		if len(texts) != 1 || texts[0] != healthProbeText {
			t.Fatalf("unexpected probe texts: %v", texts)
		}
		return [][]float64{{0.1, 0.2}}, nil
	})
	if err := probeEmbedding(context.Background(), ok); err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}

	nan := embedding.ProviderFunc(func(context.Context, []string) ([][]float64, error) {
		return [][]float64{{math.NaN()}}, nil
	})
	if err := probeEmbedding(context.Background(), nan); err == nil {
		t.Fatalf("expected error for non-finite vector")
	}

	empty := embedding.ProviderFunc(func(context.Context, []string) ([][]float64, error) {
		return nil, nil
	})
	if err := probeEmbedding(context.Background(), empty); err == nil {
		t.Fatalf("expected error for missing vector")
	}
}

func TestHealthReport(t *testing.T) {
	t.Parallel()

	outcomes := runHealthChecks(context.Background(), []healthCheck{
		{name: "database", probe: func(context.Context) error { return nil }},
		{name: "embedding http://localhost:8844/embed", probe: func(context.Context) error { return errors.New("connection refused") }},
	})

	var buf bytes.Buffer
	if writeHealthReport(&buf, outcomes) {
		t.Fatalf("expected unhealthy report")
	}
	out := buf.String()
	if !strings.Contains(out, "ok: database\n") || !strings.Contains(out, "fail: embedding http://localhost:8844/embed: connection refused") {
		t.Fatalf("unexpected report:\n%s", out)
	}

	buf.Reset()
	if !writeHealthReport(&buf, outcomes[:1]) {
		t.Fatalf("expected healthy report")
	}
}
