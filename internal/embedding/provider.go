package embedding

import "context"

// Provider turns texts into dense vectors. The result has the same length and
// order as texts; a nil entry marks a per-item failure. A non-nil error fails
// the whole batch.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f ProviderFunc) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}
