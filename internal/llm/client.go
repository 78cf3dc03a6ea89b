package llm

import (
	"context"
)

// EmbedderClient turns text into dense vectors. EmbedBatch returns one vector
// per input, in input order.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
