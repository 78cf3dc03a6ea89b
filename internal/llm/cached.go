package llm

import (
	"context"

	"github.com/agenthands/kgfuse/internal/cache"
	"github.com/agenthands/kgfuse/internal/logger"
)

// CachedEmbedder consults a VectorCache before calling the wrapped client.
// Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	inner EmbedderClient
	cache cache.VectorCache
	model string
	log   *logger.Logger
}

func NewCachedEmbedder(inner EmbedderClient, c cache.VectorCache, model string, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedEmbedder{inner: inner, cache: c, model: model, log: log.With("client", "CachedEmbedder")}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, func(ctx context.Context, texts []string) ([][]float32, error) {
		v, err := e.inner.Embed(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, e.inner.EmbedBatch)
}

func (e *CachedEmbedder) embed(ctx context.Context, texts []string, fetch func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		vec, ok, err := e.cache.Get(ctx, cache.Key(e.model, t))
		if err != nil {
			e.log.Warn("embedding cache read failed", "error", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fetched, err := fetch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = fetched[j]
		if err := e.cache.Set(ctx, cache.Key(e.model, missTexts[j]), fetched[j]); err != nil {
			e.log.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}
