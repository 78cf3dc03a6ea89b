package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/kgfuse/internal/config"
)

type MockEmbedder struct {
	Vectors map[string][]float32
	Err     error
	Batches [][]string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vectors[text], nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.Batches = append(m.Batches, texts)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.Vectors[t]
	}
	return out, nil
}

type mapCache struct {
	data   map[string][]float32
	getErr error
}

func (c *mapCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, vector []float32) error {
	c.data[key] = vector
	return nil
}

func (c *mapCache) Close() error { return nil }

func TestCachedEmbedder_OnlyFetchesMisses(t *testing.T) {
	inner := &MockEmbedder{Vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}}
	c := &mapCache{data: map[string][]float32{}}
	e := NewCachedEmbedder(inner, c, "m", nil)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	assert.Len(t, inner.Batches, 1)

	out, err = e.EmbedBatch(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 0}}, out)
	assert.Len(t, inner.Batches, 1)
}

func TestCachedEmbedder_CacheErrorsAreMisses(t *testing.T) {
	inner := &MockEmbedder{Vectors: map[string][]float32{"a": {1}}}
	c := &mapCache{data: map[string][]float32{}, getErr: errors.New("connection refused")}
	e := NewCachedEmbedder(inner, c, "m", nil)

	v, err := e.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
}

func TestCachedEmbedder_PropagatesProviderErrors(t *testing.T) {
	inner := &MockEmbedder{Err: errors.New("rate limited")}
	e := NewCachedEmbedder(inner, &mapCache{data: map[string][]float32{}}, "m", nil)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, e)

	e, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "OpenAI", Model: "text-embedding-3-small", APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, e)

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "claude"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not provide embeddings")

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "word2vec"}, nil)
	require.Error(t, err)
}
