// Package cache stores embedding vectors between runs so unchanged
// descriptions are not re-embedded.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// VectorCache is keyed by Key(model, text). A miss is (nil, false, nil).
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
	Close() error
}

// Key derives the cache key of text embedded with model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "kgfuse:emb:" + hex.EncodeToString(sum[:])
}
