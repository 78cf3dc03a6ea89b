package align

import (
	"context"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/core/similarity"
)

// Cascade applies scorers in priority order and stops at the first match.
type Cascade struct {
	scorers []similarity.Scorer
}

func NewCascade(scorers ...similarity.Scorer) *Cascade {
	return &Cascade{scorers: scorers}
}

// DefaultCascade builds exact, fuzzy and embedding scorers over left.
func DefaultCascade(left []model.Vulnerability, vectors map[string][]float32, fuzzyThreshold int, embeddingThreshold float64) *Cascade {
	return NewCascade(
		similarity.NewExact(left),
		similarity.NewFuzzy(left, fuzzyThreshold),
		similarity.NewEmbedding(left, vectors, embeddingThreshold),
	)
}

func (c *Cascade) Evaluate(ctx context.Context, cand similarity.Candidate) (model.Match, bool) {
	for _, s := range c.scorers {
		if ctx.Err() != nil {
			return model.Match{}, false
		}
		if m, ok := s.Match(cand); ok {
			return m, true
		}
	}
	return model.Match{}, false
}
