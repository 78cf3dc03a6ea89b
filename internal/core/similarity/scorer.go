package similarity

import (
	"math"

	"github.com/agenthands/kgfuse/internal/core/model"
)

const (
	DefaultFuzzyThreshold     = 90
	DefaultEmbeddingThreshold = 0.85
)

// Candidate is a right-hand vulnerability presented to the scorers.
type Candidate struct {
	Vulnerability model.Vulnerability
	Vector        []float32 // nil when the embedding is unavailable
}

// Scorer compares a candidate against the left-hand set. It returns false
// instead of a low-confidence guess when its threshold is not met.
type Scorer interface {
	Method() model.Method
	Match(c Candidate) (model.Match, bool)
}

// Exact matches on the canonical key.
type Exact struct {
	index map[string]model.Vulnerability
}

// NewExact indexes left by key. The first vulnerability with a given key wins.
func NewExact(left []model.Vulnerability) *Exact {
	idx := make(map[string]model.Vulnerability, len(left))
	for _, v := range left {
		if _, ok := idx[v.Key()]; !ok {
			idx[v.Key()] = v
		}
	}
	return &Exact{index: idx}
}

func (e *Exact) Method() model.Method { return model.MethodExact }

func (e *Exact) Match(c Candidate) (model.Match, bool) {
	l, ok := e.index[c.Vulnerability.Key()]
	if !ok {
		return model.Match{}, false
	}
	return model.Match{Left: l, Right: c.Vulnerability, Method: model.MethodExact, Score: 100}, true
}

type fuzzyCandidate struct {
	key   string
	runes int
	v     model.Vulnerability
}

// Fuzzy accepts the best lexical ratio at or above Threshold.
type Fuzzy struct {
	Threshold int
	// Ratio overrides the scoring function. When nil the package Ratio is
	// used and candidates whose length alone rules them out are skipped.
	Ratio func(a, b string) int

	candidates []fuzzyCandidate
}

func NewFuzzy(left []model.Vulnerability, threshold int) *Fuzzy {
	cands := make([]fuzzyCandidate, 0, len(left))
	for _, v := range left {
		k := v.Key()
		cands = append(cands, fuzzyCandidate{key: k, runes: len([]rune(k)), v: v})
	}
	return &Fuzzy{Threshold: threshold, candidates: cands}
}

func (f *Fuzzy) Method() model.Method { return model.MethodFuzzy }

func (f *Fuzzy) Match(c Candidate) (model.Match, bool) {
	key := c.Vulnerability.Key()
	n := len([]rune(key))
	prefilter := f.Ratio == nil
	ratio := f.Ratio
	if ratio == nil {
		ratio = Ratio
	}

	best, bestIdx := 0, -1
	for i, cand := range f.candidates {
		if prefilter {
			ub := ratioUpperBound(n, cand.runes)
			if ub < f.Threshold || ub <= best {
				continue
			}
		}
		score := ratio(cand.key, key)
		if score > best {
			best, bestIdx = score, i
		}
		if best == 100 {
			break
		}
	}
	if bestIdx < 0 || best < f.Threshold {
		return model.Match{}, false
	}
	return model.Match{
		Left:   f.candidates[bestIdx].v,
		Right:  c.Vulnerability,
		Method: model.MethodFuzzy,
		Score:  float64(best),
	}, true
}

type embeddingCandidate struct {
	vec []float32
	v   model.Vulnerability
}

// Embedding accepts the best cosine similarity at or above Threshold.
type Embedding struct {
	Threshold float64
	// Similarity defaults to Cosine.
	Similarity func(a, b []float32) float64

	candidates []embeddingCandidate
}

// NewEmbedding keeps the left vulnerabilities that have a vector in vectors,
// keyed by canonical key, in the order of left.
func NewEmbedding(left []model.Vulnerability, vectors map[string][]float32, threshold float64) *Embedding {
	cands := make([]embeddingCandidate, 0, len(left))
	for _, v := range left {
		vec, ok := vectors[v.Key()]
		if !ok || len(vec) == 0 {
			continue
		}
		cands = append(cands, embeddingCandidate{vec: vec, v: v})
	}
	return &Embedding{Threshold: threshold, Similarity: Cosine, candidates: cands}
}

func (e *Embedding) Method() model.Method { return model.MethodEmbedding }

func (e *Embedding) Match(c Candidate) (model.Match, bool) {
	if len(c.Vector) == 0 {
		return model.Match{}, false
	}
	sim := e.Similarity
	if sim == nil {
		sim = Cosine
	}

	best, bestIdx := 0.0, -1
	for i, cand := range e.candidates {
		s := sim(cand.vec, c.Vector)
		if s > best {
			best, bestIdx = s, i
		}
	}
	if bestIdx < 0 || best < e.Threshold {
		return model.Match{}, false
	}
	return model.Match{
		Left:   e.candidates[bestIdx].v,
		Right:  c.Vulnerability,
		Method: model.MethodEmbedding,
		Score:  math.Round(best*100*100) / 100,
	}, true
}
