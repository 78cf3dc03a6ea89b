// Package align runs the match cascade over the scanner vulnerabilities and
// records accepted matches as SAME_AS edges.
package align

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/core/similarity"
	"github.com/agenthands/kgfuse/internal/llm"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/observability"
	"github.com/agenthands/kgfuse/internal/store"
)

type Options struct {
	FuzzyThreshold     int
	EmbeddingThreshold float64
	// Workers bounds concurrent cascades. Zero means runtime.NumCPU().
	Workers   int
	BatchSize int
	RunID     string
}

func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:     similarity.DefaultFuzzyThreshold,
		EmbeddingThreshold: similarity.DefaultEmbeddingThreshold,
		BatchSize:          64,
	}
}

type Aligner struct {
	store    store.Store
	embedder llm.EmbedderClient
	opts     Options
	log      *logger.Logger
}

// New returns an Aligner. A nil embedder disables the embedding stage.
func New(st store.Store, embedder llm.EmbedderClient, opts Options, log *logger.Logger) *Aligner {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Aligner{store: st, embedder: embedder, opts: opts, log: log.With("stage", "align")}
}

// Run aligns every NESSUS vulnerability against the NVD set. Only failing
// to load either set is an error; per-entity failures land in the summary.
func (a *Aligner) Run(ctx context.Context) (*Summary, error) {
	left, err := a.store.FetchBySource(ctx, model.ProvenanceNVD)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s vulnerabilities: %w", model.ProvenanceNVD, err)
	}
	right, err := a.store.FetchBySource(ctx, model.ProvenanceNessus)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s vulnerabilities: %w", model.ProvenanceNessus, err)
	}

	summary := newSummary(a.opts.RunID)
	summary.Left = len(left)
	summary.Right = len(right)

	left, dropped := a.cleanLeft(left)
	summary.Failures[FailureDataQuality] += dropped

	results := make([]Result, len(right))
	pending := a.screenRight(right, results)

	leftVecs, rightVecs, embedFailed := a.embed(ctx, left, right, pending)
	summary.Failures[FailureEmbedding] += embedFailed.left

	cascade := DefaultCascade(left, leftVecs, a.opts.FuzzyThreshold, a.opts.EmbeddingThreshold)
	writer := NewWriter(a.store, a.opts.RunID)

	g := new(errgroup.Group)
	g.SetLimit(a.opts.Workers)
	for _, i := range pending {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = a.align(ctx, cascade, writer, similarity.Candidate{
				Vulnerability: right[i],
				Vector:        rightVecs[i],
			}, embedFailed.right[i])
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		if results[i].Outcome == "" {
			continue // not reached before cancellation
		}
		summary.add(results[i])
	}

	a.log.Info("alignment finished",
		"run_id", a.opts.RunID,
		"left", summary.Left,
		"right", summary.Right,
		"matched", summary.Outcomes[OutcomeMatched],
		"unmatched", summary.Outcomes[OutcomeUnmatched],
		"already_linked", summary.Outcomes[OutcomeAlreadyLinked],
		"failed", summary.Outcomes[OutcomeFailed],
	)
	return summary, ctx.Err()
}

func (a *Aligner) align(ctx context.Context, cascade *Cascade, w *Writer, cand similarity.Candidate, embedFailed bool) Result {
	v := cand.Vulnerability
	res := Result{Entity: v}

	linked, err := a.store.HasEquivalence(ctx, v)
	if err != nil {
		a.log.Warn("existence check failed", "cve", v.Name, "error", err)
		res.Outcome, res.Category, res.Err = OutcomeFailed, FailureRead, err
		return res
	}
	if linked {
		res.Outcome = OutcomeAlreadyLinked
		return res
	}

	m, ok := cascade.Evaluate(ctx, cand)
	if !ok {
		if embedFailed {
			res.Outcome, res.Category = OutcomeFailed, FailureEmbedding
			return res
		}
		res.Outcome = OutcomeUnmatched
		return res
	}

	created, err := w.Write(ctx, m)
	if err != nil {
		a.log.Warn("failed to write equivalence", "left", m.Left.Name, "right", v.Name, "error", err)
		res.Outcome, res.Category, res.Err = OutcomeFailed, FailureWrite, err
		return res
	}
	if !created {
		res.Outcome = OutcomeDuplicate
		return res
	}
	a.log.Debug("equivalence created", "left", m.Left.Name, "right", v.Name, "method", m.Method, "score", m.Score)
	res.Outcome, res.Match = OutcomeMatched, &m
	return res
}

// cleanLeft drops left vulnerabilities without a key and keeps the first of
// each duplicated key.
func (a *Aligner) cleanLeft(left []model.Vulnerability) ([]model.Vulnerability, int) {
	seen := make(map[string]bool, len(left))
	out := make([]model.Vulnerability, 0, len(left))
	dropped := 0
	for _, v := range left {
		k := v.Key()
		switch {
		case k == "":
			a.log.Warn("skipping vulnerability without identifier", "source", v.Source, "id", v.ID)
			dropped++
		case seen[k]:
			a.log.Warn("skipping duplicate vulnerability", "source", v.Source, "cve", v.Name, "id", v.ID)
			dropped++
		default:
			seen[k] = true
			out = append(out, v)
		}
	}
	return out, dropped
}

// screenRight records data-quality skips in results and returns the indexes
// left to align.
func (a *Aligner) screenRight(right []model.Vulnerability, results []Result) []int {
	seen := make(map[string]bool, len(right))
	pending := make([]int, 0, len(right))
	for i, v := range right {
		k := v.Key()
		if k == "" || seen[k] {
			a.log.Warn("skipping vulnerability", "source", v.Source, "cve", v.Name, "id", v.ID, "duplicate", k != "")
			results[i] = Result{Entity: v, Outcome: OutcomeSkipped, Category: FailureDataQuality}
			continue
		}
		seen[k] = true
		pending = append(pending, i)
	}
	return pending
}

type embedFailures struct {
	left  int
	right []bool
}

// embed computes vectors for every vulnerability with a description, in
// batches, before any cascade runs. Left vectors are keyed by canonical key,
// right vectors by index.
func (a *Aligner) embed(ctx context.Context, left, right []model.Vulnerability, pending []int) (map[string][]float32, [][]float32, embedFailures) {
	failures := embedFailures{right: make([]bool, len(right))}
	leftVecs := make(map[string][]float32)
	rightVecs := make([][]float32, len(right))
	if a.embedder == nil {
		return leftVecs, rightVecs, failures
	}

	ctx, span := observability.StartStage(ctx, "align.embed", attribute.Int("left", len(left)), attribute.Int("right", len(pending)))
	defer span.End()

	var texts []string
	index := make(map[string]int)
	want := func(v model.Vulnerability) (string, bool) {
		if v.Description == "" {
			return "", false
		}
		t := v.EmbeddingText()
		if _, ok := index[t]; !ok {
			index[t] = len(texts)
			texts = append(texts, t)
		}
		return t, true
	}
	for _, v := range left {
		want(v)
	}
	for _, i := range pending {
		want(right[i])
	}

	vectors, errs := a.embedAll(ctx, texts)

	for _, v := range left {
		t, ok := want(v)
		if !ok {
			continue
		}
		if errs[index[t]] != nil {
			failures.left++
			continue
		}
		leftVecs[v.Key()] = vectors[index[t]]
	}
	for _, i := range pending {
		t, ok := want(right[i])
		if !ok {
			continue
		}
		if errs[index[t]] != nil {
			failures.right[i] = true
			continue
		}
		rightVecs[i] = vectors[index[t]]
	}
	return leftVecs, rightVecs, failures
}

// embedAll embeds texts in batches. A failed batch falls back to one call
// per text so a single bad input only costs its own vector.
func (a *Aligner) embedAll(ctx context.Context, texts []string) ([][]float32, []error) {
	vectors := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for start := 0; start < len(texts); start += a.opts.BatchSize {
		end := start + a.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := a.embedder.EmbedBatch(ctx, texts[start:end])
		if err == nil && len(batch) == end-start {
			copy(vectors[start:end], batch)
			continue
		}
		a.log.Warn("embedding batch failed, retrying per text", "size", end-start, "error", err)
		for i := start; i < end; i++ {
			vec, err := a.embedder.Embed(ctx, texts[i])
			if err == nil && len(vec) == 0 {
				err = fmt.Errorf("empty embedding")
			}
			if err != nil {
				a.log.Warn("embedding failed", "text_len", len(texts[i]), "error", err)
				errs[i] = err
				continue
			}
			vectors[i] = vec
		}
	}
	return vectors, errs
}
