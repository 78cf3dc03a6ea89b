package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agenthands/kgfuse/internal/config"
	"github.com/agenthands/kgfuse/internal/core/align"
	"github.com/agenthands/kgfuse/internal/core/crossref"
	"github.com/agenthands/kgfuse/internal/core/fusion"
	"github.com/agenthands/kgfuse/internal/core/impact"
	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/core/provenance"
	"github.com/agenthands/kgfuse/internal/llm"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/observability"
	"github.com/agenthands/kgfuse/internal/reporter"
	"github.com/agenthands/kgfuse/internal/store"
)

// Engine wires the pipeline stages over one store and embedder.
type Engine struct {
	Store    store.Store
	Embedder llm.EmbedderClient
	Config   *config.Config

	Tagger   *provenance.Tagger
	Fuser    *fusion.Fuser
	Exporter *crossref.Exporter
	Impacts  *impact.Propagator

	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
	Now      func() time.Time

	log *logger.Logger
}

// NewEngine wraps st with the configured write retries. A nil embedder
// disables the embedding stage of the cascade.
func NewEngine(st store.Store, embedder llm.EmbedderClient, cfg *config.Config, log *logger.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	retrying := store.WithRetry(st, store.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMs) * time.Millisecond,
	}, log)

	return &Engine{
		Store:    retrying,
		Embedder: embedder,
		Config:   cfg,
		Tagger:   provenance.NewTagger(retrying, log),
		Fuser:    fusion.New(retrying, log),
		Exporter: crossref.NewExporter(retrying, crossref.Namespaces{
			Cyber:   cfg.Export.CyberNamespace,
			Unified: cfg.Export.UnifiedNamespace,
		}, log),
		Impacts:  impact.NewPropagator(retrying, log),
		NewRunID: uuid.NewString,
		Now:      func() time.Time { return time.Now().UTC() },
		log:      log.With("component", "Engine"),
	}
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	RunID            string               `json:"run_id"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	ProvenanceBefore int                  `json:"provenance_corrected_before"`
	ProvenanceAfter  int                  `json:"provenance_corrected_after"`
	Alignment        *align.Summary       `json:"alignment,omitempty"`
	Fusion           *fusion.Summary      `json:"fusion,omitempty"`
	ImpactPaths      int                  `json:"impact_paths"`
	CrossRefTriples  int                  `json:"crossref_triples"`
	StoreEdges       map[model.Method]int `json:"store_edges"`
	FusedTotal       int                  `json:"fused_total"`
	Artifacts        map[string]string    `json:"artifacts,omitempty"`
	Errors           []string             `json:"errors,omitempty"`
}

func (e *Engine) TagProvenance(ctx context.Context) (int, error) {
	ctx, span := observability.StartStage(ctx, "provenance")
	defer span.End()
	n, err := e.Tagger.Tag(ctx)
	return n, traced(span, err)
}

// Align runs the cascade with runID stamped on the edges it creates.
func (e *Engine) Align(ctx context.Context, runID string) (*align.Summary, error) {
	ctx, span := observability.StartStage(ctx, "align", attribute.String("run_id", runID))
	defer span.End()

	opts := align.Options{
		FuzzyThreshold:     e.Config.Matching.FuzzyThreshold,
		EmbeddingThreshold: e.Config.Matching.EmbeddingThreshold,
		Workers:            e.Config.Concurrency.Workers,
		BatchSize:          e.Config.Embedding.BatchSize,
		RunID:              runID,
	}
	summary, err := align.New(e.Store, e.Embedder, opts, e.log).Run(ctx)
	if summary != nil {
		span.SetAttributes(
			attribute.Int("matched", summary.Outcomes[align.OutcomeMatched]),
			attribute.Int("failed", summary.Outcomes[align.OutcomeFailed]),
		)
	}
	return summary, traced(span, err)
}

func (e *Engine) Fuse(ctx context.Context) (*fusion.Summary, error) {
	ctx, span := observability.StartStage(ctx, "fuse")
	defer span.End()
	summary, err := e.Fuser.Run(ctx)
	return summary, traced(span, err)
}

func (e *Engine) PropagateImpacts(ctx context.Context) (int, error) {
	ctx, span := observability.StartStage(ctx, "impacts")
	defer span.End()
	n, err := e.Impacts.Propagate(ctx)
	return n, traced(span, err)
}

func (e *Engine) CrossReferences(ctx context.Context) ([]model.Triple, error) {
	ctx, span := observability.StartStage(ctx, "crossref")
	defer span.End()
	triples, err := e.Exporter.Build(ctx)
	return triples, traced(span, err)
}

// Run executes every stage in order: provenance, align, provenance, fuse,
// impacts, cross-references, then writes the artifacts. Only a failed
// alignment load stops the run; other stage errors are collected, reported
// in the summary and returned joined.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	runID := e.NewRunID()
	summary := &RunSummary{RunID: runID, StartedAt: e.Now()}
	log := e.log.With("run_id", runID)
	log.Info("run started")

	var errs []error
	record := func(stage string, err error) {
		if err == nil {
			return
		}
		log.Error("stage failed", "stage", stage, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", stage, err))
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", stage, err))
	}

	n, err := e.TagProvenance(ctx)
	summary.ProvenanceBefore = n
	record("provenance", err)

	alignment, err := e.Align(ctx, runID)
	summary.Alignment = alignment
	if alignment == nil {
		record("align", err)
		summary.FinishedAt = e.Now()
		return summary, errors.Join(errs...)
	}
	record("align", err)

	n, err = e.TagProvenance(ctx)
	summary.ProvenanceAfter = n
	record("provenance", err)

	summary.Fusion, err = e.Fuse(ctx)
	record("fuse", err)

	summary.ImpactPaths, err = e.PropagateImpacts(ctx)
	record("impacts", err)

	triples, err := e.CrossReferences(ctx)
	summary.CrossRefTriples = len(triples)
	record("crossref", err)

	summary.StoreEdges, err = e.Store.EquivalenceCounts(ctx)
	record("stats", err)
	summary.FusedTotal, err = e.Store.FusedTotal(ctx)
	record("stats", err)

	summary.FinishedAt = e.Now()
	summary.Artifacts, err = e.WriteArtifacts(alignment.Matches, triples, summary)
	record("artifacts", err)

	log.Info("run finished",
		"matched", alignment.Outcomes[align.OutcomeMatched],
		"unified_created", fusedCreated(summary.Fusion),
		"triples", summary.CrossRefTriples,
		"errors", len(summary.Errors),
	)
	return summary, errors.Join(errs...)
}

// WriteArtifacts writes the configured export files and returns the paths
// written, keyed by artifact name. Empty paths are skipped.
func (e *Engine) WriteArtifacts(matches []model.Match, triples []model.Triple, summary *RunSummary) (map[string]string, error) {
	written := make(map[string]string)
	exp := e.Config.Export

	if exp.MatchesCSV != "" {
		data, err := reporter.Matches(matches)
		if err == nil {
			err = reporter.WriteFile(exp.MatchesCSV, data)
		}
		if err != nil {
			return written, fmt.Errorf("matches csv: %w", err)
		}
		written["matches_csv"] = exp.MatchesCSV
	}

	if exp.CrossRefTurtle != "" {
		data, err := reporter.Turtle(triples)
		if err == nil {
			err = reporter.WriteFile(exp.CrossRefTurtle, data)
		}
		if err != nil {
			return written, fmt.Errorf("crossref turtle: %w", err)
		}
		written["crossref_turtle"] = exp.CrossRefTurtle
	}

	if exp.SummaryJSON != "" && summary != nil {
		written["summary_json"] = exp.SummaryJSON
		summary.Artifacts = written
		data, err := reporter.JSON(summary)
		if err == nil {
			err = reporter.WriteFile(exp.SummaryJSON, data)
		}
		if err != nil {
			delete(written, "summary_json")
			return written, fmt.Errorf("summary json: %w", err)
		}
	}
	return written, nil
}

func traced(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func fusedCreated(s *fusion.Summary) int {
	if s == nil {
		return 0
	}
	return s.UnifiedCreated
}
