package align

import (
	"github.com/agenthands/kgfuse/internal/core/model"
)

// Outcome is what happened to one right-hand vulnerability.
type Outcome string

const (
	OutcomeMatched       Outcome = "matched"
	OutcomeUnmatched     Outcome = "unmatched"
	OutcomeAlreadyLinked Outcome = "already_linked"
	OutcomeDuplicate     Outcome = "duplicate" // edge created by another writer
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
)

// FailureCategory classifies skips and failures for the run summary.
type FailureCategory string

const (
	FailureRead        FailureCategory = "read"
	FailureWrite       FailureCategory = "write"
	FailureEmbedding   FailureCategory = "embedding"
	FailureDataQuality FailureCategory = "data_quality"
)

type Result struct {
	Entity   model.Vulnerability `json:"entity"`
	Outcome  Outcome             `json:"outcome"`
	Match    *model.Match        `json:"match,omitempty"`
	Category FailureCategory     `json:"category,omitempty"`
	Err      error               `json:"-"`
}

// Summary aggregates one alignment run.
type Summary struct {
	RunID    string                  `json:"run_id"`
	Left     int                     `json:"left"`
	Right    int                     `json:"right"`
	Outcomes map[Outcome]int         `json:"outcomes"`
	Methods  map[model.Method]int    `json:"methods"`
	Failures map[FailureCategory]int `json:"failures"`
	// Matches lists the edges this run created, in right-hand load order.
	Matches []model.Match `json:"matches"`
	Results []Result      `json:"-"`
}

func newSummary(runID string) *Summary {
	return &Summary{
		RunID:    runID,
		Outcomes: make(map[Outcome]int),
		Methods:  make(map[model.Method]int),
		Failures: make(map[FailureCategory]int),
	}
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Outcomes[r.Outcome]++
	if r.Category != "" {
		s.Failures[r.Category]++
	}
	if r.Outcome == OutcomeMatched && r.Match != nil {
		s.Methods[r.Match.Method]++
		s.Matches = append(s.Matches, *r.Match)
	}
}
