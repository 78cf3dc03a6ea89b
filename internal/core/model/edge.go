package model

import (
	"sort"
	"strings"
)

// Method is the strategy that accepted an equivalence.
type Method string

const (
	MethodExact     Method = "exact"
	MethodFuzzy     Method = "fuzzy"
	MethodEmbedding Method = "embedding"
)

// Methods lists every method in cascade order.
var Methods = []Method{MethodExact, MethodFuzzy, MethodEmbedding}

const (
	RelSameAs    = "SAME_AS"
	RelImpacts   = "IMPACTS"
	RelDetects   = "DETECTS"
	RelHasPlugin = "HAS_PLUGIN"
)

// Match is the cascade's accepted candidate for one right-hand vulnerability.
type Match struct {
	Left   Vulnerability `json:"left"`
	Right  Vulnerability `json:"right"`
	Method Method        `json:"method"`
	Score  float64       `json:"score"`
}

// EquivalenceEdge is an undirected SAME_AS relation between two vulnerabilities of different provenance.
type EquivalenceEdge struct {
	Left        string     `json:"left"`
	LeftSource  Provenance `json:"left_source"`
	Right       string     `json:"right"`
	RightSource Provenance `json:"right_source"`
	Method      Method     `json:"method"`
	Score       float64    `json:"score"`
	RunID       string     `json:"run_id,omitempty"`
}

func EdgeFromMatch(m Match, runID string) EquivalenceEdge {
	return EquivalenceEdge{
		Left:        m.Left.Name,
		LeftSource:  m.Left.Source,
		Right:       m.Right.Name,
		RightSource: m.Right.Source,
		Method:      m.Method,
		Score:       m.Score,
		RunID:       runID,
	}
}

// PairKey identifies the unordered pair of endpoints.
func (e EquivalenceEdge) PairKey() string {
	return PairKey(e.Left, e.Right)
}

func PairKey(a, b string) string {
	keys := []string{NormalizeKey(a), NormalizeKey(b)}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

// EquivalencePair is a SAME_AS edge read back with both endpoints.
type EquivalencePair struct {
	Left   Vulnerability `json:"left"`
	Right  Vulnerability `json:"right"`
	Method Method        `json:"method"`
	Score  float64       `json:"score"`
}

// CrossSource reports whether the endpoints come from the two different known sources.
func (p EquivalencePair) CrossSource() bool {
	return (p.Left.Source == ProvenanceNVD && p.Right.Source == ProvenanceNessus) ||
		(p.Left.Source == ProvenanceNessus && p.Right.Source == ProvenanceNVD)
}

// Oriented returns the pair with the NVD endpoint on the left.
func (p EquivalencePair) Oriented() EquivalencePair {
	if p.Left.Source == ProvenanceNessus && p.Right.Source == ProvenanceNVD {
		p.Left, p.Right = p.Right, p.Left
	}
	return p
}

// Relationship is any graph relationship touching a vulnerability node.
type Relationship struct {
	ID    string                 `json:"id"`
	Type  string                 `json:"type"`
	From  string                 `json:"from"` // element id
	To    string                 `json:"to"`   // element id
	Props map[string]interface{} `json:"props,omitempty"`
}
