package model

// RowKind tags the shape of a cross-reference row.
type RowKind int

const (
	RowPair      RowKind = iota // NVD <-> NESSUS equivalence
	RowSingleton                // unified node
)

// CrossRefRow is one row of the cross-reference query. Left and Right are set
// for RowPair, Key for RowSingleton.
type CrossRefRow struct {
	Kind  RowKind `json:"kind"`
	Left  string  `json:"left,omitempty"`
	Right string  `json:"right,omitempty"`
	Key   string  `json:"key,omitempty"`
}

type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}
