// Package store defines the graph store contract used by the alignment and
// fusion stages, with a Cypher implementation over Bolt and an in-memory one.
package store

import (
	"context"

	"github.com/agenthands/kgfuse/internal/core/model"
)

const (
	LabelCVE     = "CVE"
	LabelUnified = "CVE_UNIFIED"
	LabelHost    = "Host"
	LabelPlugin  = "Plugin"
	LabelService = "Service"
)

// Store is safe for concurrent use. Every write is a merge on a unique key.
type Store interface {
	Ping(ctx context.Context) error

	// TagScannerProvenance sets source=NESSUS on CVEs detected through a
	// host plugin whose source is missing or not NVD. Returns nodes changed.
	TagScannerProvenance(ctx context.Context) (int, error)

	// FetchBySource returns the CVEs of one provenance in a stable order.
	FetchBySource(ctx context.Context, source model.Provenance) ([]model.Vulnerability, error)

	// HasEquivalence reports whether v already has any SAME_AS edge.
	HasEquivalence(ctx context.Context, v model.Vulnerability) (bool, error)

	// EquivalenceExists reports whether a SAME_AS edge joins the two names, in either direction.
	EquivalenceExists(ctx context.Context, left, right string) (bool, error)

	// MergeEquivalence creates the SAME_AS edge unless one exists for the pair.
	// created is false when the edge was already there; it is never updated.
	MergeEquivalence(ctx context.Context, e model.EquivalenceEdge) (created bool, err error)

	EquivalencePairs(ctx context.Context) ([]model.EquivalencePair, error)

	MergeUnified(ctx context.Context, u model.UnifiedVulnerability) (id string, created bool, err error)

	// Relationships returns every non-SAME_AS relationship touching the node.
	Relationships(ctx context.Context, nodeID string) ([]model.Relationship, error)

	// MergeRewired creates rel keyed by the relationship it was copied from.
	MergeRewired(ctx context.Context, rel model.Relationship, originID string) (created bool, err error)

	PropagateImpacts(ctx context.Context) (int, error)

	CrossRefRows(ctx context.Context) ([]model.CrossRefRow, error)

	EquivalenceCounts(ctx context.Context) (map[model.Method]int, error)

	// FusedTotal counts NVD CVEs holding a cross-source equivalence.
	FusedTotal(ctx context.Context) (int, error)
}
