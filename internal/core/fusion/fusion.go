// Package fusion contracts each equivalence class into a CVE_UNIFIED node
// that inherits the relationships of its members.
package fusion

import (
	"context"
	"fmt"

	"github.com/agenthands/kgfuse/internal/core/cluster"
	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/store"
)

type Summary struct {
	Classes               int `json:"classes"`
	UnifiedCreated        int `json:"unified_created"`
	UnifiedUpdated        int `json:"unified_updated"`
	RewiredOutgoing       int `json:"rewired_outgoing"`
	RewiredIncoming       int `json:"rewired_incoming"`
	RewiredExisting       int `json:"rewired_existing"`
	SkippedSameProvenance int `json:"skipped_same_provenance"`
	Failures              int `json:"failures"`
}

type Fuser struct {
	store store.Store
	log   *logger.Logger
}

func New(st store.Store, log *logger.Logger) *Fuser {
	if log == nil {
		log = logger.Nop()
	}
	return &Fuser{store: st, log: log.With("stage", "fuse")}
}

// Run fuses every cross-source equivalence class. Failing to read the pairs
// is an error; a class that fails is logged, counted and skipped.
func (f *Fuser) Run(ctx context.Context) (*Summary, error) {
	pairs, err := f.store.EquivalencePairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load equivalence pairs: %w", err)
	}

	summary := &Summary{}
	var qualifying []model.EquivalencePair
	for _, p := range pairs {
		if !p.CrossSource() {
			f.log.Warn("ignoring same-provenance equivalence", "left", p.Left.Name, "right", p.Right.Name, "source", p.Left.Source)
			summary.SkippedSameProvenance++
			continue
		}
		qualifying = append(qualifying, p.Oriented())
	}

	for _, c := range cluster.Detect(qualifying) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Classes++
		if err := f.fuseClass(ctx, c, summary); err != nil {
			canon, _ := c.Canonical()
			f.log.Warn("failed to fuse class", "key", canon.Key(), "members", len(c.Members), "error", err)
			summary.Failures++
		}
	}

	f.log.Info("fusion finished",
		"classes", summary.Classes,
		"unified_created", summary.UnifiedCreated,
		"rewired_outgoing", summary.RewiredOutgoing,
		"rewired_incoming", summary.RewiredIncoming,
		"failures", summary.Failures,
	)
	return summary, nil
}

func (f *Fuser) fuseClass(ctx context.Context, c cluster.Class, summary *Summary) error {
	u, ok := Unify(c)
	if !ok {
		return fmt.Errorf("class has no %s member", model.ProvenanceNVD)
	}

	unifiedID, created, err := f.store.MergeUnified(ctx, u)
	if err != nil {
		return err
	}
	if created {
		summary.UnifiedCreated++
	} else {
		summary.UnifiedUpdated++
	}

	members := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		members[m.ID] = true
	}

	seen := make(map[string]bool)
	for _, m := range c.Members {
		rels, err := f.store.Relationships(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("relationships of %s: %w", m.Name, err)
		}
		for _, rel := range rels {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true
			if _, derived := rel.Props["rewired_from"]; derived {
				continue
			}

			copyRel := Rewire(rel, members, unifiedID)
			created, err := f.store.MergeRewired(ctx, copyRel, rel.ID)
			if err != nil {
				return fmt.Errorf("rewire %s %s: %w", rel.Type, rel.ID, err)
			}
			if !created {
				summary.RewiredExisting++
				continue
			}
			if members[rel.From] {
				summary.RewiredOutgoing++
			} else {
				summary.RewiredIncoming++
			}
		}
	}
	return nil
}

// Rewire returns rel with every member endpoint replaced by unifiedID,
// keeping type, direction and properties.
func Rewire(rel model.Relationship, members map[string]bool, unifiedID string) model.Relationship {
	out := model.Relationship{Type: rel.Type, From: rel.From, To: rel.To, Props: rel.Props}
	if members[out.From] {
		out.From = unifiedID
	}
	if members[out.To] {
		out.To = unifiedID
	}
	return out
}
