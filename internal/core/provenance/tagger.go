// Package provenance keeps the source attribute of scanner vulnerabilities
// consistent so later stages can tell the two graphs apart.
package provenance

import (
	"context"
	"fmt"

	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/store"
)

type Tagger struct {
	store store.Store
	log   *logger.Logger
}

func NewTagger(st store.Store, log *logger.Logger) *Tagger {
	if log == nil {
		log = logger.Nop()
	}
	return &Tagger{store: st, log: log.With("stage", "provenance")}
}

// Tag marks every CVE reached through Host-HAS_PLUGIN-Plugin-DETECTS with
// source NESSUS unless it is already NVD. It returns the number corrected.
func (t *Tagger) Tag(ctx context.Context) (int, error) {
	corrected, err := t.store.TagScannerProvenance(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to tag scanner provenance: %w", err)
	}
	if corrected > 0 {
		t.log.Info("corrected scanner provenance", "nodes", corrected)
	}
	return corrected, nil
}
