// Package impact infers host-to-service IMPACTS relationships through
// cross-source equivalences.
package impact

import (
	"context"
	"fmt"

	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/store"
)

type Propagator struct {
	store store.Store
	log   *logger.Logger
}

func NewPropagator(st store.Store, log *logger.Logger) *Propagator {
	if log == nil {
		log = logger.Nop()
	}
	return &Propagator{store: st, log: log.With("stage", "impacts")}
}

// Propagate links each host to every service impacted by a vulnerability
// equivalent to one of its detected CVEs. A new link carries inferred=true
// and the CVSS score as weight; an existing link accumulates the score, so
// repeated runs keep increasing the weight.
func (p *Propagator) Propagate(ctx context.Context) (int, error) {
	touched, err := p.store.PropagateImpacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to propagate impacts: %w", err)
	}
	p.log.Info("impacts propagated", "paths", touched)
	return touched, nil
}
