// Package crossref derives owl:sameAs assertions between the source graphs
// and the unified nodes for external consumers.
package crossref

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/store"
)

const OWLSameAs = "http://www.w3.org/2002/07/owl#sameAs"

const (
	DefaultCyberNamespace   = "http://example.org/cyber#"
	DefaultUnifiedNamespace = "http://example.org/unified#"
)

type Namespaces struct {
	Cyber   string
	Unified string
}

type Exporter struct {
	store store.Store
	ns    Namespaces
	log   *logger.Logger
}

func NewExporter(st store.Store, ns Namespaces, log *logger.Logger) *Exporter {
	if ns.Cyber == "" {
		ns.Cyber = DefaultCyberNamespace
	}
	if ns.Unified == "" {
		ns.Unified = DefaultUnifiedNamespace
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{store: st, ns: ns, log: log.With("stage", "crossref")}
}

// Fragment makes a name usable as an IRI fragment: trimmed, slashes turned
// into underscores, then query-escaped.
func Fragment(s string) string {
	return url.QueryEscape(strings.ReplaceAll(strings.TrimSpace(s), "/", "_"))
}

func (e *Exporter) CVE(name string) string {
	return e.ns.Cyber + "CVE/" + Fragment(name)
}

func (e *Exporter) Unified(name string) string {
	return e.ns.Unified + Fragment(name)
}

// Triples converts rows into a de-duplicated set of assertions sorted by
// subject then object. Rows with an empty name are dropped.
func (e *Exporter) Triples(rows []model.CrossRefRow) []model.Triple {
	set := make(map[model.Triple]bool)
	for _, r := range rows {
		switch r.Kind {
		case model.RowPair:
			if strings.TrimSpace(r.Left) == "" || strings.TrimSpace(r.Right) == "" {
				continue
			}
			set[model.Triple{Subject: e.CVE(r.Left), Predicate: OWLSameAs, Object: e.CVE(r.Right)}] = true
		case model.RowSingleton:
			if strings.TrimSpace(r.Key) == "" {
				continue
			}
			set[model.Triple{Subject: e.CVE(r.Key), Predicate: OWLSameAs, Object: e.Unified(r.Key)}] = true
		}
	}

	triples := make([]model.Triple, 0, len(set))
	for t := range set {
		triples = append(triples, t)
	}
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].Subject != triples[j].Subject {
			return triples[i].Subject < triples[j].Subject
		}
		return triples[i].Object < triples[j].Object
	})
	return triples
}

// Build reads the current cross-reference rows and returns their assertions.
func (e *Exporter) Build(ctx context.Context) ([]model.Triple, error) {
	rows, err := e.store.CrossRefRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cross-reference rows: %w", err)
	}
	triples := e.Triples(rows)

	pairs := 0
	for _, r := range rows {
		if r.Kind == model.RowPair {
			pairs++
		}
	}
	e.log.Info("cross-references built", "pair_rows", pairs, "unified_rows", len(rows)-pairs, "triples", len(triples))
	return triples, nil
}
