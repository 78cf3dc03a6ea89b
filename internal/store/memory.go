package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agenthands/kgfuse/internal/core/model"
)

type memNode struct {
	id     string
	labels map[string]bool
	props  map[string]interface{}
}

type memRel struct {
	id    string
	typ   string
	from  string
	to    string
	props map[string]interface{}
}

// MemoryStore is an in-process Store with the same merge semantics as the
// Cypher queries. It backs tests and dry runs over fixture graphs.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]*memNode
	order  []string
	rels   map[string]*memRel
	rorder []string
	seq    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]*memNode),
		rels:  make(map[string]*memRel),
	}
}

func (s *MemoryStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s:%d", prefix, s.seq)
}

// AddNode inserts a node and returns its element id.
func (s *MemoryStore) AddNode(labels []string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &memNode{id: s.nextID("n"), labels: make(map[string]bool), props: copyProps(props)}
	for _, l := range labels {
		n.labels[l] = true
	}
	s.nodes[n.id] = n
	s.order = append(s.order, n.id)
	return n.id
}

// AddVulnerability inserts a CVE node from v and returns its element id.
func (s *MemoryStore) AddVulnerability(v model.Vulnerability) string {
	return s.AddNode([]string{LabelCVE}, vulnerabilityProps(v))
}

// AddRelationship inserts a directed relationship and returns its element id.
func (s *MemoryStore) AddRelationship(typ, from, to string, props map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRel(typ, from, to, props)
}

func (s *MemoryStore) addRel(typ, from, to string, props map[string]interface{}) string {
	r := &memRel{id: s.nextID("r"), typ: typ, from: from, to: to, props: copyProps(props)}
	s.rels[r.id] = r
	s.rorder = append(s.rorder, r.id)
	return r.id
}

// NodeProps returns a copy of a node's properties.
func (s *MemoryStore) NodeProps(id string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return copyProps(n.props), true
}

// NodesWithLabel returns the ids of nodes carrying label, in insertion order.
func (s *MemoryStore) NodesWithLabel(label string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.order {
		if s.nodes[id].labels[label] {
			ids = append(ids, id)
		}
	}
	return ids
}

// RelationshipsOfType returns every relationship of typ, in insertion order.
func (s *MemoryStore) RelationshipsOfType(typ string) []model.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Relationship
	for _, id := range s.rorder {
		r := s.rels[id]
		if r.typ == typ {
			out = append(out, r.export())
		}
	}
	return out
}

// UnifiedNode returns the CVE_UNIFIED node with key, if any.
func (s *MemoryStore) UnifiedNode(key string) (string, map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.unifiedByKey(key)
	if n == nil {
		return "", nil, false
	}
	return n.id, copyProps(n.props), true
}

func (r *memRel) export() model.Relationship {
	return model.Relationship{ID: r.id, Type: r.typ, From: r.from, To: r.to, Props: copyProps(r.props)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) TagScannerProvenance(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapOp("tag provenance", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	detected := make(map[string]bool)
	for _, rid := range s.rorder {
		hp := s.rels[rid]
		if hp.typ != model.RelHasPlugin || !s.hasLabel(hp.from, LabelHost) || !s.hasLabel(hp.to, LabelPlugin) {
			continue
		}
		for _, did := range s.rorder {
			d := s.rels[did]
			if d.typ == model.RelDetects && d.from == hp.to && s.hasLabel(d.to, LabelCVE) {
				detected[d.to] = true
			}
		}
	}

	corrected := 0
	for _, id := range s.order {
		if !detected[id] {
			continue
		}
		n := s.nodes[id]
		src, _ := n.props[propSource].(string)
		if src == string(model.ProvenanceNVD) || src == string(model.ProvenanceNessus) {
			continue
		}
		n.props[propSource] = string(model.ProvenanceNessus)
		corrected++
	}
	return corrected, nil
}

func (s *MemoryStore) FetchBySource(ctx context.Context, source model.Provenance) ([]model.Vulnerability, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapOp("fetch by source", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Vulnerability
	for _, id := range s.order {
		n := s.nodes[id]
		if !n.labels[LabelCVE] || n.props[propSource] != string(source) {
			continue
		}
		out = append(out, vulnerabilityFromProps(n.id, copyProps(n.props)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) HasEquivalence(ctx context.Context, v model.Vulnerability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, wrapOp("has equivalence", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ != model.RelSameAs {
			continue
		}
		for _, end := range []string{r.from, r.to} {
			n := s.nodes[end]
			if n.props[propName] == v.Name && n.props[propSource] == string(v.Source) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) EquivalenceExists(ctx context.Context, left, right string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, wrapOp("equivalence exists", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ != model.RelSameAs {
			continue
		}
		a, b := s.nodes[r.from].props[propName], s.nodes[r.to].props[propName]
		if (a == left && b == right) || (a == right && b == left) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MergeEquivalence(ctx context.Context, e model.EquivalenceEdge) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, wrapOp("merge equivalence", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findCVE(e.Left, e.LeftSource)
	b := s.findCVE(e.Right, e.RightSource)
	if a == nil || b == nil {
		return false, wrapOp("merge equivalence", fmt.Errorf("endpoints %q/%q: %w", e.Left, e.Right, ErrNotFound))
	}

	key := e.PairKey()
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ == model.RelSameAs && r.props["pair_key"] == key {
			return false, nil
		}
	}
	s.addRel(model.RelSameAs, a.id, b.id, map[string]interface{}{
		"pair_key": key,
		"method":   string(e.Method),
		"score":    e.Score,
		"run_id":   e.RunID,
	})
	return true, nil
}

func (s *MemoryStore) EquivalencePairs(ctx context.Context) ([]model.EquivalencePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapOp("equivalence pairs", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EquivalencePair
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ != model.RelSameAs {
			continue
		}
		first, second := s.nodes[r.from], s.nodes[r.to]
		if !first.labels[LabelCVE] || !second.labels[LabelCVE] || first.id == second.id {
			continue
		}
		if second.id < first.id {
			first, second = second, first
		}
		out = append(out, model.EquivalencePair{
			Left:   vulnerabilityFromProps(first.id, copyProps(first.props)),
			Right:  vulnerabilityFromProps(second.id, copyProps(second.props)),
			Method: model.Method(asString(r.props["method"])),
			Score:  asFloat(r.props["score"]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Left.Name != out[j].Left.Name {
			return out[i].Left.Name < out[j].Left.Name
		}
		return out[i].Right.Name < out[j].Right.Name
	})
	return out, nil
}

func (s *MemoryStore) MergeUnified(ctx context.Context, u model.UnifiedVulnerability) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, wrapOp("merge unified", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.unifiedByKey(u.Key)
	created := n == nil
	if created {
		n = &memNode{
			id:     s.nextID("n"),
			labels: map[string]bool{LabelUnified: true},
			props:  map[string]interface{}{"key": u.Key},
		}
		s.nodes[n.id] = n
		s.order = append(s.order, n.id)
	}

	for k, v := range u.Attributes {
		n.props[k] = v
	}
	members := append([]string(nil), u.Members...)
	if members == nil {
		members = []string{}
	}
	fields := map[string]interface{}{
		propName:               u.Name,
		propDescription:        stringOrNil(u.Description),
		propCVSS:               floatOrNil(u.CVSSScore),
		propSeverity:           stringOrNil(u.Severity),
		propAttackVector:       stringOrNil(u.AttackVector),
		propPrivilegesRequired: stringOrNil(u.PrivilegesRequired),
		propUserInteraction:    stringOrNil(u.UserInteraction),
		propVectorString:       stringOrNil(u.VectorString),
		propPublished:          stringOrNil(u.Published),
		"members":              members,
	}
	for k, v := range fields {
		if v == nil {
			delete(n.props, k)
			continue
		}
		n.props[k] = v
	}
	return n.id, created, nil
}

func (s *MemoryStore) Relationships(ctx context.Context, nodeID string) ([]model.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapOp("relationships", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Relationship
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ == model.RelSameAs {
			continue
		}
		if r.from == nodeID || r.to == nodeID {
			out = append(out, r.export())
		}
	}
	return out, nil
}

func (s *MemoryStore) MergeRewired(ctx context.Context, rel model.Relationship, originID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, wrapOp("merge rewired", err)
	}
	if !relTypePattern.MatchString(rel.Type) {
		return false, &OpError{Op: "merge rewired", Err: fmt.Errorf("invalid relationship type %q", rel.Type)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[rel.From] == nil || s.nodes[rel.To] == nil {
		return false, wrapOp("merge rewired", fmt.Errorf("endpoints of %s: %w", originID, ErrNotFound))
	}
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ == rel.Type && r.from == rel.From && r.to == rel.To && r.props["rewired_from"] == originID {
			return false, nil
		}
	}
	props := rewirableProps(rel.Props)
	props["rewired_from"] = originID
	s.addRel(rel.Type, rel.From, rel.To, props)
	return true, nil
}

func (s *MemoryStore) PropagateImpacts(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapOp("propagate impacts", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		host, service string
		weight        interface{}
	}
	var rows []row
	for _, hpID := range s.rorder {
		hp := s.rels[hpID]
		if hp.typ != model.RelHasPlugin || !s.hasLabel(hp.from, LabelHost) || !s.hasLabel(hp.to, LabelPlugin) {
			continue
		}
		for _, dID := range s.rorder {
			d := s.rels[dID]
			if d.typ != model.RelDetects || d.from != hp.to || !s.hasLabel(d.to, LabelCVE) {
				continue
			}
			for _, sameID := range s.rorder {
				same := s.rels[sameID]
				if same.typ != model.RelSameAs {
					continue
				}
				var other string
				switch d.to {
				case same.from:
					other = same.to
				case same.to:
					other = same.from
				default:
					continue
				}
				if !s.hasLabel(other, LabelCVE) {
					continue
				}
				for _, impID := range s.rorder {
					imp := s.rels[impID]
					if imp.typ == model.RelImpacts && imp.to == other && s.hasLabel(imp.from, LabelService) {
						rows = append(rows, row{host: hp.from, service: imp.from, weight: s.nodes[other].props[propCVSS]})
					}
				}
			}
		}
	}

	for _, r := range rows {
		existing := s.findRel(model.RelImpacts, r.host, r.service)
		if existing == nil {
			props := map[string]interface{}{"inferred": true}
			if r.weight != nil {
				props["weight"] = asFloat(r.weight)
			}
			s.addRel(model.RelImpacts, r.host, r.service, props)
			continue
		}
		existing.props["weight"] = asFloat(existing.props["weight"]) + asFloat(r.weight)
	}
	return len(rows), nil
}

func (s *MemoryStore) CrossRefRows(ctx context.Context) ([]model.CrossRefRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapOp("cross reference rows", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[[2]string]bool)
	var pairs []model.CrossRefRow
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ != model.RelSameAs {
			continue
		}
		a, b := s.nodes[r.from], s.nodes[r.to]
		if a.props[propSource] == string(model.ProvenanceNessus) && b.props[propSource] == string(model.ProvenanceNVD) {
			a, b = b, a
		}
		if a.props[propSource] != string(model.ProvenanceNVD) || b.props[propSource] != string(model.ProvenanceNessus) {
			continue
		}
		k := [2]string{asString(a.props[propName]), asString(b.props[propName])}
		if seen[k] {
			continue
		}
		seen[k] = true
		pairs = append(pairs, model.CrossRefRow{Kind: model.RowPair, Left: k[0], Right: k[1]})
	}

	singles := make(map[string]bool)
	var keys []string
	for _, id := range s.order {
		n := s.nodes[id]
		if !n.labels[LabelUnified] {
			continue
		}
		name := asString(n.props[propName])
		if singles[name] {
			continue
		}
		singles[name] = true
		keys = append(keys, name)
	}
	sort.Strings(keys)

	rows := pairs
	for _, k := range keys {
		rows = append(rows, model.CrossRefRow{Kind: model.RowSingleton, Key: k})
	}
	return rows, nil
}

func (s *MemoryStore) EquivalenceCounts(ctx context.Context) (map[model.Method]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapOp("equivalence counts", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.Method]int)
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ == model.RelSameAs {
			counts[model.Method(asString(r.props["method"]))]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) FusedTotal(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapOp("fused total", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fused := make(map[string]bool)
	for _, rid := range s.rorder {
		r := s.rels[rid]
		if r.typ != model.RelSameAs {
			continue
		}
		a, b := s.nodes[r.from], s.nodes[r.to]
		for _, pair := range [][2]*memNode{{a, b}, {b, a}} {
			if pair[0].props[propSource] == string(model.ProvenanceNVD) && pair[1].props[propSource] == string(model.ProvenanceNessus) {
				fused[pair[0].id] = true
			}
		}
	}
	return len(fused), nil
}

func (s *MemoryStore) hasLabel(id, label string) bool {
	n, ok := s.nodes[id]
	return ok && n.labels[label]
}

func (s *MemoryStore) findCVE(name string, source model.Provenance) *memNode {
	for _, id := range s.order {
		n := s.nodes[id]
		if n.labels[LabelCVE] && n.props[propName] == name && n.props[propSource] == string(source) {
			return n
		}
	}
	return nil
}

func (s *MemoryStore) findRel(typ, from, to string) *memRel {
	for _, id := range s.rorder {
		r := s.rels[id]
		if r.typ == typ && r.from == from && r.to == to {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) unifiedByKey(key string) *memNode {
	for _, id := range s.order {
		n := s.nodes[id]
		if n.labels[LabelUnified] && n.props["key"] == key {
			return n
		}
	}
	return nil
}

func copyProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
