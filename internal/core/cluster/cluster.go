// Package cluster groups SAME_AS pairs into connected equivalence classes.
package cluster

import (
	"sort"

	"github.com/agenthands/kgfuse/internal/core/model"
)

// Class is one connected component of the equivalence graph.
type Class struct {
	// Members are ordered by key, then NVD before NESSUS, then element id.
	Members []model.Vulnerability
	Pairs   []model.EquivalencePair
}

// Detect returns the connected components spanned by pairs, in order of the
// first pair touching each component. Pairs without both endpoint ids are ignored.
func Detect(pairs []model.EquivalencePair) []Class {
	nodeMap := make(map[string]model.Vulnerability)
	adj := make(map[string][]string)
	var order []string

	for _, p := range pairs {
		if p.Left.ID == "" || p.Right.ID == "" {
			continue
		}
		for _, v := range []model.Vulnerability{p.Left, p.Right} {
			if _, ok := nodeMap[v.ID]; !ok {
				nodeMap[v.ID] = v
				order = append(order, v.ID)
			}
		}
		adj[p.Left.ID] = append(adj[p.Left.ID], p.Right.ID)
		adj[p.Right.ID] = append(adj[p.Right.ID], p.Left.ID)
	}

	visited := make(map[string]bool)
	componentOf := make(map[string]int)
	var classes []Class

	for _, id := range order {
		if visited[id] {
			continue
		}
		var component []string
		dfs(id, adj, visited, &component)

		c := Class{}
		for _, m := range component {
			componentOf[m] = len(classes)
			c.Members = append(c.Members, nodeMap[m])
		}
		sortMembers(c.Members)
		classes = append(classes, c)
	}

	for _, p := range pairs {
		if p.Left.ID == "" || p.Right.ID == "" {
			continue
		}
		i := componentOf[p.Left.ID]
		classes[i].Pairs = append(classes[i].Pairs, p)
	}
	return classes
}

func dfs(u string, adj map[string][]string, visited map[string]bool, component *[]string) {
	visited[u] = true
	*component = append(*component, u)
	for _, v := range adj[u] {
		if !visited[v] {
			dfs(v, adj, visited, component)
		}
	}
}

func sortMembers(members []model.Vulnerability) {
	rank := func(p model.Provenance) int {
		switch p {
		case model.ProvenanceNVD:
			return 0
		case model.ProvenanceNessus:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.Key() != b.Key() {
			return a.Key() < b.Key()
		}
		if rank(a.Source) != rank(b.Source) {
			return rank(a.Source) < rank(b.Source)
		}
		return a.ID < b.ID
	})
}

// Canonical returns the first NVD member in key order.
func (c Class) Canonical() (model.Vulnerability, bool) {
	for _, m := range c.Members {
		if m.Source == model.ProvenanceNVD {
			return m, true
		}
	}
	return model.Vulnerability{}, false
}

// BySource returns the members of one provenance, keeping member order.
func (c Class) BySource(p model.Provenance) []model.Vulnerability {
	var out []model.Vulnerability
	for _, m := range c.Members {
		if m.Source == p {
			out = append(out, m)
		}
	}
	return out
}
