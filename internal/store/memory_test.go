package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/kgfuse/internal/core/model"
)

func score(f float64) *float64 { return &f }

func TestMemoryStore_MergeEquivalenceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddVulnerability(model.Vulnerability{Name: "CVE-2021-44228", Source: model.ProvenanceNVD})
	s.AddVulnerability(model.Vulnerability{Name: "CVE-2021-44228", Source: model.ProvenanceNessus})

	edge := model.EquivalenceEdge{
		Left: "CVE-2021-44228", LeftSource: model.ProvenanceNVD,
		Right: "CVE-2021-44228", RightSource: model.ProvenanceNessus,
		Method: model.MethodExact, Score: 100,
	}
	created, err := s.MergeEquivalence(ctx, edge)
	require.NoError(t, err)
	assert.True(t, created)

	edge.Method = model.MethodFuzzy
	edge.Score = 91
	created, err = s.MergeEquivalence(ctx, edge)
	require.NoError(t, err)
	assert.False(t, created)

	rels := s.RelationshipsOfType(model.RelSameAs)
	require.Len(t, rels, 1)
	assert.Equal(t, "exact", rels[0].Props["method"])
	assert.Equal(t, 100.0, rels[0].Props["score"])
}

func TestMemoryStore_ConcurrentMergesCreateOneEdge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNVD})
	s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNessus})

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.MergeEquivalence(ctx, model.EquivalenceEdge{
				Left: "CVE-1", LeftSource: model.ProvenanceNVD,
				Right: "CVE-1", RightSource: model.ProvenanceNessus,
				Method: model.MethodExact, Score: 100,
			})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, s.RelationshipsOfType(model.RelSameAs), 1)
}

func TestMemoryStore_MergeEquivalenceMissingEndpoint(t *testing.T) {
	s := NewMemoryStore()
	s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNVD})

	_, err := s.MergeEquivalence(context.Background(), model.EquivalenceEdge{
		Left: "CVE-1", LeftSource: model.ProvenanceNVD,
		Right: "CVE-1", RightSource: model.ProvenanceNessus,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_TagScannerProvenance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	host := s.AddNode([]string{LabelHost}, map[string]interface{}{"name": "web-01"})
	plugin := s.AddNode([]string{LabelPlugin}, map[string]interface{}{"id": "156032"})
	untagged := s.AddNode([]string{LabelCVE}, map[string]interface{}{"name": "CVE-1"})
	nvd := s.AddVulnerability(model.Vulnerability{Name: "CVE-2", Source: model.ProvenanceNVD})
	s.AddNode([]string{LabelCVE}, map[string]interface{}{"name": "CVE-3"})
	s.AddRelationship(model.RelHasPlugin, host, plugin, nil)
	s.AddRelationship(model.RelDetects, plugin, untagged, nil)
	s.AddRelationship(model.RelDetects, plugin, nvd, nil)

	corrected, err := s.TagScannerProvenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	props, _ := s.NodeProps(untagged)
	assert.Equal(t, "NESSUS", props["source"])
	props, _ = s.NodeProps(nvd)
	assert.Equal(t, "NVD", props["source"])

	corrected, err = s.TagScannerProvenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, corrected)
}

func TestMemoryStore_FetchBySourceOrdersByName(t *testing.T) {
	s := NewMemoryStore()
	s.AddVulnerability(model.Vulnerability{Name: "CVE-B", Source: model.ProvenanceNVD})
	s.AddVulnerability(model.Vulnerability{Name: "CVE-A", Source: model.ProvenanceNVD})
	s.AddVulnerability(model.Vulnerability{Name: "CVE-A", Source: model.ProvenanceNessus})

	vulns, err := s.FetchBySource(context.Background(), model.ProvenanceNVD)
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	assert.Equal(t, "CVE-A", vulns[0].Name)
	assert.Equal(t, "CVE-B", vulns[1].Name)
}

func TestMemoryStore_MergeUnifiedUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, created, err := s.MergeUnified(ctx, model.UnifiedVulnerability{Key: "CVE-1", Name: "CVE-1", Severity: "HIGH", CVSSScore: score(7.5)})
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := s.MergeUnified(ctx, model.UnifiedVulnerability{Key: "CVE-1", Name: "CVE-1", Severity: "HIGH"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	_, props, ok := s.UnifiedNode("CVE-1")
	require.True(t, ok)
	assert.Equal(t, "HIGH", props["severity"])
	_, hasScore := props["cvss_score"]
	assert.False(t, hasScore)
	assert.Len(t, s.NodesWithLabel(LabelUnified), 1)
}

func TestMemoryStore_MergeRewiredIsKeyedByOrigin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := s.AddNode([]string{LabelPlugin}, nil)
	b := s.AddNode([]string{LabelUnified}, nil)

	rel := model.Relationship{Type: model.RelDetects, From: a, To: b, Props: map[string]interface{}{"port": int64(443)}}
	created, err := s.MergeRewired(ctx, rel, "r:origin")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.MergeRewired(ctx, rel, "r:origin")
	require.NoError(t, err)
	assert.False(t, created)

	rels := s.RelationshipsOfType(model.RelDetects)
	require.Len(t, rels, 1)
	assert.Equal(t, int64(443), rels[0].Props["port"])
	assert.Equal(t, "r:origin", rels[0].Props["rewired_from"])
}

func TestMemoryStore_PropagateImpactsAccumulates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	host := s.AddNode([]string{LabelHost}, nil)
	plugin := s.AddNode([]string{LabelPlugin}, nil)
	service := s.AddNode([]string{LabelService}, nil)
	scanned := s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNessus})
	public := s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNVD, CVSSScore: score(9.8)})
	s.AddRelationship(model.RelHasPlugin, host, plugin, nil)
	s.AddRelationship(model.RelDetects, plugin, scanned, nil)
	s.AddRelationship(model.RelImpacts, service, public, nil)
	_, err := s.MergeEquivalence(ctx, model.EquivalenceEdge{
		Left: "CVE-1", LeftSource: model.ProvenanceNVD,
		Right: "CVE-1", RightSource: model.ProvenanceNessus,
		Method: model.MethodExact, Score: 100,
	})
	require.NoError(t, err)

	touched, err := s.PropagateImpacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	var inferred []model.Relationship
	for _, r := range s.RelationshipsOfType(model.RelImpacts) {
		if r.From == host {
			inferred = append(inferred, r)
		}
	}
	require.Len(t, inferred, 1)
	assert.Equal(t, true, inferred[0].Props["inferred"])
	assert.Equal(t, 9.8, inferred[0].Props["weight"])

	_, err = s.PropagateImpacts(ctx)
	require.NoError(t, err)
	rels := s.RelationshipsOfType(model.RelImpacts)
	require.Len(t, rels, 2)
	assert.InDelta(t, 19.6, rels[1].Props["weight"], 1e-9)
}

func TestMemoryStore_CrossRefRowsAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNVD})
	s.AddVulnerability(model.Vulnerability{Name: "cve-1", Source: model.ProvenanceNessus})
	_, err := s.MergeEquivalence(ctx, model.EquivalenceEdge{
		Left: "CVE-1", LeftSource: model.ProvenanceNVD,
		Right: "cve-1", RightSource: model.ProvenanceNessus,
		Method: model.MethodExact, Score: 100,
	})
	require.NoError(t, err)
	_, _, err = s.MergeUnified(ctx, model.UnifiedVulnerability{Key: "CVE-1", Name: "CVE-1"})
	require.NoError(t, err)

	rows, err := s.CrossRefRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.CrossRefRow{
		{Kind: model.RowPair, Left: "CVE-1", Right: "cve-1"},
		{Kind: model.RowSingleton, Key: "CVE-1"},
	}, rows)

	counts, err := s.EquivalenceCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Method]int{model.MethodExact: 1}, counts)

	total, err := s.FusedTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMemoryStore_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().FetchBySource(ctx, model.ProvenanceNVD)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
}
