package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/kgfuse/internal/config"
	"github.com/agenthands/kgfuse/internal/core/align"
	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/store"
)

func ptr(f float64) *float64 { return &f }

type fixture struct {
	store   *store.MemoryStore
	host    string
	service string
}

// newFixture seeds an NVD graph and an untagged scanner graph.
func newFixture() fixture {
	st := store.NewMemoryStore()
	host := st.AddNode([]string{store.LabelHost}, map[string]interface{}{"ip": "10.0.0.5"})
	plugin := st.AddNode([]string{store.LabelPlugin}, map[string]interface{}{"id": "19506"})
	service := st.AddNode([]string{store.LabelService}, map[string]interface{}{"name": "nginx"})
	st.AddRelationship(model.RelHasPlugin, host, plugin, nil)

	pub := st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Description: "A", Source: model.ProvenanceNVD})
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0002", Description: "buffer overflow in parser", CVSSScore: ptr(9.8), Source: model.ProvenanceNVD})
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2019-1111", Description: "sql injection in login form", Source: model.ProvenanceNVD})
	st.AddRelationship(model.RelImpacts, service, pub, nil)

	for _, props := range []map[string]interface{}{
		{"name": "cve-2024-0001", "description": "B", "cvss_score": 7.5},
		{"name": "CVE-2024-00O2", "description": "buffer overflow in parser"},
		{"name": "NESSUS-SQLI", "description": "sql injection in login form"},
		{"name": "CVE-2010-0000"},
	} {
		id := st.AddNode([]string{store.LabelCVE}, props)
		st.AddRelationship(model.RelDetects, plugin, id, nil)
	}
	return fixture{store: st, host: host, service: service}
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Concurrency.Workers = 4
	cfg.Retry.InitialIntervalMs = 1
	cfg.Retry.MaxIntervalMs = 2
	cfg.Export.MatchesCSV = filepath.Join(dir, "predictions", "aligned_cves.csv")
	cfg.Export.CrossRefTurtle = filepath.Join(dir, "exports", "kg_fusionne.ttl")
	cfg.Export.SummaryJSON = filepath.Join(dir, "exports", "run_summary.json")
	return cfg
}

func newTestEngine(t *testing.T, f fixture) (*Engine, string) {
	dir := t.TempDir()
	emb := &MockEmbedder{Vectors: map[string][]float32{
		"CVE-2019-1111 sql injection in login form": {0.6, 0.8},
		"NESSUS-SQLI sql injection in login form":   {0.6, 0.8},
	}}
	e := NewEngine(f.store, emb, testConfig(dir), nil)
	e.NewRunID = func() string { return "run-test" }
	e.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e, dir
}

func TestEngineRun(t *testing.T) {
	f := newFixture()
	e, dir := newTestEngine(t, f)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-test", summary.RunID)
	assert.Equal(t, 4, summary.ProvenanceBefore)
	assert.Equal(t, 0, summary.ProvenanceAfter)

	a := summary.Alignment
	require.NotNil(t, a)
	assert.Equal(t, 3, a.Outcomes[align.OutcomeMatched])
	assert.Equal(t, 1, a.Outcomes[align.OutcomeUnmatched])
	assert.Equal(t, map[model.Method]int{
		model.MethodExact: 1, model.MethodFuzzy: 1, model.MethodEmbedding: 1,
	}, a.Methods)

	require.NotNil(t, summary.Fusion)
	assert.Equal(t, 3, summary.Fusion.Classes)
	assert.Equal(t, 3, summary.Fusion.UnifiedCreated)
	assert.Equal(t, 1, summary.ImpactPaths)
	assert.Equal(t, 6, summary.CrossRefTriples)
	assert.Equal(t, 3, summary.FusedTotal)
	assert.Empty(t, summary.Errors)

	_, unified, ok := f.store.UnifiedNode("CVE-2024-0001")
	require.True(t, ok)
	assert.Equal(t, "A", unified["description"])
	assert.Equal(t, 7.5, unified["cvss_score"])

	csvData, err := os.ReadFile(filepath.Join(dir, "predictions", "aligned_cves.csv"))
	require.NoError(t, err)
	assert.Equal(t, "CVE_KG1,CVE_KG2,method,score\n"+
		"CVE-2024-0002,CVE-2024-00O2,fuzzy,92\n"+
		"CVE-2019-1111,NESSUS-SQLI,embedding,100\n"+
		"CVE-2024-0001,cve-2024-0001,exact,100\n", string(csvData))

	ttl, err := os.ReadFile(filepath.Join(dir, "exports", "kg_fusionne.ttl"))
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(string(ttl), "owl:sameAs"))
	assert.Contains(t, string(ttl), "<http://example.org/cyber#CVE/CVE-2024-0001> owl:sameAs <http://example.org/unified#CVE-2024-0001> .")

	raw, err := os.ReadFile(filepath.Join(dir, "exports", "run_summary.json"))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-test", decoded["run_id"])
	assert.Len(t, decoded["artifacts"], 3)
}

func TestEngineRunTwiceIsIdempotentForEdges(t *testing.T) {
	f := newFixture()
	e, _ := newTestEngine(t, f)
	ctx := context.Background()

	_, err := e.Run(ctx)
	require.NoError(t, err)
	edges := f.store.RelationshipsOfType(model.RelSameAs)
	detects := len(f.store.RelationshipsOfType(model.RelDetects))

	second, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Alignment.Outcomes[align.OutcomeAlreadyLinked])
	assert.Empty(t, second.Alignment.Matches)
	assert.Equal(t, 0, second.Fusion.UnifiedCreated)
	assert.Equal(t, 3, second.Fusion.UnifiedUpdated)
	assert.Equal(t, edges, f.store.RelationshipsOfType(model.RelSameAs))
	assert.Equal(t, detects, len(f.store.RelationshipsOfType(model.RelDetects)))
	assert.Len(t, f.store.NodesWithLabel(store.LabelUnified), 3)

	for _, r := range f.store.RelationshipsOfType(model.RelImpacts) {
		if r.From == f.host && r.To == f.service {
			assert.Equal(t, true, r.Props["inferred"])
			// no score on the NVD side, so the accumulated weight stays at zero
			assert.Equal(t, 0.0, r.Props["weight"])
		}
	}
}

func TestEngineRunStopsWhenAlignmentCannotLoad(t *testing.T) {
	f := newFixture()
	e, dir := newTestEngine(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := e.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, summary.Alignment)
	assert.NotEmpty(t, summary.Errors)
	_, statErr := os.Stat(filepath.Join(dir, "predictions", "aligned_cves.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestEngineStagesStandAlone(t *testing.T) {
	f := newFixture()
	e, _ := newTestEngine(t, f)
	ctx := context.Background()

	n, err := e.TagProvenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	fused, err := e.Fuse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fused.Classes)

	a, err := e.Align(ctx, "stage-run")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Outcomes[align.OutcomeMatched])
	for _, r := range f.store.RelationshipsOfType(model.RelSameAs) {
		assert.Equal(t, "stage-run", r.Props["run_id"])
	}

	triples, err := e.CrossReferences(ctx)
	require.NoError(t, err)
	assert.Len(t, triples, 3)
}
