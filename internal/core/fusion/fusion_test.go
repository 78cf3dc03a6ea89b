package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/kgfuse/internal/core/cluster"
	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/store"
)

func ptr(f float64) *float64 { return &f }

func link(t *testing.T, st *store.MemoryStore, left, right string) {
	t.Helper()
	_, err := st.MergeEquivalence(context.Background(), model.EquivalenceEdge{
		Left: left, LeftSource: model.ProvenanceNVD,
		Right: right, RightSource: model.ProvenanceNessus,
		Method: model.MethodExact, Score: 100,
	})
	require.NoError(t, err)
}

func TestUnify_PublicSourceTakesPrecedence(t *testing.T) {
	left := model.Vulnerability{ID: "1", Name: "CVE-2024-0001", Description: "A", Source: model.ProvenanceNVD}
	right := model.Vulnerability{ID: "2", Name: "cve-2024-0001", Description: "B", CVSSScore: ptr(7.5), Severity: "HIGH", Source: model.ProvenanceNessus}

	classes := cluster.Detect([]model.EquivalencePair{{Left: right, Right: left}})
	require.Len(t, classes, 1)

	u, ok := Unify(classes[0])
	require.True(t, ok)
	assert.Equal(t, "CVE-2024-0001", u.Key)
	assert.Equal(t, "CVE-2024-0001", u.Name)
	assert.Equal(t, "A", u.Description)
	require.NotNil(t, u.CVSSScore)
	assert.Equal(t, 7.5, *u.CVSSScore)
	assert.Equal(t, "HIGH", u.Severity)
	assert.ElementsMatch(t, []string{"1", "2"}, u.Members)
}

func TestUnify_AttributesFirstWins(t *testing.T) {
	left := model.Vulnerability{ID: "1", Name: "CVE-1", Source: model.ProvenanceNVD,
		Attributes: map[string]interface{}{"cwe": "CWE-79", "created_at": "yesterday"}}
	right := model.Vulnerability{ID: "2", Name: "CVE-1", Source: model.ProvenanceNessus,
		Attributes: map[string]interface{}{"cwe": "CWE-80", "plugin_family": "Web Servers"}}

	u, ok := Unify(cluster.Detect([]model.EquivalencePair{{Left: left, Right: right}})[0])
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"cwe": "CWE-79", "plugin_family": "Web Servers"}, u.Attributes)
}

func TestFuser_CoalescesIntoUnifiedNode(t *testing.T) {
	st := store.NewMemoryStore()
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Description: "A", Source: model.ProvenanceNVD})
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Description: "B", CVSSScore: ptr(7.5), Source: model.ProvenanceNessus})
	link(t, st, "CVE-2024-0001", "CVE-2024-0001")

	summary, err := New(st, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Classes)
	assert.Equal(t, 1, summary.UnifiedCreated)

	_, props, ok := st.UnifiedNode("CVE-2024-0001")
	require.True(t, ok)
	assert.Equal(t, "A", props["description"])
	assert.Equal(t, 7.5, props["cvss_score"])
	assert.Equal(t, "CVE-2024-0001", props["name"])
}

func TestFuser_RewiresEveryRelationship(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	pub := st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Source: model.ProvenanceNVD})
	scan := st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Source: model.ProvenanceNessus})
	service := st.AddNode([]string{store.LabelService}, map[string]interface{}{"name": "nginx"})
	plugin := st.AddNode([]string{store.LabelPlugin}, map[string]interface{}{"id": "156032"})
	cwe := st.AddNode([]string{"CWE"}, map[string]interface{}{"id": "CWE-502"})
	st.AddRelationship(model.RelImpacts, service, pub, map[string]interface{}{"confidence": 0.7})
	st.AddRelationship(model.RelDetects, plugin, scan, map[string]interface{}{"port": int64(443)})
	st.AddRelationship("HAS_CWE", pub, cwe, nil)
	link(t, st, "CVE-2024-0001", "CVE-2024-0001")

	before := map[string][]model.Relationship{}
	for _, typ := range []string{model.RelImpacts, model.RelDetects, "HAS_CWE"} {
		before[typ] = st.RelationshipsOfType(typ)
	}

	summary, err := New(st, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RewiredOutgoing)
	assert.Equal(t, 2, summary.RewiredIncoming)

	unified, _, ok := st.UnifiedNode("CVE-2024-0001")
	require.True(t, ok)

	for typ, originals := range before {
		after := st.RelationshipsOfType(typ)
		require.Len(t, after, len(originals)*2, typ)
		assert.Equal(t, originals, after[:len(originals)], "originals untouched for %s", typ)

		for i, orig := range originals {
			copyRel := after[len(originals)+i]
			assert.Equal(t, orig.ID, copyRel.Props["rewired_from"])
			if orig.From == pub || orig.From == scan {
				assert.Equal(t, unified, copyRel.From)
				assert.Equal(t, orig.To, copyRel.To)
			} else {
				assert.Equal(t, orig.From, copyRel.From)
				assert.Equal(t, unified, copyRel.To)
			}
			for k, v := range orig.Props {
				assert.Equal(t, v, copyRel.Props[k])
			}
		}
	}

	again, err := New(st, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.UnifiedCreated)
	assert.Equal(t, 1, again.UnifiedUpdated)
	assert.Equal(t, 3, again.RewiredExisting)
	assert.Len(t, st.RelationshipsOfType(model.RelDetects), 2)
	assert.Len(t, st.NodesWithLabel(store.LabelUnified), 1)
}

func TestFuser_ClassWithSeveralScannerMembers(t *testing.T) {
	st := store.NewMemoryStore()
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-0001", Source: model.ProvenanceNVD})
	st.AddVulnerability(model.Vulnerability{Name: "cve-2024-0001", Source: model.ProvenanceNessus})
	st.AddVulnerability(model.Vulnerability{Name: "CVE-2024-00O1", Source: model.ProvenanceNessus})
	link(t, st, "CVE-2024-0001", "cve-2024-0001")
	link(t, st, "CVE-2024-0001", "CVE-2024-00O1")

	summary, err := New(st, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Classes)

	_, props, ok := st.UnifiedNode("CVE-2024-0001")
	require.True(t, ok)
	assert.Len(t, props["members"], 3)
}

func TestFuser_IgnoresSameProvenancePairs(t *testing.T) {
	st := store.NewMemoryStore()
	a := st.AddVulnerability(model.Vulnerability{Name: "CVE-1", Source: model.ProvenanceNVD})
	b := st.AddVulnerability(model.Vulnerability{Name: "CVE-2", Source: model.ProvenanceNVD})
	st.AddRelationship(model.RelSameAs, a, b, map[string]interface{}{"method": "fuzzy", "score": 91.0})

	summary, err := New(st, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedSameProvenance)
	assert.Equal(t, 0, summary.Classes)
	assert.Empty(t, st.NodesWithLabel(store.LabelUnified))
}

func TestRewire_SelfLoopBetweenMembers(t *testing.T) {
	rel := model.Relationship{ID: "r", Type: "RELATED_TO", From: "1", To: "2"}
	out := Rewire(rel, map[string]bool{"1": true, "2": true}, "u")
	assert.Equal(t, "u", out.From)
	assert.Equal(t, "u", out.To)
	assert.Equal(t, "RELATED_TO", out.Type)
}
