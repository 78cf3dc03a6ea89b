package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/kgfuse/internal/core/model"
)

func v(id, name string, src model.Provenance) model.Vulnerability {
	return model.Vulnerability{ID: id, Name: name, Source: src}
}

func TestDetect(t *testing.T) {
	a := v("1", "CVE-2024-0001", model.ProvenanceNVD)
	b := v("2", "cve-2024-0001", model.ProvenanceNessus)
	c := v("3", "CVE-2024-0001 ", model.ProvenanceNessus)
	d := v("4", "CVE-2023-9999", model.ProvenanceNVD)
	e := v("5", "CVE-2023-9999", model.ProvenanceNessus)

	classes := Detect([]model.EquivalencePair{
		{Left: a, Right: b},
		{Left: c, Right: a},
		{Left: d, Right: e},
	})

	require.Len(t, classes, 2)
	assert.Len(t, classes[0].Members, 3)
	assert.Len(t, classes[0].Pairs, 2)
	assert.Len(t, classes[1].Members, 2)

	canon, ok := classes[0].Canonical()
	require.True(t, ok)
	assert.Equal(t, "1", canon.ID)
	assert.Len(t, classes[0].BySource(model.ProvenanceNessus), 2)
}

func TestDetect_MultipleNVDMembers(t *testing.T) {
	late := v("9", "CVE-2024-0002", model.ProvenanceNVD)
	early := v("8", "CVE-2024-0001", model.ProvenanceNVD)
	scan := v("7", "CVE-2024-0001", model.ProvenanceNessus)

	classes := Detect([]model.EquivalencePair{
		{Left: late, Right: scan},
		{Left: early, Right: scan},
	})

	require.Len(t, classes, 1)
	canon, ok := classes[0].Canonical()
	require.True(t, ok)
	assert.Equal(t, "8", canon.ID)
	assert.Equal(t, []string{"8", "7", "9"}, []string{
		classes[0].Members[0].ID, classes[0].Members[1].ID, classes[0].Members[2].ID,
	})
}

func TestDetect_NoCanonicalWithoutNVD(t *testing.T) {
	classes := Detect([]model.EquivalencePair{
		{Left: v("1", "A", model.ProvenanceNessus), Right: v("2", "A", model.ProvenanceNessus)},
	})
	require.Len(t, classes, 1)
	_, ok := classes[0].Canonical()
	assert.False(t, ok)
}

func TestDetect_IgnoresPairsWithoutIDs(t *testing.T) {
	classes := Detect([]model.EquivalencePair{
		{Left: v("", "A", model.ProvenanceNVD), Right: v("2", "A", model.ProvenanceNessus)},
	})
	assert.Empty(t, classes)
}
