package model

import (
	"fmt"
	"strings"
)

// Provenance marks which knowledge graph produced a vulnerability node.
type Provenance string

const (
	ProvenanceNVD    Provenance = "NVD"    // public vulnerability database (left side)
	ProvenanceNessus Provenance = "NESSUS" // local scanner export (right side)
)

func ParseProvenance(s string) (Provenance, error) {
	switch Provenance(strings.ToUpper(strings.TrimSpace(s))) {
	case ProvenanceNVD:
		return ProvenanceNVD, nil
	case ProvenanceNessus:
		return ProvenanceNessus, nil
	default:
		return "", fmt.Errorf("unknown provenance %q", s)
	}
}

// NormalizeKey returns the canonical identity of a vulnerability name.
func NormalizeKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

type Vulnerability struct {
	ID                 string                 `json:"id,omitempty"` // store element id
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	CVSSScore          *float64               `json:"cvss_score,omitempty"`
	Severity           string                 `json:"severity,omitempty"`
	AttackVector       string                 `json:"attack_vector,omitempty"`
	PrivilegesRequired string                 `json:"privileges_required,omitempty"`
	UserInteraction    string                 `json:"user_interaction,omitempty"`
	VectorString       string                 `json:"vector_string,omitempty"`
	Published          string                 `json:"published,omitempty"`
	Source             Provenance             `json:"source"`
	Attributes         map[string]interface{} `json:"attributes,omitempty"`
}

func (v Vulnerability) Key() string {
	return NormalizeKey(v.Name)
}

// EmbeddingText is the text both sides are embedded from.
func (v Vulnerability) EmbeddingText() string {
	return strings.TrimSpace(v.Name + " " + v.Description)
}

// UnifiedVulnerability is the canonical node of one equivalence class.
type UnifiedVulnerability struct {
	ID                 string                 `json:"id,omitempty"`
	Key                string                 `json:"key"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	CVSSScore          *float64               `json:"cvss_score,omitempty"`
	Severity           string                 `json:"severity,omitempty"`
	AttackVector       string                 `json:"attack_vector,omitempty"`
	PrivilegesRequired string                 `json:"privileges_required,omitempty"`
	UserInteraction    string                 `json:"user_interaction,omitempty"`
	VectorString       string                 `json:"vector_string,omitempty"`
	Published          string                 `json:"published,omitempty"`
	Members            []string               `json:"members"` // element ids of the constituents
	Attributes         map[string]interface{} `json:"attributes,omitempty"`
}
