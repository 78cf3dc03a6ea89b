package fusion

import (
	"github.com/agenthands/kgfuse/internal/core/cluster"
	"github.com/agenthands/kgfuse/internal/core/model"
)

// Unify builds the unified record of a class. It reports false when the
// class has no NVD member to key it by.
func Unify(c cluster.Class) (model.UnifiedVulnerability, bool) {
	canon, ok := c.Canonical()
	if !ok {
		return model.UnifiedVulnerability{}, false
	}

	ordered := append(c.BySource(model.ProvenanceNVD), c.BySource(model.ProvenanceNessus)...)
	u := model.UnifiedVulnerability{
		Key:  canon.Key(),
		Name: canon.Name,
	}
	for _, m := range c.Members {
		u.Members = append(u.Members, m.ID)
	}

	for _, m := range ordered {
		first(&u.Description, m.Description)
		first(&u.Severity, m.Severity)
		first(&u.AttackVector, m.AttackVector)
		first(&u.PrivilegesRequired, m.PrivilegesRequired)
		first(&u.UserInteraction, m.UserInteraction)
		first(&u.VectorString, m.VectorString)
		first(&u.Published, m.Published)
		if u.CVSSScore == nil && m.CVSSScore != nil {
			score := *m.CVSSScore
			u.CVSSScore = &score
		}
		for k, v := range m.Attributes {
			if v == nil || reserved[k] {
				continue
			}
			if u.Attributes == nil {
				u.Attributes = make(map[string]interface{})
			}
			if _, ok := u.Attributes[k]; !ok {
				u.Attributes[k] = v
			}
		}
	}
	return u, true
}

// reserved are unified node properties the store maintains itself.
var reserved = map[string]bool{
	"key": true, "members": true, "nonce": true, "created_at": true, "updated_at": true,
}

func first(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
