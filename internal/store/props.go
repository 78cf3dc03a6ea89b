package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agenthands/kgfuse/internal/core/model"
)

// Node property names as written by the ingestion collaborators.
const (
	propName               = "name"
	propDescription        = "description"
	propCVSS               = "cvss_score"
	propSeverity           = "severity"
	propAttackVector       = "attackVector"
	propPrivilegesRequired = "privilegesRequired"
	propUserInteraction    = "userInteraction"
	propVectorString       = "vectorString"
	propPublished          = "published"
	propSource             = "source"
)

var knownProps = map[string]bool{
	propName: true, propDescription: true, propCVSS: true, propSeverity: true,
	propAttackVector: true, propPrivilegesRequired: true, propUserInteraction: true,
	propVectorString: true, propPublished: true, propSource: true,
}

func vulnerabilityFromProps(id string, props map[string]interface{}) model.Vulnerability {
	v := model.Vulnerability{
		ID:                 id,
		Name:               asString(props[propName]),
		Description:        asString(props[propDescription]),
		CVSSScore:          asFloatPtr(props[propCVSS]),
		Severity:           asString(props[propSeverity]),
		AttackVector:       asString(props[propAttackVector]),
		PrivilegesRequired: asString(props[propPrivilegesRequired]),
		UserInteraction:    asString(props[propUserInteraction]),
		VectorString:       asString(props[propVectorString]),
		Published:          asString(props[propPublished]),
		Source:             model.Provenance(strings.ToUpper(strings.TrimSpace(asString(props[propSource])))),
	}
	for k, val := range props {
		if knownProps[k] {
			continue
		}
		if v.Attributes == nil {
			v.Attributes = make(map[string]interface{})
		}
		v.Attributes[k] = val
	}
	return v
}

func vulnerabilityProps(v model.Vulnerability) map[string]interface{} {
	props := make(map[string]interface{}, len(v.Attributes)+10)
	for k, val := range v.Attributes {
		props[k] = val
	}
	props[propName] = v.Name
	props[propSource] = string(v.Source)
	setIfNotEmpty(props, propDescription, v.Description)
	setIfNotEmpty(props, propSeverity, v.Severity)
	setIfNotEmpty(props, propAttackVector, v.AttackVector)
	setIfNotEmpty(props, propPrivilegesRequired, v.PrivilegesRequired)
	setIfNotEmpty(props, propUserInteraction, v.UserInteraction)
	setIfNotEmpty(props, propVectorString, v.VectorString)
	setIfNotEmpty(props, propPublished, v.Published)
	if v.CVSSScore != nil {
		props[propCVSS] = *v.CVSSScore
	}
	return props
}

func setIfNotEmpty(props map[string]interface{}, key, val string) {
	if val != "" {
		props[key] = val
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asFloatPtr(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	if p := asFloatPtr(v); p != nil {
		return *p
	}
	return 0
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// rewirableProps drops the bookkeeping keys MergeRewired owns.
func rewirableProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		if k == "rewired_from" || k == "nonce" {
			continue
		}
		out[k] = v
	}
	return out
}

func floatOrNil(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func stringOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
