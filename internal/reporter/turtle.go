package reporter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/agenthands/kgfuse/internal/core/model"
)

const owlNamespace = "http://www.w3.org/2002/07/owl#"

// Turtle renders triples in the given order. Predicates in the OWL namespace
// are abbreviated with the owl: prefix.
func Turtle(triples []model.Triple) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "@prefix owl: <%s> .\n\n", owlNamespace)
	for _, t := range triples {
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			return nil, fmt.Errorf("incomplete triple %+v", t)
		}
		fmt.Fprintf(&buf, "%s %s %s .\n", iriRef(t.Subject), predicate(t.Predicate), iriRef(t.Object))
	}
	return buf.Bytes(), nil
}

func predicate(iri string) string {
	if local := strings.TrimPrefix(iri, owlNamespace); local != iri && local != "" {
		return "owl:" + local
	}
	return iriRef(iri)
}

// iriRef writes an IRIREF, escaping the characters Turtle forbids inside one.
func iriRef(iri string) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range iri {
		switch {
		case r <= 0x20, strings.ContainsRune("<>\"{}|^`\\", r):
			fmt.Fprintf(&b, "\\u%04X", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('>')
	return b.String()
}
