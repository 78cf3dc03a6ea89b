package reporter

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/agenthands/kgfuse/internal/core/model"
)

// MatchesHeader is the header row downstream analysis expects.
var MatchesHeader = []string{"CVE_KG1", "CVE_KG2", "method", "score"}

// Matches renders one row per accepted match: left name, right name, method, score.
func Matches(matches []model.Match) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(MatchesHeader); err != nil {
		return nil, err
	}
	for _, m := range matches {
		row := []string{
			m.Left.Name,
			m.Right.Name,
			string(m.Method),
			strconv.FormatFloat(m.Score, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
