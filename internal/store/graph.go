package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/driver"
)

var relTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GraphStore implements Store with Cypher over a driver.GraphDriver.
type GraphStore struct {
	Driver  driver.GraphDriver
	Timeout time.Duration
	// NewNonce defaults to uuid.NewString.
	NewNonce func() string
	Now      func() time.Time
}

func NewGraphStore(d driver.GraphDriver, timeout time.Duration) *GraphStore {
	return &GraphStore{
		Driver:   d,
		Timeout:  timeout,
		NewNonce: uuid.NewString,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *GraphStore) exec(ctx context.Context, op, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	res, err := s.Driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return neo4j.EagerResult{}, wrapOp(op, err)
	}
	return res, nil
}

func (s *GraphStore) Ping(ctx context.Context) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return wrapOp("ping", s.Driver.VerifyConnectivity(ctx))
}

func (s *GraphStore) TagScannerProvenance(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, "tag provenance", driver.TagScannerProvenanceQuery, nil)
	if err != nil {
		return 0, err
	}
	return firstInt(res, "corrected"), nil
}

func (s *GraphStore) FetchBySource(ctx context.Context, source model.Provenance) ([]model.Vulnerability, error) {
	res, err := s.exec(ctx, "fetch by source", driver.FetchBySourceQuery, map[string]interface{}{
		"source": string(source),
	})
	if err != nil {
		return nil, err
	}

	vulns := make([]model.Vulnerability, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		props, _ := rec.Get("props")
		vulns = append(vulns, vulnerabilityFromProps(asString(id), asMap(props)))
	}
	return vulns, nil
}

func (s *GraphStore) HasEquivalence(ctx context.Context, v model.Vulnerability) (bool, error) {
	res, err := s.exec(ctx, "has equivalence", driver.HasEquivalenceQuery, map[string]interface{}{
		"name":   v.Name,
		"source": string(v.Source),
	})
	if err != nil {
		return false, err
	}
	return firstBool(res, "linked"), nil
}

func (s *GraphStore) EquivalenceExists(ctx context.Context, left, right string) (bool, error) {
	res, err := s.exec(ctx, "equivalence exists", driver.EquivalenceExistsQuery, map[string]interface{}{
		"left":  left,
		"right": right,
	})
	if err != nil {
		return false, err
	}
	return firstBool(res, "linked"), nil
}

func (s *GraphStore) MergeEquivalence(ctx context.Context, e model.EquivalenceEdge) (bool, error) {
	params := map[string]interface{}{
		"left":         e.Left,
		"left_source":  string(e.LeftSource),
		"right":        e.Right,
		"right_source": string(e.RightSource),
		"pair_key":     e.PairKey(),
		"method":       string(e.Method),
		"score":        e.Score,
		"run_id":       e.RunID,
		"nonce":        s.NewNonce(),
		"created_at":   s.Now().Format(time.RFC3339),
	}
	res, err := s.exec(ctx, "merge equivalence", driver.MergeEquivalenceQuery, params)
	if err != nil {
		return false, err
	}
	if len(res.Records) == 0 {
		return false, wrapOp("merge equivalence", fmt.Errorf("endpoints %q/%q: %w", e.Left, e.Right, ErrNotFound))
	}
	return firstBool(res, "created"), nil
}

func (s *GraphStore) EquivalencePairs(ctx context.Context) ([]model.EquivalencePair, error) {
	res, err := s.exec(ctx, "equivalence pairs", driver.EquivalencePairsQuery, nil)
	if err != nil {
		return nil, err
	}

	pairs := make([]model.EquivalencePair, 0, len(res.Records))
	for _, rec := range res.Records {
		leftID, _ := rec.Get("left_id")
		leftProps, _ := rec.Get("left_props")
		rightID, _ := rec.Get("right_id")
		rightProps, _ := rec.Get("right_props")
		method, _ := rec.Get("method")
		score, _ := rec.Get("score")
		pairs = append(pairs, model.EquivalencePair{
			Left:   vulnerabilityFromProps(asString(leftID), asMap(leftProps)),
			Right:  vulnerabilityFromProps(asString(rightID), asMap(rightProps)),
			Method: model.Method(asString(method)),
			Score:  asFloat(score),
		})
	}
	return pairs, nil
}

func (s *GraphStore) MergeUnified(ctx context.Context, u model.UnifiedVulnerability) (string, bool, error) {
	attrs := u.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	members := u.Members
	if members == nil {
		members = []string{}
	}
	params := map[string]interface{}{
		"key":                 u.Key,
		"name":                u.Name,
		"description":         stringOrNil(u.Description),
		"cvss_score":          floatOrNil(u.CVSSScore),
		"severity":            stringOrNil(u.Severity),
		"attack_vector":       stringOrNil(u.AttackVector),
		"privileges_required": stringOrNil(u.PrivilegesRequired),
		"user_interaction":    stringOrNil(u.UserInteraction),
		"vector_string":       stringOrNil(u.VectorString),
		"published":           stringOrNil(u.Published),
		"members":             members,
		"attributes":          attrs,
		"nonce":               s.NewNonce(),
		"now":                 s.Now().Format(time.RFC3339),
	}
	res, err := s.exec(ctx, "merge unified", driver.MergeUnifiedQuery, params)
	if err != nil {
		return "", false, err
	}
	if len(res.Records) == 0 {
		return "", false, wrapOp("merge unified", fmt.Errorf("no row returned for %q", u.Key))
	}
	id, _ := res.Records[0].Get("id")
	return asString(id), firstBool(res, "created"), nil
}

func (s *GraphStore) Relationships(ctx context.Context, nodeID string) ([]model.Relationship, error) {
	res, err := s.exec(ctx, "relationships", driver.RelationshipsQuery, map[string]interface{}{"id": nodeID})
	if err != nil {
		return nil, err
	}

	rels := make([]model.Relationship, 0, len(res.Records))
	for _, rec := range res.Records {
		id, _ := rec.Get("id")
		typ, _ := rec.Get("type")
		from, _ := rec.Get("from")
		to, _ := rec.Get("to")
		props, _ := rec.Get("props")
		rels = append(rels, model.Relationship{
			ID:    asString(id),
			Type:  asString(typ),
			From:  asString(from),
			To:    asString(to),
			Props: asMap(props),
		})
	}
	return rels, nil
}

func (s *GraphStore) MergeRewired(ctx context.Context, rel model.Relationship, originID string) (bool, error) {
	if !relTypePattern.MatchString(rel.Type) {
		return false, &OpError{Op: "merge rewired", Err: fmt.Errorf("invalid relationship type %q", rel.Type)}
	}
	query := fmt.Sprintf(driver.MergeRewiredQueryTemplate, "`"+rel.Type+"`")
	res, err := s.exec(ctx, "merge rewired", query, map[string]interface{}{
		"from":   rel.From,
		"to":     rel.To,
		"origin": originID,
		"props":  rewirableProps(rel.Props),
		"nonce":  s.NewNonce(),
	})
	if err != nil {
		return false, err
	}
	if len(res.Records) == 0 {
		return false, wrapOp("merge rewired", fmt.Errorf("endpoints of %s: %w", originID, ErrNotFound))
	}
	return firstBool(res, "created"), nil
}

func (s *GraphStore) PropagateImpacts(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, "propagate impacts", driver.PropagateImpactsQuery, nil)
	if err != nil {
		return 0, err
	}
	return firstInt(res, "touched"), nil
}

func (s *GraphStore) CrossRefRows(ctx context.Context) ([]model.CrossRefRow, error) {
	res, err := s.exec(ctx, "cross reference rows", driver.CrossRefRowsQuery, nil)
	if err != nil {
		return nil, err
	}

	rows := make([]model.CrossRefRow, 0, len(res.Records))
	for _, rec := range res.Records {
		kind, _ := rec.Get("kind")
		left, _ := rec.Get("left")
		right, _ := rec.Get("right")
		switch asString(kind) {
		case "pair":
			rows = append(rows, model.CrossRefRow{Kind: model.RowPair, Left: asString(left), Right: asString(right)})
		case "singleton":
			rows = append(rows, model.CrossRefRow{Kind: model.RowSingleton, Key: asString(left)})
		}
	}
	return rows, nil
}

func (s *GraphStore) EquivalenceCounts(ctx context.Context) (map[model.Method]int, error) {
	res, err := s.exec(ctx, "equivalence counts", driver.EquivalenceCountsQuery, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Method]int)
	for _, rec := range res.Records {
		method, _ := rec.Get("method")
		total, _ := rec.Get("total")
		counts[model.Method(asString(method))] += asInt(total)
	}
	return counts, nil
}

func (s *GraphStore) FusedTotal(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, "fused total", driver.FusedTotalQuery, nil)
	if err != nil {
		return 0, err
	}
	return firstInt(res, "total"), nil
}

func firstInt(res neo4j.EagerResult, key string) int {
	if len(res.Records) == 0 {
		return 0
	}
	v, _ := res.Records[0].Get(key)
	return asInt(v)
}

func firstBool(res neo4j.EagerResult, key string) bool {
	if len(res.Records) == 0 {
		return false
	}
	v, _ := res.Records[0].Get(key)
	b, _ := v.(bool)
	return b
}
