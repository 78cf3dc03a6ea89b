package driver

var SchemaQueries = []string{
	"CREATE INDEX cve_name_source IF NOT EXISTS FOR (c:CVE) ON (c.name, c.source)",
	"CREATE CONSTRAINT cve_unified_key IF NOT EXISTS FOR (u:CVE_UNIFIED) REQUIRE u.key IS UNIQUE",
	"CREATE CONSTRAINT same_as_pair_key IF NOT EXISTS FOR ()-[r:SAME_AS]-() REQUIRE r.pair_key IS UNIQUE",
}

const (
	TagScannerProvenanceQuery = `
		MATCH (c:CVE)<-[:DETECTS]-(:Plugin)<-[:HAS_PLUGIN]-(:Host)
		WHERE c.source IS NULL OR c.source <> 'NVD'
		WITH DISTINCT c
		WHERE c.source IS NULL OR c.source <> 'NESSUS'
		SET c.source = 'NESSUS'
		RETURN count(c) AS corrected
	`

	FetchBySourceQuery = `
		MATCH (c:CVE {source: $source})
		RETURN elementId(c) AS id, properties(c) AS props
		ORDER BY c.name, elementId(c)
	`

	HasEquivalenceQuery = `
		MATCH (c:CVE {name: $name, source: $source})-[:SAME_AS]-(:CVE)
		RETURN count(*) > 0 AS linked
	`

	EquivalenceExistsQuery = `
		MATCH (a:CVE {name: $left})-[:SAME_AS]-(b:CVE {name: $right})
		RETURN count(*) > 0 AS linked
	`

	// The pair key is unique per unordered pair, so concurrent writers
	// converge on a single edge. Only the creating call sees its own nonce.
	MergeEquivalenceQuery = `
		MATCH (a:CVE {name: $left, source: $left_source})
		WITH a LIMIT 1
		MATCH (b:CVE {name: $right, source: $right_source})
		WITH a, b LIMIT 1
		MERGE (a)-[r:SAME_AS {pair_key: $pair_key}]-(b)
		ON CREATE SET r.method = $method,
			r.score = $score,
			r.run_id = $run_id,
			r.nonce = $nonce,
			r.created_at = $created_at
		RETURN r.nonce = $nonce AS created
	`

	EquivalencePairsQuery = `
		MATCH (c1:CVE)-[r:SAME_AS]-(c2:CVE)
		WHERE elementId(c1) < elementId(c2)
		RETURN elementId(c1) AS left_id, properties(c1) AS left_props,
			elementId(c2) AS right_id, properties(c2) AS right_props,
			r.method AS method, r.score AS score
		ORDER BY c1.name, c2.name
	`

	MergeUnifiedQuery = `
		MERGE (u:CVE_UNIFIED {key: $key})
		ON CREATE SET u.created_at = $now, u.nonce = $nonce
		SET u += $attributes
		SET u.name = $name,
			u.description = $description,
			u.cvss_score = $cvss_score,
			u.severity = $severity,
			u.attackVector = $attack_vector,
			u.privilegesRequired = $privileges_required,
			u.userInteraction = $user_interaction,
			u.vectorString = $vector_string,
			u.published = $published,
			u.members = $members,
			u.updated_at = $now
		RETURN elementId(u) AS id, u.nonce = $nonce AS created
	`

	RelationshipsQuery = `
		MATCH (c) WHERE elementId(c) = $id
		MATCH (c)-[r]-()
		WHERE type(r) <> 'SAME_AS'
		RETURN DISTINCT elementId(r) AS id, type(r) AS type,
			elementId(startNode(r)) AS from, elementId(endNode(r)) AS to,
			properties(r) AS props
	`

	// Relationship types cannot be parameters; %s is a validated identifier.
	MergeRewiredQueryTemplate = `
		MATCH (a) WHERE elementId(a) = $from
		MATCH (b) WHERE elementId(b) = $to
		MERGE (a)-[r:%s {rewired_from: $origin}]->(b)
		ON CREATE SET r += $props, r.nonce = $nonce
		RETURN r.nonce = $nonce AS created
	`

	PropagateImpactsQuery = `
		MATCH (h:Host)-[:HAS_PLUGIN]->(:Plugin)-[:DETECTS]->(c:CVE)-[:SAME_AS]-(c2:CVE)<-[:IMPACTS]-(s:Service)
		MERGE (h)-[r:IMPACTS]->(s)
		ON CREATE SET r.inferred = true, r.weight = c2.cvss_score
		ON MATCH SET r.weight = coalesce(r.weight, 0) + coalesce(c2.cvss_score, 0)
		RETURN count(r) AS touched
	`

	CrossRefRowsQuery = `
		MATCH (c1:CVE)-[:SAME_AS]-(c2:CVE)
		WHERE c1.source = 'NVD' AND c2.source = 'NESSUS'
		RETURN DISTINCT 'pair' AS kind, c1.name AS left, c2.name AS right
		UNION
		MATCH (u:CVE_UNIFIED)
		RETURN 'singleton' AS kind, u.name AS left, null AS right
	`

	EquivalenceCountsQuery = `
		MATCH ()-[r:SAME_AS]->()
		RETURN r.method AS method, count(r) AS total
	`

	FusedTotalQuery = `
		MATCH (c:CVE)-[:SAME_AS]-(n:CVE)
		WHERE c.source = 'NVD' AND n.source = 'NESSUS'
		RETURN count(DISTINCT c) AS total
	`
)
