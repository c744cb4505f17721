package searcher

import (
	"strings"

	"github.com/snapetech/mjrindex/internal/assetpaths"
)

// queryBuilder assembles the FTS-union-or-browse-all SELECT plus its
// attribute/scope WHERE clauses, shared between the row query and the
// COUNT(*) query so the two can never drift out of sync.
type queryBuilder struct {
	query      string // sanitized; "*" means browse-all
	browseAll  bool
	roots      []string
	filters    Filters
}

func newQueryBuilder(query string, tokens []string, roots []string, filters Filters) *queryBuilder {
	return &queryBuilder{
		query:     query,
		browseAll: query == "*" && len(tokens) == 0,
		roots:     roots,
		filters:   filters,
	}
}

// scopeClause returns the SQL fragment restricting filepath to roots (OR'd
// together), and its bind args, or ("", nil) for an unscoped search.
func (b *queryBuilder) scopeClause() (string, []any) {
	if len(b.roots) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(b.roots))
	args := make([]any, 0, len(b.roots)*2)
	for _, r := range b.roots {
		parts = append(parts, `(a.filepath = ? OR a.filepath LIKE ? ESCAPE '\')`)
		args = append(args, r, assetpaths.LikePrefixPattern(r))
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// filterClause returns the attribute-filter SQL fragment and args.
func (b *queryBuilder) filterClause() (string, []any) {
	var parts []string
	var args []any
	if b.filters.Kind != "" {
		parts = append(parts, "a.kind = ?")
		args = append(args, b.filters.Kind)
	}
	if b.filters.MinRating > 0 {
		parts = append(parts, "COALESCE(am.rating, 0) >= ?")
		args = append(args, b.filters.MinRating)
	}
	if b.filters.HasWorkflow != nil {
		v := 0
		if *b.filters.HasWorkflow {
			v = 1
		}
		parts = append(parts, "COALESCE(am.has_workflow, 0) = ?")
		args = append(args, v)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, " AND "), args
}

const assetColumns = `a.id, a.filepath, a.filename, a.subfolder, a.source, a.root_id, a.kind, a.ext,
	a.size, a.mtime, a.width, a.height, a.duration, a.content_hash, a.phash, a.hash_state,
	a.created_at, a.updated_at, a.indexed_at,
	COALESCE(am.rating, 0), COALESCE(am.tags, '[]'), COALESCE(am.has_workflow, 0),
	COALESCE(am.has_generation_data, 0), COALESCE(am.metadata_quality, 'none'), COALESCE(am.metadata_raw, '{}')`

// selectSQL/selectArgs build the page query. Browse-all skips the FTS join
// entirely and orders by recency; a real query unions the two FTS tables,
// takes the best (smallest) rank per asset, and orders by that rank with a
// stable id tie-break (spec §4.9, §5 "pagination is stable").
func (b *queryBuilder) selectSQL(limit, offset int) string {
	scopeSQL, _ := b.scopeClause()
	filterSQL, _ := b.filterClause()
	where := combineWhere(scopeSQL, filterSQL)

	if b.browseAll {
		return `SELECT ` + assetColumns + `
			FROM assets a
			LEFT JOIN asset_metadata am ON am.asset_id = a.id
			` + where + `
			ORDER BY a.mtime DESC, a.id ASC
			LIMIT ? OFFSET ?`
	}

	return `WITH matches AS (
			SELECT a2.id AS asset_id, bm25(assets_fts) AS rank
			FROM assets_fts JOIN assets a2 ON a2.id = assets_fts.rowid
			WHERE assets_fts MATCH ?
			UNION ALL
			SELECT am2.asset_id, bm25(asset_metadata_fts) + ` + bm25Bias + `
			FROM asset_metadata_fts JOIN asset_metadata am2 ON am2.asset_id = asset_metadata_fts.rowid
			WHERE asset_metadata_fts MATCH ?
		), best AS (
			SELECT asset_id, MIN(rank) AS rank FROM matches GROUP BY asset_id
		)
		SELECT ` + assetColumns + `
		FROM best
		JOIN assets a ON a.id = best.asset_id
		LEFT JOIN asset_metadata am ON am.asset_id = a.id
		` + where + `
		ORDER BY best.rank ASC, a.id ASC
		LIMIT ? OFFSET ?`
}

const bm25Bias = "8.0"

func (b *queryBuilder) selectArgs(limit, offset int) []any {
	var args []any
	if !b.browseAll {
		args = append(args, b.query, b.query)
	}
	_, scopeArgs := b.scopeClause()
	_, filterArgs := b.filterClause()
	args = append(args, scopeArgs...)
	args = append(args, filterArgs...)
	args = append(args, limit, offset)
	return args
}

func (b *queryBuilder) countSQL() string {
	scopeSQL, _ := b.scopeClause()
	filterSQL, _ := b.filterClause()
	where := combineWhere(scopeSQL, filterSQL)

	if b.browseAll {
		return `SELECT COUNT(*) FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id ` + where
	}
	return `WITH matches AS (
			SELECT a2.id AS asset_id FROM assets_fts JOIN assets a2 ON a2.id = assets_fts.rowid WHERE assets_fts MATCH ?
			UNION
			SELECT am2.asset_id FROM asset_metadata_fts JOIN asset_metadata am2 ON am2.asset_id = asset_metadata_fts.rowid WHERE asset_metadata_fts MATCH ?
		)
		SELECT COUNT(*)
		FROM matches
		JOIN assets a ON a.id = matches.asset_id
		LEFT JOIN asset_metadata am ON am.asset_id = a.id
		` + where
}

func (b *queryBuilder) countArgs() []any {
	var args []any
	if !b.browseAll {
		args = append(args, b.query, b.query)
	}
	_, scopeArgs := b.scopeClause()
	_, filterArgs := b.filterClause()
	args = append(args, scopeArgs...)
	args = append(args, filterArgs...)
	return args
}

func combineWhere(clauses ...string) string {
	var parts []string
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(parts, " AND ")
}
