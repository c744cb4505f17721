// Package searcher implements the hybrid full-text + attribute search layer
// over the store (spec §4.9): FTS union across assets_fts/asset_metadata_fts
// with per-asset best-rank dedup, attribute filters, scoped-by-root
// restriction, stable pagination, and per-asset hydration with an
// opportunistic geninfo self-heal.
//
// Grounded on the teacher's internal/plex/epg.go query-building style
// (hand-built SQL with COALESCE defaults over a LEFT JOIN, no ORM) and on
// internal/indexer/fetch's classify-then-degrade shape for validation
// errors (INVALID_INPUT/QUERY_TOO_LONG/... rather than a panic).
package searcher

import (
	"context"
	"regexp"
	"strings"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/writelock"
)

const (
	maxQueryLen   = 512
	maxTokens     = 16
	maxTokenLen   = 64
	maxIDBatch    = 1000
	maxPathsBatch = 1000
)

// Filters are the additional AND-clauses search/search_scoped accept (spec
// §4.9).
type Filters struct {
	Kind        string
	MinRating   int
	HasWorkflow *bool
}

// Page is the result of one search/search_scoped call.
type Page struct {
	Assets []store.AssetRow
	Limit  int
	Offset int
	Query  string
	Total  *int
}

// Searcher is the C9 service.
type Searcher struct {
	Store    *store.Store
	Metadata *metadata.Service
	Lock     *writelock.Lock // used only by the opportunistic self-heal write-back
}

func New(st *store.Store, md *metadata.Service) *Searcher {
	return &Searcher{Store: st, Metadata: md}
}

var nonTokenChar = regexp.MustCompile(`[^A-Za-z0-9_*]+`)

// sanitizeQuery implements spec §4.9's FTS input sanitization: every
// character other than an ASCII letter, digit, '_' or '*' becomes a space,
// whitespace collapses, and an empty result becomes "*" (browse-all).
func sanitizeQuery(q string) string {
	q = nonTokenChar.ReplaceAllString(q, " ")
	q = strings.TrimSpace(q)
	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return "*"
	}
	return q
}

// validate applies spec §4.9's length/token limits, returning the sanitized
// query and tokens, or an error.
func validate(raw string) (string, []string, error) {
	if len(raw) > maxQueryLen {
		return "", nil, apperr.New(apperr.CodeQueryTooLong, "query exceeds maximum length")
	}
	q := sanitizeQuery(raw)
	if q == "*" {
		return q, nil, nil
	}
	tokens := strings.Fields(q)
	if len(tokens) == 0 {
		return "", nil, apperr.New(apperr.CodeEmptyQuery, "query is empty after sanitization")
	}
	if len(tokens) > maxTokens {
		return "", nil, apperr.New(apperr.CodeQueryTooComplex, "too many query tokens")
	}
	for _, t := range tokens {
		if len(t) > maxTokenLen {
			return "", nil, apperr.New(apperr.CodeTokenTooLong, "query token too long")
		}
	}
	if isTooGeneral(tokens) {
		return "", nil, apperr.New(apperr.CodeQueryTooGeneral, "query is only wildcards")
	}
	return q, tokens, nil
}

// isTooGeneral reports whether every token is made up entirely of wildcard
// characters (e.g. "* **"), which FTS5 would otherwise treat as matching
// nearly everything (spec §4.9: "a query of only wildcards besides one
// token is rejected as too general").
func isTooGeneral(tokens []string) bool {
	for _, t := range tokens {
		if strings.Trim(t, "*") != "" {
			return false
		}
	}
	return true
}

// Search runs an unscoped query (spec §4.9).
func (s *Searcher) Search(ctx context.Context, query string, limit, offset int, filters Filters, includeTotal bool) (*Page, error) {
	return s.search(ctx, query, nil, limit, offset, filters, includeTotal)
}

// SearchScoped restricts filepath to equal one of roots or be a descendant
// of one (spec §4.9).
func (s *Searcher) SearchScoped(ctx context.Context, query string, roots []string, limit, offset int, filters Filters, includeTotal bool) (*Page, error) {
	return s.search(ctx, query, roots, limit, offset, filters, includeTotal)
}

// HasAssetsUnderRoot reports whether any indexed asset lives under root.
func (s *Searcher) HasAssetsUnderRoot(ctx context.Context, root string) (bool, error) {
	pattern := assetpaths.LikePrefixPattern(root)
	rows, err := s.Store.Query(ctx, `
		SELECT 1 FROM assets WHERE filepath = ? OR filepath LIKE ? ESCAPE '\' LIMIT 1`,
		root, pattern)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (s *Searcher) search(ctx context.Context, rawQuery string, roots []string, limit, offset int, filters Filters, includeTotal bool) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	q, tokens, err := validate(rawQuery)
	if err != nil {
		return nil, err
	}

	b := newQueryBuilder(q, tokens, roots, filters)

	rows, err := s.Store.Query(ctx, b.selectSQL(limit, offset), b.selectArgs(limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets, err := scanAssetRows(rows)
	if err != nil {
		return nil, err
	}

	page := &Page{Assets: assets, Limit: limit, Offset: offset, Query: rawQuery}
	if includeTotal {
		total, err := s.countTotal(ctx, b)
		if err != nil {
			return nil, err
		}
		page.Total = &total
	}
	return page, nil
}

func (s *Searcher) countTotal(ctx context.Context, b *queryBuilder) (int, error) {
	rows, err := s.Store.Query(ctx, b.countSQL(), b.countArgs()...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, nil
}
