package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sahilm/fuzzy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/scout/pkg/async"
	"github.com/platinummonkey/scout/pkg/index"
	"github.com/platinummonkey/scout/pkg/observability"
	"github.com/platinummonkey/scout/pkg/query"
)

var searchTracer = otel.Tracer("scout/search/service")

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 30 * time.Second
)

// Options selects the search mode and result cap for a request
type Options struct {
	// Exact forces substring matching instead of fuzzy ranking
	Exact bool
	// Limit caps the result count; <=0 uses the service default
	Limit int
}

// Response is the answer to one search request
type Response struct {
	Results []index.Result `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
	// Mode is "fuzzy", "exact", or "logical"
	Mode string `json:"mode"`
	// ParseError carries the diagnostic when a malformed boolean query
	// degraded to a literal-term search
	ParseError string `json:"parseError,omitempty"`
	Cached     bool   `json:"cached"`
}

// Service answers search requests by composing the boolean query engine with
// the index's fuzzy and exact matchers. Results are cached per index
// generation so repeated queries against an unchanged index are free.
type Service struct {
	index   *index.Service
	history *History
	log     *observability.Logger
	metrics *observability.Metrics

	defaultLimit int
	cache        *expirable.LRU[string, []index.Result]
}

// ServiceConfig tunes the search service. Zero values use defaults.
type ServiceConfig struct {
	DefaultLimit int
	CacheSize    int
	CacheTTL     time.Duration
}

// NewService creates a search service over idx. history may be nil to disable
// query recording.
func NewService(idx *index.Service, history *History, cfg ServiceConfig, log *observability.Logger) *Service {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = index.DefaultSearchLimit
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Service{
		index:        idx,
		history:      history,
		log:          log.WithField("component", "search"),
		defaultLimit: cfg.DefaultLimit,
		cache:        expirable.NewLRU[string, []index.Result](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// SetMetrics attaches Prometheus metrics. Optional; nil disables reporting.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Search answers a query. Boolean queries (AND/OR/NOT, grouping, quoted
// phrases) are evaluated per entry and the survivors fuzzy-ranked; plain
// queries go straight to the index's fuzzy or exact matcher. A malformed
// boolean query is never an error: it degrades to a literal-term search and
// the response carries the parse diagnostic.
func (s *Service) Search(ctx context.Context, raw string, opts Options) *Response {
	start := time.Now()
	ctx, span := searchTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("query", raw),
			attribute.Int("limit", opts.Limit),
			attribute.Bool("exact", opts.Exact),
		),
	)
	defer span.End()

	resp := &Response{Query: raw, Mode: "fuzzy"}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		resp.Results = []index.Result{}
		return resp
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	parsed := query.Parse(trimmed)
	if parsed.Err != nil {
		resp.ParseError = parsed.Err.Error()
	}
	switch {
	case parsed.IsLogicalQuery:
		resp.Mode = "logical"
	case opts.Exact || termIsExact(parsed.AST):
		resp.Mode = "exact"
	}

	span.SetAttributes(
		attribute.String("mode", resp.Mode),
		attribute.Int("term_count", len(parsed.Terms)),
	)

	key := s.cacheKey(trimmed, resp.Mode, limit)
	if cached, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.SearchCacheHitsTotal.Inc()
		}
		resp.Results = cached
		resp.Total = len(cached)
		resp.Cached = true
		s.observe(resp.Mode, len(cached), time.Since(start))
		s.recordHistory(trimmed, len(cached), time.Since(start))
		return resp
	}
	if s.metrics != nil {
		s.metrics.SearchCacheMissesTotal.Inc()
	}

	var results []index.Result
	if parsed.IsLogicalQuery {
		results = s.searchLogical(parsed, limit)
	} else {
		results = s.index.Search(parsed.Terms[0], index.SearchOptions{
			Exact: resp.Mode == "exact",
			Fuzzy: resp.Mode == "fuzzy",
			Limit: limit,
		})
	}
	if results == nil {
		results = []index.Result{}
	}

	s.cache.Add(key, results)
	resp.Results = results
	resp.Total = len(results)
	span.SetAttributes(attribute.Int("result_count", len(results)))
	s.observe(resp.Mode, len(results), time.Since(start))
	s.recordHistory(trimmed, len(results), time.Since(start))
	return resp
}

// searchLogical filters the entry set through the boolean AST, then ranks the
// survivors by fuzzy similarity to the query's literal terms. Survivors the
// fuzzy matcher scores zero keep their relative-path order after the ranked
// block.
func (s *Service) searchLogical(parsed *query.ParseResult, limit int) []index.Result {
	var matched []index.Entry
	for _, e := range s.index.Entries() {
		if query.Evaluate(parsed.AST, e, matchEntry) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	needle := strings.Join(parsed.Terms, " ")
	hits := fuzzy.FindFrom(needle, relPathSource(matched))

	ranked := make([]index.Result, 0, len(matched))
	seen := make(map[int]bool, len(hits))
	for _, m := range hits {
		seen[m.Index] = true
		ranked = append(ranked, index.Result{
			Entry:   matched[m.Index],
			Score:   -float64(m.Score),
			Matches: m.MatchedIndexes,
		})
	}
	for i, e := range matched {
		if !seen[i] {
			ranked = append(ranked, index.Result{Entry: e})
		}
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// matchEntry is the term predicate handed to the query evaluator. Exact terms
// must equal the name, relative path, or extension; plain terms match by
// case-normalized substring.
func matchEntry(term string, e index.Entry, exact bool) bool {
	needle := strings.ToLower(term)
	name := strings.ToLower(e.Name)
	rel := strings.ToLower(e.RelPath)
	ext := strings.TrimPrefix(e.Extension, ".")

	if exact {
		return name == needle || rel == needle || ext == strings.TrimPrefix(needle, ".")
	}
	return strings.Contains(name, needle) ||
		strings.Contains(rel, needle) ||
		strings.Contains(ext, strings.TrimPrefix(needle, "."))
}

// relPathSource adapts a matched entry slice to the fuzzy matcher
type relPathSource []index.Entry

func (s relPathSource) String(i int) string { return s[i].RelPath }
func (s relPathSource) Len() int            { return len(s) }

func termIsExact(n *query.Node) bool {
	return n != nil && n.Kind == query.NodeTerm && n.Exact
}

// cacheKey folds the index generation into the key so a mutation makes every
// prior entry unreachable without an explicit purge
func (s *Service) cacheKey(q, mode string, limit int) string {
	return fmt.Sprintf("%d|%s|%d|%s", s.index.Generation(), mode, limit, q)
}

func (s *Service) observe(mode string, results int, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchRequestsTotal.WithLabelValues(mode).Inc()
	s.metrics.SearchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	s.metrics.SearchResults.Observe(float64(results))
}

// recordHistory writes the query to the history store off the request path
func (s *Service) recordHistory(q string, results int, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	async.SafeGo(context.Background(), 5*time.Second, "search history write", func(ctx context.Context) error {
		if err := s.history.Record(ctx, q, results, elapsed); err != nil {
			s.log.WithError(err).Warn("search history write failed")
		}
		return nil
	})
}

// Stats returns the index's aggregate counters
func (s *Service) Stats() index.Stats {
	return s.index.Stats()
}

// Refresh purges the result cache, re-derives the index's counters (repairing
// any drift), and forces a snapshot flush. Callers that also want the tree
// re-scanned trigger that through the watcher.
func (s *Service) Refresh(ctx context.Context) (index.Stats, error) {
	_, span := searchTracer.Start(ctx, "Refresh")
	defer span.End()

	s.cache.Purge()
	stats, consistent := s.index.VerifyStats()
	span.SetAttributes(attribute.Bool("stats_consistent", consistent))
	if err := s.index.Flush(); err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("flush snapshot: %w", err)
	}
	return stats, nil
}
