// Package search is the query-facing surface of the file index. It composes
// the boolean query engine with the index's fuzzy and exact matchers, caches
// results per index generation, records executed queries in a SQLite history
// store for prefix suggestions, and exposes the whole thing over HTTP.
//
// Boolean queries (AND/OR/NOT, grouping, quoted exact phrases) are evaluated
// against every entry and the survivors fuzzy-ranked; plain queries delegate
// straight to the index. Malformed boolean input never fails a search: it
// degrades to a literal-term lookup and the response carries the parse
// diagnostic so callers can surface it.
package search
