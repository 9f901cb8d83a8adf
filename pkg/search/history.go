package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/scout/pkg/observability"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS search_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_search_history_query ON search_history(query);
CREATE INDEX IF NOT EXISTS idx_search_history_created ON search_history(created_at);
`

// History persists executed queries in SQLite and answers prefix suggestions
// aggregated from them. All methods are safe for concurrent use; sql.DB does
// the pooling.
type History struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// DefaultHistoryPath returns the history database location for a content root
func DefaultHistoryPath(root string) string {
	return filepath.Join(root, ".index-cache", "history.db")
}

// OpenHistory opens (creating if needed) the history database at path
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &History{db: db}, nil
}

// NewHistory wraps an already-open database, applying the schema. Used by
// tests and callers that manage the connection themselves.
func NewHistory(db *sql.DB) (*History, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &History{db: db}, nil
}

// SetMetrics attaches Prometheus metrics. Optional; nil disables reporting.
func (h *History) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// DB exposes the underlying handle for health checks
func (h *History) DB() *sql.DB {
	return h.db
}

// Record stores one executed query
func (h *History) Record(ctx context.Context, query string, resultCount int, elapsed time.Duration) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO search_history (query, result_count, duration_ms, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, query, resultCount, elapsed.Milliseconds())

	if h.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		h.metrics.HistoryWritesTotal.WithLabelValues(status).Inc()
	}
	return err
}

// Suggestions returns past queries starting with prefix, most-searched first,
// ties broken by recency. limit is clamped to [5, 20].
func (h *History) Suggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT query
		FROM search_history
		WHERE query LIKE ?
		GROUP BY query
		ORDER BY COUNT(*) DESC, MAX(created_at) DESC
		LIMIT ?
	`, prefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, q)
	}
	return suggestions, rows.Err()
}

// HistoryEntry is one recorded search
type HistoryEntry struct {
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	DurationMS  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Recent returns the most recent searches, newest first
func (h *History) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT query, result_count, duration_ms, created_at
		FROM search_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Query, &e.ResultCount, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle
func (h *History) Close() error {
	return h.db.Close()
}
