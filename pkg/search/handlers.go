package search

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/scout/pkg/httputil"
	"github.com/platinummonkey/scout/pkg/index"
)

// PendingReporter exposes the indexer's unapplied-change count for the stats
// endpoint
type PendingReporter interface {
	PendingCount() int
}

// Handlers provides the HTTP surface of the search service
type Handlers struct {
	svc     *Service
	history *History
	pending PendingReporter
}

// NewHandlers creates search handlers. history and pending may be nil; the
// corresponding endpoints degrade gracefully.
func NewHandlers(svc *Service, history *History, pending PendingReporter) *Handlers {
	return &Handlers{svc: svc, history: history, pending: pending}
}

// RegisterRoutes registers the search API under /api
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/search", h.search).Methods("GET")
	router.HandleFunc("/api/stats", h.stats).Methods("GET")
	router.HandleFunc("/api/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/api/suggest", h.suggest).Methods("GET")
	router.HandleFunc("/api/history", h.recent).Methods("GET")
}

// search handles GET /api/search?q=...&exact=&limit=
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	q := httputil.ParseQueryString(r, "q", "")
	if !httputil.RequireNonEmpty(w, q, "q") {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	exact, err := httputil.ParseQueryBool(r, "exact", false)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	resp := h.svc.Search(r.Context(), q, Options{Exact: exact, Limit: limit})
	httputil.WriteJSONOrError(w, http.StatusOK, resp, "encode search response")
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	index.Stats
	EntryCount     int `json:"entryCount"`
	PendingChanges int `json:"pendingChanges"`
}

// stats handles GET /api/stats
func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Stats:      h.svc.Stats(),
		EntryCount: h.svc.index.EntryCount(),
	}
	if h.pending != nil {
		resp.PendingChanges = h.pending.PendingCount()
	}
	httputil.WriteJSONOrError(w, http.StatusOK, resp, "encode stats response")
}

// refresh handles POST /api/refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Refresh(r.Context()); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// suggest handles GET /api/suggest?prefix=&limit=
func (h *Handlers) suggest(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteJSONOrError(w, http.StatusOK, []string{}, "encode suggestions")
		return
	}
	prefix := httputil.ParseQueryString(r, "prefix", "")
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	suggestions, err := h.history.Suggestions(r.Context(), prefix, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	httputil.WriteJSONOrError(w, http.StatusOK, suggestions, "encode suggestions")
}

// recent handles GET /api/history?limit=
func (h *Handlers) recent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteJSONOrError(w, http.StatusOK, []HistoryEntry{}, "encode history")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httputil.WriteJSONOrError(w, http.StatusOK, entries, "encode history")
}
