// Package api exposes aggregate search over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"metasearch/packages/aggregator"
	"metasearch/packages/category"
	"metasearch/packages/definition"
	"metasearch/packages/domain"
	"metasearch/packages/metrics"
	"metasearch/packages/query"
)

type searchService interface {
	Search(ctx context.Context, q query.Query, ids []string) aggregator.Response
}

var _ searchService = (*aggregator.Aggregator)(nil)

type statusLister interface {
	List(ctx context.Context) ([]domain.Status, error)
}

type definitionLister interface {
	All() []*definition.Definition
}

type Handler struct {
	Search      searchService
	Statuses    statusLister
	Definitions definitionLister
}

type ctxKey struct{}

// RequestID returns the id assigned to the inbound request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/search", h.search).Methods(http.MethodGet)
	v1.HandleFunc("/indexers", h.indexers).Methods(http.MethodGet)
	v1.HandleFunc("/indexers/{id}", h.indexer).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		slog.Debug("Handled request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type queryEcho struct {
	Term       string        `json:"term"`
	Season     *int          `json:"season,omitempty"`
	Episode    string        `json:"episode,omitempty"`
	IMDBID     string        `json:"imdbId,omitempty"`
	TVDBID     string        `json:"tvdbId,omitempty"`
	Categories []category.ID `json:"categories,omitempty"`
}

type searchResponse struct {
	RequestID string                   `json:"requestId"`
	Query     queryEcho                `json:"query"`
	Results   []domain.Release         `json:"results"`
	Statuses  map[string]domain.Status `json:"statuses"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := query.SearchRequest{
		Text:       strings.TrimSpace(params.Get("q")),
		Episode:    strings.TrimSpace(params.Get("ep")),
		IMDBID:     params.Get("imdbid"),
		TVDBID:     params.Get("tvdbid"),
		Categories: category.ParseList(strings.Join(params["cat"], ",")),
	}
	if raw := strings.TrimSpace(params.Get("season")); raw != "" {
		season, err := strconv.Atoi(raw)
		if err != nil || season < 0 {
			writeError(w, http.StatusBadRequest, "season must be a non-negative number")
			return
		}
		req.Season = &season
	}

	q := query.FromRequest(req)
	if strings.TrimSpace(q.Term) == "" && !q.IsIDSearch() && !q.HasSeason && !q.HasEpisode() {
		writeError(w, http.StatusBadRequest, "q or an external id is required")
		return
	}

	var ids []string
	for _, raw := range params["indexers"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	res := h.Search.Search(r.Context(), q, ids)
	out := searchResponse{
		RequestID: RequestID(r.Context()),
		Query: queryEcho{
			Term:       q.Term,
			Episode:    q.Episode,
			IMDBID:     q.IMDBID,
			TVDBID:     q.TVDBID,
			Categories: q.Categories,
		},
		Results:  res.Releases,
		Statuses: res.Statuses,
	}
	if q.HasSeason {
		season := q.Season
		out.Query.Season = &season
	}
	if out.Results == nil {
		out.Results = []domain.Release{}
	}
	writeJSON(w, http.StatusOK, out)
}

type indexerInfo struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	Language     string                  `json:"language,omitempty"`
	Type         string                  `json:"type,omitempty"`
	Public       bool                    `json:"public"`
	Capabilities definition.Capabilities `json:"capabilities"`
	Categories   []category.ID           `json:"categories"`
	LastStatus   *domain.Status          `json:"lastStatus,omitempty"`
}

func (h *Handler) indexers(w http.ResponseWriter, r *http.Request) {
	last := h.lastStatuses(r.Context())
	defs := h.Definitions.All()
	out := make([]indexerInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, describe(def, last))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) indexer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, def := range h.Definitions.All() {
		if def.ID == id {
			writeJSON(w, http.StatusOK, describe(def, h.lastStatuses(r.Context())))
			return
		}
	}
	writeError(w, http.StatusNotFound, "indexer not found")
}

func (h *Handler) lastStatuses(ctx context.Context) map[string]domain.Status {
	out := make(map[string]domain.Status)
	if h.Statuses == nil {
		return out
	}
	list, err := h.Statuses.List(ctx)
	if err != nil {
		slog.Warn("Could not read indexer statuses", "error", err)
		return out
	}
	for _, st := range list {
		out[st.Indexer] = st
	}
	return out
}

func describe(def *definition.Definition, last map[string]domain.Status) indexerInfo {
	info := indexerInfo{
		ID:           def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Language:     def.Language,
		Type:         def.Type,
		Public:       def.IsPublic(),
		Capabilities: def.Capabilities,
	}
	var ids []category.ID
	for _, c := range def.Categories {
		ids = append(ids, c.IDs...)
	}
	info.Categories = category.Normalize(ids)
	if st, ok := last[def.ID]; ok {
		info.LastStatus = &st
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
