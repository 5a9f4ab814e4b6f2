package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"reddot-watch/hncrawler/internal/models"
	"reddot-watch/hncrawler/internal/server/pagination"
	"reddot-watch/hncrawler/internal/server/storage"
)

const defaultLimit = 30
const maxLimit = 500
const defaultRunsLimit = 20

// ItemResponse is the JSON form of a stored item.
type ItemResponse struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	URL          *string        `json:"url,omitempty"`
	Author       *string        `json:"author,omitempty"`
	Score        *int64         `json:"score,omitempty"`
	CommentCount *int64         `json:"comment_count,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	FetchedAt    time.Time      `json:"fetched_at"`
	Links        []LinkResponse `json:"links,omitempty"`
}

// LinkResponse is the JSON form of a discussion link.
type LinkResponse struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// RunResponse is the JSON form of a fetch run.
type RunResponse struct {
	ID          int64      `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"`
	Note        *string    `json:"note,omitempty"`
	ItemsTotal  *int64     `json:"items_total,omitempty"`
	ItemsFailed *int64     `json:"items_failed,omitempty"`
	LinksAdded  *int64     `json:"links_added,omitempty"`
}

// ItemsPage is the response of the item listing endpoint.
type ItemsPage struct {
	Items      []ItemResponse `json:"items"`
	NextCursor *string        `json:"next_cursor,omitempty"`
}

// Handler serves the read-only crawl data endpoints.
type Handler struct {
	repo storage.Repository
}

// NewHandler creates a new handler instance.
func NewHandler(repo storage.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/items", h.GetItems)
	mux.HandleFunc("GET /v1/items/{id}", h.GetItem)
	mux.HandleFunc("GET /v1/runs", h.GetRuns)
	mux.HandleFunc("GET /health", h.Health)
}

// GetItems lists items, most recently fetched first, with cursor pagination.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	query := r.URL.Query()

	limit, err := parseLimit(query.Get("limit"), defaultLimit)
	if err != nil {
		log.Warn().Err(err).Str("limit", query.Get("limit")).Msg("Invalid 'limit' parameter value")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var after *pagination.Cursor
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		cursor, err := pagination.Decode(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		after = &cursor
	}

	items, err := h.repo.FetchItems(r.Context(), limit+1, after) // Fetch one extra
	if err != nil {
		log.Error().Err(err).Msg("Error fetching items from repository")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	page := ItemsPage{Items: make([]ItemResponse, 0, min(len(items), limit))}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next := pagination.Cursor{FetchedAt: last.FetchedAt, ID: last.ID}.Encode()
		page.NextCursor = &next
	}
	for _, item := range items {
		page.Items = append(page.Items, toItemResponse(item))
	}

	writeJSON(w, r, http.StatusOK, page)
}

// GetItem returns one item with its stored links.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid item id", http.StatusBadRequest)
		return
	}

	item, err := h.repo.GetItem(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("Error fetching item")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	links, err := h.repo.FetchLinks(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("Error fetching item links")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := toItemResponse(item)
	for _, link := range links {
		resp.Links = append(resp.Links, LinkResponse{URL: link.URL, Text: link.Text})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// GetRuns returns the most recent fetch runs.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRunsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.repo.FetchRuns(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching runs")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Health reports 200 when the database answers a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Health check failed")
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func parseLimit(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter: must be between 1 and %d", maxLimit)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
		return
	}
	log.Debug().Int("bytes_written", len(jsonBytes)).Msg("Response completed")
}

func toItemResponse(item models.Item) ItemResponse {
	resp := ItemResponse{
		ID:        item.ID,
		Title:     item.Title,
		CreatedAt: item.CreatedAt.UTC(),
		FetchedAt: item.FetchedAt.UTC(),
	}
	if item.URL.Valid {
		resp.URL = &item.URL.String
	}
	if item.Author.Valid {
		resp.Author = &item.Author.String
	}
	if item.Score.Valid {
		resp.Score = &item.Score.Int64
	}
	if item.CommentCount.Valid {
		resp.CommentCount = &item.CommentCount.Int64
	}
	return resp
}

func toRunResponse(run models.Run) RunResponse {
	resp := RunResponse{
		ID:        run.ID,
		StartedAt: run.StartedAt.UTC(),
		Status:    string(run.Status),
	}
	if run.FinishedAt.Valid {
		finished := run.FinishedAt.Time.UTC()
		resp.FinishedAt = &finished
	}
	if run.Note.Valid {
		resp.Note = &run.Note.String
	}
	if run.ItemsTotal.Valid {
		resp.ItemsTotal = &run.ItemsTotal.Int64
	}
	if run.ItemsFailed.Valid {
		resp.ItemsFailed = &run.ItemsFailed.Int64
	}
	if run.LinksAdded.Valid {
		resp.LinksAdded = &run.LinksAdded.Int64
	}
	return resp
}
