package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddot-watch/hncrawler/internal/models"
	"reddot-watch/hncrawler/internal/server/pagination"
	"reddot-watch/hncrawler/internal/server/storage"
)

type fakeRepo struct {
	items    []models.Item
	links    map[int64][]models.DiscussionLink
	runs     []models.Run
	err      error
	pingErr  error
	gotLimit int
	gotAfter *pagination.Cursor
}

func (f *fakeRepo) FetchItems(_ context.Context, limit int, after *pagination.Cursor) ([]models.Item, error) {
	f.gotLimit, f.gotAfter = limit, after
	if f.err != nil {
		return nil, f.err
	}
	return f.items[:min(limit, len(f.items))], nil
}

func (f *fakeRepo) GetItem(_ context.Context, id int64) (models.Item, error) {
	if f.err != nil {
		return models.Item{}, f.err
	}
	for _, item := range f.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Item{}, storage.ErrNotFound
}

func (f *fakeRepo) FetchLinks(_ context.Context, itemID int64) ([]models.DiscussionLink, error) {
	return f.links[itemID], nil
}

func (f *fakeRepo) FetchRuns(_ context.Context, limit int) ([]models.Run, error) {
	f.gotLimit = limit
	return f.runs, f.err
}

func (f *fakeRepo) Ping(context.Context) error {
	return f.pingErr
}

var fetchedAt = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

func sampleItems(n int) []models.Item {
	items := make([]models.Item, 0, n)
	for i := n; i >= 1; i-- {
		items = append(items, models.Item{
			ID:        int64(i),
			Title:     "story",
			URL:       sql.NullString{String: "https://example.com/", Valid: i%2 == 0},
			Score:     sql.NullInt64{Int64: int64(i * 10), Valid: true},
			CreatedAt: fetchedAt,
			FetchedAt: fetchedAt.Add(time.Duration(i) * time.Minute),
		})
	}
	return items
}

func serve(t *testing.T, repo storage.Repository, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(repo).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetItemsPaginates(t *testing.T) {
	repo := &fakeRepo{items: sampleItems(5)}

	rec := serve(t, repo, "/v1/items?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, repo.gotLimit, "one extra row probes for a next page")

	var page ItemsPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.Items[0].ID)
	assert.Nil(t, page.Items[0].URL, "odd ids are text posts")
	require.NotNil(t, page.Items[1].URL)
	require.NotNil(t, page.NextCursor)

	cursor, err := pagination.Decode(*page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cursor.ID)
	assert.True(t, cursor.FetchedAt.Equal(fetchedAt.Add(4*time.Minute)))

	rec = serve(t, repo, "/v1/items?limit=2&cursor="+*page.NextCursor)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.gotAfter)
	assert.Equal(t, int64(4), repo.gotAfter.ID)
}

func TestGetItemsLastPage(t *testing.T) {
	rec := serve(t, &fakeRepo{items: sampleItems(2)}, "/v1/items")
	require.Equal(t, http.StatusOK, rec.Code)

	var page ItemsPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 2)
	assert.Nil(t, page.NextCursor)
}

func TestGetItemsBadRequests(t *testing.T) {
	for _, target := range []string{
		"/v1/items?limit=0",
		"/v1/items?limit=501",
		"/v1/items?limit=ten",
		"/v1/items?cursor=not-a-cursor",
	} {
		rec := serve(t, &fakeRepo{}, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetItemsRepositoryError(t *testing.T) {
	rec := serve(t, &fakeRepo{err: errors.New("disk I/O error")}, "/v1/items")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetItem(t *testing.T) {
	repo := &fakeRepo{
		items: sampleItems(3),
		links: map[int64][]models.DiscussionLink{
			2: {{ItemID: 2, URL: "https://a.test/", Text: "a"}},
		},
	}

	rec := serve(t, repo, "/v1/items/2")
	require.Equal(t, http.StatusOK, rec.Code)

	var item ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, int64(2), item.ID)
	require.NotNil(t, item.Score)
	assert.Equal(t, int64(20), *item.Score)
	assert.Nil(t, item.Author)
	assert.Equal(t, []LinkResponse{{URL: "https://a.test/", Text: "a"}}, item.Links)

	assert.Equal(t, http.StatusNotFound, serve(t, repo, "/v1/items/99").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, repo, "/v1/items/abc").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, repo, "/v1/items/-1").Code)
}

func TestGetRuns(t *testing.T) {
	repo := &fakeRepo{runs: []models.Run{
		{ID: 2, StartedAt: fetchedAt, Status: models.RunStatusRunning},
		{
			ID:         1,
			StartedAt:  fetchedAt.Add(-time.Hour),
			FinishedAt: sql.NullTime{Time: fetchedAt.Add(-time.Hour + time.Minute), Valid: true},
			Status:     models.RunStatusError,
			Note:       sql.NullString{String: "front page: timeout", Valid: true},
		},
	}}

	rec := serve(t, repo, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunsLimit, repo.gotLimit)

	var runs []RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "running", runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, "error", runs[1].Status)
	require.NotNil(t, runs[1].Note)
	assert.Equal(t, "front page: timeout", *runs[1].Note)
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(t, &fakeRepo{}, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, &fakeRepo{pingErr: errors.New("closed")}, "/health").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(&fakeRepo{}).Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/items", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
