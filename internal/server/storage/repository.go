package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reddot-watch/hncrawler/internal/database"
	"reddot-watch/hncrawler/internal/models"
	"reddot-watch/hncrawler/internal/server/pagination"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the read operations served by the API.
type Repository interface {
	FetchItems(ctx context.Context, limit int, after *pagination.Cursor) ([]models.Item, error)
	GetItem(ctx context.Context, id int64) (models.Item, error)
	FetchLinks(ctx context.Context, itemID int64) ([]models.DiscussionLink, error)
	FetchRuns(ctx context.Context, limit int) ([]models.Run, error)
	Ping(ctx context.Context) error
}

// sqlxRepository implements Repository using sqlx.
type sqlxRepository struct {
	db *database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) Repository {
	return &sqlxRepository{db: db}
}

// FetchItems returns items most recently fetched first. When after is set,
// only rows strictly past that cursor are returned.
func (r *sqlxRepository) FetchItems(ctx context.Context, limit int, after *pagination.Cursor) ([]models.Item, error) {
	const baseQuery = `SELECT id, title, url, author, score, comment_count, created_at, fetched_at FROM items `
	const orderBy = ` ORDER BY fetched_at DESC, id DESC LIMIT ?`

	query := baseQuery + orderBy
	args := []any{limit}
	if after != nil {
		query = baseQuery + `WHERE (fetched_at < ?) OR (fetched_at = ? AND id < ?)` + orderBy
		args = []any{after.FetchedAt.UTC(), after.FetchedAt.UTC(), after.ID, limit}
	}

	items := []models.Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return items, nil
}

// GetItem loads a single item by id.
func (r *sqlxRepository) GetItem(ctx context.Context, id int64) (models.Item, error) {
	var item models.Item
	err := r.db.GetContext(ctx, &item,
		`SELECT id, title, url, author, score, comment_count, created_at, fetched_at FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("database query failed: %w", err)
	}
	return item, nil
}

// FetchLinks returns the links stored for an item in insertion order.
func (r *sqlxRepository) FetchLinks(ctx context.Context, itemID int64) ([]models.DiscussionLink, error) {
	links := []models.DiscussionLink{}
	err := r.db.SelectContext(ctx, &links,
		`SELECT id, item_id, url, display_text, created_at FROM discussion_links WHERE item_id = ? ORDER BY id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return links, nil
}

// FetchRuns returns the latest runs, newest first.
func (r *sqlxRepository) FetchRuns(ctx context.Context, limit int) ([]models.Run, error) {
	runs := []models.Run{}
	err := r.db.SelectContext(ctx, &runs, `
		SELECT id, started_at, finished_at, status, note, items_total, items_failed, links_added
		FROM fetch_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return runs, nil
}

// Ping checks that the database is reachable.
func (r *sqlxRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
