package database

import (
	"context"
	"database/sql"
	"fmt"

	"reddot-watch/hncrawler/internal/models"
)

// UpsertItem inserts the listing or overwrites every mutable field of the
// row sharing its id. fetched_at is refreshed on each call, created_at is
// kept from the first insert.
func (db *DB) UpsertItem(ctx context.Context, listing models.Listing) error {
	now := db.now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (id, title, url, author, score, comment_count, created_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			author = excluded.author,
			score = excluded.score,
			comment_count = excluded.comment_count,
			fetched_at = excluded.fetched_at`,
		listing.ID, listing.Title, listing.URL, listing.Author,
		listing.Score, listing.CommentCount, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert item %d: %w", listing.ID, err)
	}
	return nil
}

// InsertLinksIfAbsent stores links under itemID, leaving rows that already
// exist for the same (item_id, url) untouched. It returns how many rows were
// new.
func (db *DB) InsertLinksIfAbsent(ctx context.Context, itemID int64, links []models.DiscussionLink) (int64, error) {
	if len(links) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("links writer: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO discussion_links (item_id, url, display_text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id, url) DO NOTHING;`)
	if err != nil {
		return 0, fmt.Errorf("links writer: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := db.now()
	var inserted int64
	for _, link := range links {
		res, err := stmt.ExecContext(ctx, itemID, link.URL, link.Text, now)
		if err != nil {
			return 0, fmt.Errorf("links writer: failed to insert %s for item %d: %w", link.URL, itemID, err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("links writer: failed get rows affected for %s: %w", link.URL, err)
		}
		inserted += rowsAffected
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("links writer: failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// BeginRun appends a run row in the running state and returns its id.
func (db *DB) BeginRun(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx,
		"INSERT INTO fetch_runs (started_at, status) VALUES (?, ?)",
		db.now(), models.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin run: read id: %w", err)
	}
	return id, nil
}

// CompleteRun closes the run created by BeginRun. The note is only stored
// for error runs.
func (db *DB) CompleteRun(ctx context.Context, runID int64, status models.RunStatus, note string, stats models.RunStats) error {
	if !status.Terminal() {
		return fmt.Errorf("complete run %d: status %q is not terminal", runID, status)
	}

	var noteVal sql.NullString
	if status == models.RunStatusError {
		noteVal = sql.NullString{String: note, Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		UPDATE fetch_runs
		SET finished_at = ?, status = ?, note = ?, items_total = ?, items_failed = ?, links_added = ?
		WHERE id = ?`,
		db.now(), status, noteVal, stats.ItemsTotal, stats.ItemsFailed, stats.LinksAdded, runID)
	if err != nil {
		return fmt.Errorf("complete run %d: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete run %d: %w", runID, sql.ErrNoRows)
	}
	return nil
}
