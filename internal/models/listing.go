package models

import (
	"database/sql"
	"time"
)

// Listing is one entry parsed from the front page. Optional fields use the
// sql.Null* types so "not present" stays distinct from a zero value.
type Listing struct {
	ID           int64
	Title        string
	URL          sql.NullString
	Author       sql.NullString
	Score        sql.NullInt64
	CommentCount sql.NullInt64
}

// Item represents a row in the 'items' table
type Item struct {
	ID           int64          `db:"id"`
	Title        string         `db:"title"`
	URL          sql.NullString `db:"url"`
	Author       sql.NullString `db:"author"`
	Score        sql.NullInt64  `db:"score"`
	CommentCount sql.NullInt64  `db:"comment_count"`
	CreatedAt    time.Time      `db:"created_at"`
	FetchedAt    time.Time      `db:"fetched_at"`
}

