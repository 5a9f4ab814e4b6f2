package models

import "time"

// DiscussionLink is an outbound link found on an item's detail page.
// (ItemID, URL) is unique in storage.
type DiscussionLink struct {
	ID        int64     `db:"id"`
	ItemID    int64     `db:"item_id"`
	URL       string    `db:"url"`
	Text      string    `db:"display_text"`
	CreatedAt time.Time `db:"created_at"`
}
