package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = ","
const timeFormat = time.RFC3339Nano

// Cursor marks the last row of a page in (fetched_at, id) order.
type Cursor struct {
	FetchedAt time.Time
	ID        int64
}

// Encode returns the opaque, URL-safe form of the cursor.
func (c Cursor) Encode() string {
	key := c.FetchedAt.UTC().Format(timeFormat) + cursorSeparator + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Decode parses a cursor produced by Encode.
func Decode(encoded string) (Cursor, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, idStr, found := strings.Cut(string(decoded), cursorSeparator)
	if !found {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}

	fetchedAt, err := time.Parse(timeFormat, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid id in cursor: %w", err)
	}

	return Cursor{FetchedAt: fetchedAt.UTC(), ID: id}, nil
}
