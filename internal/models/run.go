package models

import (
	"database/sql"
	"time"
)

// RunStatus is the lifecycle state of a fetch run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusOK || s == RunStatusError
}

// RunStats are the counters written when a run completes.
type RunStats struct {
	ItemsTotal  int64
	ItemsFailed int64
	LinksAdded  int64
}

// Run represents a row in the 'fetch_runs' table
type Run struct {
	ID          int64          `db:"id"`
	StartedAt   time.Time      `db:"started_at"`
	FinishedAt  sql.NullTime   `db:"finished_at"`
	Status      RunStatus      `db:"status"`
	Note        sql.NullString `db:"note"`
	ItemsTotal  sql.NullInt64  `db:"items_total"`
	ItemsFailed sql.NullInt64  `db:"items_failed"`
	LinksAdded  sql.NullInt64  `db:"links_added"`
}
