package core

import (
	"strconv"
	"time"
)

// QueryStatus is the lifecycle state of a query log entry.
type QueryStatus string

// Query statuses.
const (
	QueryQueued    QueryStatus = "queued"
	QueryRunning   QueryStatus = "running"
	QuerySucceeded QueryStatus = "succeeded"
	QueryFailed    QueryStatus = "failed"
	QueryCancelled QueryStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s QueryStatus) Terminal() bool {
	return s == QuerySucceeded || s == QueryFailed || s == QueryCancelled
}

// QueryLogEntry records one submitted statement. Entries are immutable once
// their status is terminal.
type QueryLogEntry struct {
	ID          int64       `json:"id" yaml:"id"`
	ProfileName string      `json:"profile" yaml:"profile"`
	Generation  uint64      `json:"generation" yaml:"generation"`
	SQL         string      `json:"sql" yaml:"sql"`
	Status      QueryStatus `json:"status" yaml:"status"`
	SubmittedAt time.Time   `json:"submitted_at" yaml:"submitted_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	RowCount    *int64      `json:"row_count,omitempty" yaml:"row_count,omitempty"`
	Message     string      `json:"message,omitempty" yaml:"message,omitempty"`
}

// Summary returns the row count or the truncated message.
func (e *QueryLogEntry) Summary() string {
	if e.RowCount != nil {
		if *e.RowCount == 1 {
			return "1 row"
		}
		return strconv.FormatInt(*e.RowCount, 10) + " rows"
	}
	return e.Message
}

// Duration returns the execution time of a finished entry.
func (e *QueryLogEntry) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// Clone returns a deep copy of the entry.
func (e *QueryLogEntry) Clone() *QueryLogEntry {
	c := *e
	if e.StartedAt != nil {
		t := *e.StartedAt
		c.StartedAt = &t
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		c.FinishedAt = &t
	}
	if e.RowCount != nil {
		n := *e.RowCount
		c.RowCount = &n
	}
	return &c
}
