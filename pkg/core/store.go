package core

import (
	"context"
	"time"
)

// ProfileStore is the durable substrate for profiles.
type ProfileStore interface {
	// InsertProfile fails with ErrDuplicateProfile when the name exists.
	InsertProfile(ctx context.Context, p *DatabaseProfile) error
	// ReplaceProfile fails with ErrNotFound when the name is absent.
	ReplaceProfile(ctx context.Context, p *DatabaseProfile) error
	// DeleteProfile fails with ErrNotFound when the name is absent.
	DeleteProfile(ctx context.Context, name string) error
	GetProfile(ctx context.Context, name string) (*DatabaseProfile, error)
	// ListProfiles returns profiles in insertion order.
	ListProfiles(ctx context.Context) ([]*DatabaseProfile, error)
}

// QueryLogStore persists the bounded query history.
type QueryLogStore interface {
	AppendEntry(ctx context.Context, e *QueryLogEntry) error
	// UpdateEntry rewrites a non-terminal entry; terminal rows are left untouched.
	UpdateEntry(ctx context.Context, e *QueryLogEntry) error
	// ListEntries returns the newest limit entries ordered by id ascending.
	ListEntries(ctx context.Context, limit int) ([]*QueryLogEntry, error)
	// PruneEntries evicts the oldest terminal entries beyond keep.
	PruneEntries(ctx context.Context, keep int) (int64, error)
	// CancelUnfinished finalizes every queued or running entry as cancelled.
	CancelUnfinished(ctx context.Context, message string, at time.Time) (int64, error)
	// MaxEntryID returns the highest stored id, 0 when empty.
	MaxEntryID(ctx context.Context) (int64, error)
}
