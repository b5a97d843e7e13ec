package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

const entryColumns = `id, profile_name, generation, sql_text, status, submitted_at, started_at, finished_at, row_count, message`

// Only these rows may still change; terminal rows are immutable.
const openStatuses = `('queued', 'running')`

// AppendEntry inserts a new query log entry.
func (s *SQLiteStore) AppendEntry(ctx context.Context, e *core.QueryLogEntry) error {
	if s.db == nil {
		return errNotOpened
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProfileName, int64(e.Generation), e.SQL, string(e.Status), toNanos(e.SubmittedAt),
		nullNanos(e.StartedAt), nullNanos(e.FinishedAt), nullInt(e.RowCount), e.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append query log entry %d: %w", e.ID, err)
	}
	return nil
}

// UpdateEntry rewrites the mutable fields of a non-terminal entry.
func (s *SQLiteStore) UpdateEntry(ctx context.Context, e *core.QueryLogEntry) error {
	if s.db == nil {
		return errNotOpened
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE query_log
		 SET status = ?, started_at = ?, finished_at = ?, row_count = ?, message = ?
		 WHERE id = ? AND status IN `+openStatuses,
		string(e.Status), nullNanos(e.StartedAt), nullNanos(e.FinishedAt), nullInt(e.RowCount), e.Message, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update query log entry %d: %w", e.ID, err)
	}
	return nil
}

// ListEntries returns the newest limit entries ordered by id ascending.
// A non-positive limit returns everything.
func (s *SQLiteStore) ListEntries(ctx context.Context, limit int) ([]*core.QueryLogEntry, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM (
			SELECT `+entryColumns+` FROM query_log ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.QueryLogEntry
	for rows.Next() {
		var (
			e                           core.QueryLogEntry
			gen, submitted              int64
			status                      string
			started, finished, rowCount sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ProfileName, &gen, &e.SQL, &status, &submitted,
			&started, &finished, &rowCount, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan query log entry: %w", err)
		}
		e.Generation = uint64(gen)
		e.Status = core.QueryStatus(status)
		e.SubmittedAt = fromNanos(submitted)
		e.StartedAt = timePtr(started)
		e.FinishedAt = timePtr(finished)
		if rowCount.Valid {
			n := rowCount.Int64
			e.RowCount = &n
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// PruneEntries deletes terminal entries that fall outside the newest keep.
func (s *SQLiteStore) PruneEntries(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_log
		 WHERE status NOT IN `+openStatuses+`
		 AND id NOT IN (SELECT id FROM query_log ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune query log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CancelUnfinished finalizes leftovers of an earlier process.
func (s *SQLiteStore) CancelUnfinished(ctx context.Context, message string, at time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_log SET status = 'cancelled', finished_at = ?, message = ?
		 WHERE status IN `+openStatuses, toNanos(at), message)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel unfinished entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MaxEntryID returns the highest stored entry id.
func (s *SQLiteStore) MaxEntryID(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM query_log`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read max entry id: %w", err)
	}
	return id, nil
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
