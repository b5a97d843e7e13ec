package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// ErrNotConnected is returned when an operation needs an open connection.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Execute and introspection implementations.
//
// DB is set by Connect before the adapter is shared. Afterwards Close may run
// concurrently with statements, so methods read it through conn.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger

	mu sync.RWMutex
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	b.mu.Lock()
	db := b.DB
	b.DB = nil
	b.mu.Unlock()
	if db == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing database connection", slog.String("type", b.Cfg.Type))
	}
	return db.Close()
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	db, _ := b.conn()
	return db != nil
}

// conn returns the open connection. Calls already holding it get the
// database's closed error once Close has run.
func (b *BaseSQLAdapter) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.DB == nil {
		return nil, ErrNotConnected
	}
	return b.DB, nil
}

// Execute runs sqlStr and returns a bounded result. Statements that produce
// rows are counted in full but only the first maxRows are retained.
func (b *BaseSQLAdapter) Execute(ctx context.Context, sqlStr string, maxRows int) (*core.Result, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	if !core.ReturnsRows(sqlStr) {
		res, err := db.ExecContext(ctx, sqlStr)
		if err != nil {
			return nil, fmt.Errorf("failed to execute SQL: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = 0
		}
		return &core.Result{RowCount: n}, nil
	}

	rows, err := db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanResult(rows, maxRows)
}

// ScanResult drains rows into a Result holding at most maxRows rows.
// A non-positive maxRows retains nothing.
func ScanResult(rows *sql.Rows, maxRows int) (*core.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	out := &core.Result{Columns: cols}
	for rows.Next() {
		out.RowCount++
		if len(out.Rows) >= maxRows {
			out.Truncated = true
			continue
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if bs, ok := v.([]byte); ok {
				vals[i] = string(bs)
			}
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// IntrospectionQueries are the three catalog queries an adapter supplies.
//
// Columns must yield (table, column, data_type, is_nullable, ordinal_position)
// where is_nullable is "YES" or "NO". PrimaryKeys yields (table, column).
// ForeignKeys yields (from_table, from_column, to_table, to_column).
type IntrospectionQueries struct {
	Columns     string
	PrimaryKeys string
	ForeignKeys string
}

// IntrospectCommon runs the catalog queries in order and assembles the raw
// metadata. Each query receives args.
func (b *BaseSQLAdapter) IntrospectCommon(ctx context.Context, q IntrospectionQueries, args ...any) (*core.SchemaMetadata, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	meta := &core.SchemaMetadata{Schema: b.Cfg.Schema}
	index := make(map[string]int)

	rows, err := db.QueryContext(ctx, q.Columns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	err = scanEach(rows, func() error {
		var (
			table, nullable string
			col             core.Column
		)
		if err := rows.Scan(&table, &col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		i, ok := index[table]
		if !ok {
			i = len(meta.Tables)
			index[table] = i
			meta.Tables = append(meta.Tables, core.TableMetadata{Schema: meta.Schema, Name: table})
		}
		meta.Tables[i].Columns = append(meta.Tables[i].Columns, col)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if q.PrimaryKeys != "" {
		rows, err := db.QueryContext(ctx, q.PrimaryKeys, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query primary keys: %w", err)
		}
		err = scanEach(rows, func() error {
			var table, column string
			if err := rows.Scan(&table, &column); err != nil {
				return fmt.Errorf("failed to scan primary key: %w", err)
			}
			if i, ok := index[table]; ok {
				for c := range meta.Tables[i].Columns {
					if meta.Tables[i].Columns[c].Name == column {
						meta.Tables[i].Columns[c].PrimaryKey = true
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if q.ForeignKeys != "" {
		rows, err := db.QueryContext(ctx, q.ForeignKeys, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query foreign keys: %w", err)
		}
		err = scanEach(rows, func() error {
			var fk core.ForeignKey
			if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
				return fmt.Errorf("failed to scan foreign key: %w", err)
			}
			meta.ForeignKeys = append(meta.ForeignKeys, fk)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return meta, nil
}

func scanEach(rows *sql.Rows, fn func() error) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating metadata: %w", err)
	}
	return nil
}
