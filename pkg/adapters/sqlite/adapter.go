// Package sqlite provides a SQLite engine adapter on the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Adapter implements core.Adapter for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect opens the database file at cfg.Path, ":memory:" when empty.
// The pool is pinned to one connection so an in-memory database is not
// split across connections.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", buildDSN(path, cfg.Options))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	cfg.Path = path
	if cfg.Schema == "" {
		cfg.Schema = "main"
	}
	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildDSN appends the foreign_keys pragma plus any options as _pragma
// parameters understood by modernc.org/sqlite.
func buildDSN(path string, options map[string]string) string {
	pragmas := []string{"_pragma=foreign_keys(1)"}
	if v, ok := options["busy_timeout"]; ok {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%s)", v))
	}
	if v, ok := options["journal_mode"]; ok {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=journal_mode(%s)", v))
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}

var introspection = adapter.IntrospectionQueries{
	Columns: `
		SELECT m.name, p.name, p.type, CASE WHEN p."notnull" = 0 AND p.pk = 0 THEN 'YES' ELSE 'NO' END, p.cid + 1
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid
	`,
	PrimaryKeys: `
		SELECT m.name, p.name
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND p.pk > 0
	`,
	ForeignKeys: `
		SELECT m.name, f."from", f."table", COALESCE(f."to", '')
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, f.id, f.seq
	`,
}

// IntrospectSchema enumerates the tables of the main database.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*core.SchemaMetadata, error) {
	meta, err := a.IntrospectCommon(ctx, introspection)
	if err != nil {
		return nil, err
	}
	resolveImplicitTargets(meta)
	return meta, nil
}

// resolveImplicitTargets fills foreign keys declared without a column list
// ("REFERENCES users") with the referenced table's primary key.
func resolveImplicitTargets(meta *core.SchemaMetadata) {
	pk := make(map[string]string)
	for _, t := range meta.Tables {
		for _, c := range t.Columns {
			if c.PrimaryKey {
				pk[t.Name] = c.Name
				break
			}
		}
	}
	for i, fk := range meta.ForeignKeys {
		if fk.ToColumn == "" {
			meta.ForeignKeys[i].ToColumn = pk[fk.ToTable]
		}
	}
}

// Capabilities reports a single serialized connection.
func (a *Adapter) Capabilities() core.Capabilities {
	return core.Capabilities{ConcurrentStatements: false, MaxConcurrency: 1}
}

var _ core.Adapter = (*Adapter)(nil)
