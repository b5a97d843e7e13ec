// Package duckdb provides a DuckDB engine adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

const defaultSchema = "main"

// Adapter implements core.Adapter for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" or an empty path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	var params Params
	if err := adapter.ParseParams(cfg, &params); err != nil {
		return fmt.Errorf("invalid duckdb params: %w", err)
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", cfg.Path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, stmt := range setupStatements(params) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	a.DB = db
	a.Cfg = cfg
	return nil
}

// setupStatements returns the statements applying params, settings sorted by name.
func setupStatements(p Params) []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, fmt.Sprintf("LOAD %s", quoteIdent(ext)))
	}
	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET GLOBAL %s = '%s'", quoteIdent(k), strings.ReplaceAll(p.Settings[k], "'", "''")))
	}
	return stmts
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var introspection = adapter.IntrospectionQueries{
	Columns: `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.ordinal_position
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = ? AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`,
	PrimaryKeys: `
		SELECT table_name, unnest(constraint_column_names)
		FROM duckdb_constraints()
		WHERE schema_name = ? AND constraint_type = 'PRIMARY KEY'
	`,
	ForeignKeys: `
		SELECT table_name, unnest(constraint_column_names), referenced_table, unnest(referenced_column_names)
		FROM duckdb_constraints()
		WHERE schema_name = ? AND constraint_type = 'FOREIGN KEY'
	`,
}

// IntrospectSchema enumerates the tables of the configured schema.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*core.SchemaMetadata, error) {
	return a.IntrospectCommon(ctx, introspection, a.Cfg.Schema)
}

// Capabilities reports that pooled DuckDB connections can run statements in parallel.
func (a *Adapter) Capabilities() core.Capabilities {
	return core.Capabilities{ConcurrentStatements: true, MaxConcurrency: 4}
}

var _ core.Adapter = (*Adapter)(nil)
