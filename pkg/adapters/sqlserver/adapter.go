// Package sqlserver provides a Microsoft SQL Server engine adapter.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver driver

	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

const defaultSchema = "dbo"

// Adapter implements core.Adapter for SQL Server.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQL Server adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to SQL Server.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	dsn := buildSQLServerDSN(cfg)

	a.Logger.Debug("connecting to sqlserver", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlserver: %w", err)
	}

	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildSQLServerDSN constructs a sqlserver:// URL. Options become query
// parameters (e.g. encrypt, TrustServerCertificate).
func buildSQLServerDSN(cfg core.AdapterConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     host + ":" + strconv.Itoa(port),
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

var introspection = adapter.IntrospectionQueries{
	Columns: `
		SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE, c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
			ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION
	`,
	PrimaryKeys: `
		SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		WHERE tc.TABLE_SCHEMA = @p1 AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
	`,
	ForeignKeys: `
		SELECT
			OBJECT_NAME(fk.parent_object_id),
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fk.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id)
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		WHERE OBJECT_SCHEMA_NAME(fk.parent_object_id) = @p1
		ORDER BY fk.name, fkc.constraint_column_id
	`,
}

// IntrospectSchema enumerates the tables of the configured schema.
func (a *Adapter) IntrospectSchema(ctx context.Context) (*core.SchemaMetadata, error) {
	return a.IntrospectCommon(ctx, introspection, a.Cfg.Schema)
}

// Capabilities reports pooled, parallel statement execution.
func (a *Adapter) Capabilities() core.Capabilities {
	return core.Capabilities{ConcurrentStatements: true, MaxConcurrency: 4}
}

var _ core.Adapter = (*Adapter)(nil)
