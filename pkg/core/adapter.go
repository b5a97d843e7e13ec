package core

import "context"

// Adapter defines the interface that all engine adapters must implement.
// A connected Adapter is the engine handle of a session.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection and releases resources.
	Close() error

	// Execute runs a single SQL text against the connection. At most maxRows
	// rows are retained in the result; RowCount always reflects the full count.
	// Cancelling ctx aborts the statement.
	Execute(ctx context.Context, sql string, maxRows int) (*Result, error)

	// IntrospectSchema enumerates tables, columns and foreign keys.
	IntrospectSchema(ctx context.Context) (*SchemaMetadata, error)

	// Capabilities reports what the engine supports.
	Capabilities() Capabilities
}

// AdapterConfig holds configuration for connecting to a database.
// It is decoded from a profile's credentials blob.
type AdapterConfig struct {
	Type     string            `json:"type" mapstructure:"type"`
	Path     string            `json:"path,omitempty" mapstructure:"path"`
	Host     string            `json:"host,omitempty" mapstructure:"host"`
	Port     int               `json:"port,omitempty" mapstructure:"port"`
	Database string            `json:"database,omitempty" mapstructure:"database"`
	Username string            `json:"username,omitempty" mapstructure:"username"`
	Password string            `json:"password,omitempty" mapstructure:"password"`
	Schema   string            `json:"schema,omitempty" mapstructure:"schema"`
	Options  map[string]string `json:"options,omitempty" mapstructure:"options"`
	Params   map[string]any    `json:"params,omitempty" mapstructure:",remain"`
}

// Capabilities describes engine-level execution guarantees.
type Capabilities struct {
	// ConcurrentStatements is true when the engine can run several statements
	// against one connection at the same time.
	ConcurrentStatements bool

	// MaxConcurrency bounds parallel statements when ConcurrentStatements is set.
	MaxConcurrency int
}

// Parallelism returns how many statements may run at once.
func (c Capabilities) Parallelism() int {
	if !c.ConcurrentStatements || c.MaxConcurrency < 1 {
		return 1
	}
	return c.MaxConcurrency
}

// Result is the bounded outcome of a statement.
type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int64
	Truncated bool
}
