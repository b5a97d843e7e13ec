package core

import (
	"sort"
	"time"
)

// Column represents a column in a database table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Position   int
}

// TableMetadata holds metadata about a database table.
type TableMetadata struct {
	Schema  string
	Name    string
	Columns []Column
}

// ForeignKey is one column pair of a foreign-key constraint.
type ForeignKey struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// SchemaMetadata is the raw introspection output of an adapter.
type SchemaMetadata struct {
	Schema      string
	Tables      []TableMetadata
	ForeignKeys []ForeignKey
}

// KeyRole describes how a column participates in keys.
type KeyRole string

// Key roles.
const (
	KeyNone           KeyRole = ""
	KeyPrimary        KeyRole = "PK"
	KeyForeign        KeyRole = "FK"
	KeyPrimaryForeign KeyRole = "PK,FK"
)

// GraphColumn is a column as shown in the schema graph.
type GraphColumn struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable" yaml:"nullable"`
	Key      KeyRole `json:"key,omitempty" yaml:"key,omitempty"`
}

// TableNode is a table and its ordered columns.
type TableNode struct {
	Name    string        `json:"name" yaml:"name"`
	Columns []GraphColumn `json:"columns" yaml:"columns"`
}

// Column returns the named column.
func (t *TableNode) Column(name string) (GraphColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return GraphColumn{}, false
}

// ColumnRef addresses table.column.
type ColumnRef struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
}

func (r ColumnRef) String() string { return r.Table + "." + r.Column }

// GraphEdge is a foreign-key relation.
type GraphEdge struct {
	From ColumnRef `json:"from" yaml:"from"`
	To   ColumnRef `json:"to" yaml:"to"`
}

// SchemaGraph is the entity-relationship graph of a session. It is valid only
// while Generation equals the live session's generation.
type SchemaGraph struct {
	Generation  uint64                `json:"generation" yaml:"generation"`
	ProfileName string                `json:"profile" yaml:"profile"`
	BuiltAt     time.Time             `json:"built_at" yaml:"built_at"`
	Nodes       map[string]*TableNode `json:"nodes" yaml:"nodes"`
	Edges       []GraphEdge           `json:"edges" yaml:"edges"`
}

// TableNames returns node names in sorted order.
func (g *SchemaGraph) TableNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EdgesFrom returns the edges whose source is table.
func (g *SchemaGraph) EdgesFrom(table string) []GraphEdge {
	var out []GraphEdge
	for _, e := range g.Edges {
		if e.From.Table == table {
			out = append(out, e)
		}
	}
	return out
}
