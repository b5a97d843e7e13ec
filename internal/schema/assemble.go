package schema

import (
	"cmp"
	"slices"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Assemble turns raw introspection output into a graph. It rejects metadata
// that would leave a dangling edge or an unnamed node.
func Assemble(meta *core.SchemaMetadata) (*core.SchemaGraph, error) {
	if meta == nil {
		return nil, malformed("engine returned no metadata")
	}

	fkCols := make(map[core.ColumnRef]bool, len(meta.ForeignKeys))
	for _, fk := range meta.ForeignKeys {
		fkCols[core.ColumnRef{Table: fk.FromTable, Column: fk.FromColumn}] = true
	}

	g := &core.SchemaGraph{Nodes: make(map[string]*core.TableNode, len(meta.Tables))}
	for _, t := range meta.Tables {
		if t.Name == "" {
			return nil, malformed("table without a name")
		}
		if _, dup := g.Nodes[t.Name]; dup {
			return nil, malformed("table %q reported twice", t.Name)
		}

		cols := slices.Clone(t.Columns)
		slices.SortStableFunc(cols, func(a, b core.Column) int { return cmp.Compare(a.Position, b.Position) })

		node := &core.TableNode{Name: t.Name, Columns: make([]core.GraphColumn, 0, len(cols))}
		seen := make(map[string]bool, len(cols))
		for _, c := range cols {
			if c.Name == "" {
				return nil, malformed("table %q has a column without a name", t.Name)
			}
			if seen[c.Name] {
				return nil, malformed("column %s.%s reported twice", t.Name, c.Name)
			}
			seen[c.Name] = true
			node.Columns = append(node.Columns, core.GraphColumn{
				Name:     c.Name,
				Type:     c.Type,
				Nullable: c.Nullable,
				Key:      keyRole(c.PrimaryKey, fkCols[core.ColumnRef{Table: t.Name, Column: c.Name}]),
			})
		}
		g.Nodes[t.Name] = node
	}

	seen := make(map[core.GraphEdge]bool, len(meta.ForeignKeys))
	for _, fk := range meta.ForeignKeys {
		e := core.GraphEdge{
			From: core.ColumnRef{Table: fk.FromTable, Column: fk.FromColumn},
			To:   core.ColumnRef{Table: fk.ToTable, Column: fk.ToColumn},
		}
		if err := resolve(g, e.From, "foreign key from"); err != nil {
			return nil, err
		}
		if err := resolve(g, e.To, "foreign key "+e.From.String()+" references"); err != nil {
			return nil, err
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.Edges = append(g.Edges, e)
	}
	slices.SortFunc(g.Edges, func(a, b core.GraphEdge) int {
		return cmp.Or(
			cmp.Compare(a.From.Table, b.From.Table),
			cmp.Compare(a.From.Column, b.From.Column),
			cmp.Compare(a.To.Table, b.To.Table),
			cmp.Compare(a.To.Column, b.To.Column),
		)
	})
	return g, nil
}

func resolve(g *core.SchemaGraph, ref core.ColumnRef, what string) error {
	node, ok := g.Nodes[ref.Table]
	if !ok {
		return malformed("%s unknown table %q", what, ref.Table)
	}
	if _, ok := node.Column(ref.Column); !ok {
		return malformed("%s unknown column %s", what, ref)
	}
	return nil
}

func keyRole(pk, fk bool) core.KeyRole {
	switch {
	case pk && fk:
		return core.KeyPrimaryForeign
	case pk:
		return core.KeyPrimary
	case fk:
		return core.KeyForeign
	}
	return core.KeyNone
}

func malformed(format string, args ...any) error {
	return core.NewError(core.KindSchemaIntrospection, "", format, args...)
}
