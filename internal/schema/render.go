package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Format selects a graph rendering.
type Format string

// Formats.
const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMermaid Format = "mermaid"
)

// ParseFormat accepts a format name, defaulting to table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML, FormatMermaid:
		return f, nil
	}
	return "", fmt.Errorf("unknown schema format %q (want table, json, yaml or mermaid)", s)
}

// Render writes g to w in the given format.
func Render(w io.Writer, g *core.SchemaGraph, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	case FormatMermaid:
		_, err := io.WriteString(w, Mermaid(g))
		return err
	default:
		return renderTable(w, g)
	}
}

func renderTable(w io.Writer, g *core.SchemaGraph) error {
	if len(g.Nodes) == 0 {
		_, _ = fmt.Fprintln(w, "(no tables)")
		return nil
	}

	refs := make(map[core.ColumnRef][]string)
	for _, e := range g.Edges {
		refs[e.From] = append(refs[e.From], e.To.String())
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Column", "Type", "Nullable", "Key", "References"})
	for _, name := range g.TableNames() {
		for i, c := range g.Nodes[name].Columns {
			label := ""
			if i == 0 {
				label = name
			}
			nullable := "NO"
			if c.Nullable {
				nullable = "YES"
			}
			ref := strings.Join(refs[core.ColumnRef{Table: name, Column: c.Name}], ", ")
			t.AppendRow(table.Row{label, c.Name, c.Type, nullable, string(c.Key), ref})
		}
		t.AppendSeparator()
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%s, %s)\n", count(len(g.Nodes), "table"), count(len(g.Edges), "relation"))
	return nil
}

func count(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Mermaid renders g as a mermaid erDiagram. Each foreign key becomes a
// one-to-many relation from the referenced table, labelled with the column.
func Mermaid(g *core.SchemaGraph) string {
	var sb strings.Builder
	sb.WriteString("erDiagram\n")

	for _, name := range g.TableNames() {
		fmt.Fprintf(&sb, "    %s {\n", mermaidIdent(name))
		for _, c := range g.Nodes[name].Columns {
			typ := mermaidIdent(c.Type)
			if typ == "" {
				typ = "unknown"
			}
			fmt.Fprintf(&sb, "        %s %s", typ, mermaidIdent(c.Name))
			if c.Key != core.KeyNone {
				sb.WriteString(" " + string(c.Key))
			}
			if c.Nullable {
				sb.WriteString(` "nullable"`)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("    }\n")
	}

	if len(g.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&sb, "    %s ||--o{ %s : %q\n",
			mermaidIdent(e.To.Table), mermaidIdent(e.From.Table), e.From.Column)
	}
	return sb.String()
}

// mermaidIdent maps s onto the characters mermaid accepts in entity and
// attribute names.
func mermaidIdent(s string) string {
	s = strings.TrimSpace(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
