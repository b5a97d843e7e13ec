package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Result formats accepted by --format.
var resultFormats = []string{"table", "json", "yaml", "csv", "md"}

func renderResult(w io.Writer, res *core.Result, format string) error {
	switch format {
	case "json":
		return renderJSON(w, rowMaps(res))
	case "yaml":
		return renderYAML(w, rowMaps(res))
	case "csv":
		return renderCSV(w, res)
	case "md", "markdown":
		return renderMarkdown(w, res)
	default:
		return renderTable(w, res)
	}
}

// rowMaps turns the retained rows into column-keyed maps.
func rowMaps(res *core.Result) []map[string]any {
	out := make([]map[string]any, 0, len(res.Rows))
	for _, r := range res.Rows {
		row := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			if i < len(r) {
				row[col] = r[i]
			}
		}
		out = append(out, row)
	}
	return out
}

func renderTable(w io.Writer, res *core.Result) error {
	if len(res.Columns) == 0 {
		_, _ = fmt.Fprintf(w, "(%s affected)\n", plural(res.RowCount, "row"))
		return nil
	}
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	// Header
	headerRow := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	// Rows
	for _, r := range res.Rows {
		row := make(table.Row, len(res.Columns))
		for i := range res.Columns {
			if i < len(r) {
				row[i] = formatValue(r[i])
			}
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintln(w, footer(res))
	return nil
}

func footer(res *core.Result) string {
	if res.Truncated || int64(len(res.Rows)) < res.RowCount {
		return fmt.Sprintf("(showing first %d of %s)", len(res.Rows), plural(res.RowCount, "row"))
	}
	return fmt.Sprintf("(%s)", plural(res.RowCount, "row"))
}

func plural(n int64, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func renderCSV(w io.Writer, res *core.Result) error {
	// Header
	_, _ = fmt.Fprintln(w, strings.Join(res.Columns, ","))

	// Rows
	for _, r := range res.Rows {
		values := make([]string, len(r))
		for i, v := range r {
			values[i] = escapeCSV(formatValue(v))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func renderMarkdown(w io.Writer, res *core.Result) error {
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	// Header
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(res.Columns, " | "))
	// Separator
	seps := make([]string, len(res.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	// Rows
	for _, r := range res.Rows {
		values := make([]string, len(r))
		for i, v := range r {
			values[i] = strings.ReplaceAll(formatValue(v), "|", `\|`)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	}
	return fmt.Sprintf("%v", v)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
