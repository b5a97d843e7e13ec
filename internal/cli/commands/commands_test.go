package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/cli/testutil"
	"github.com/A-SunsetMkt-Forks/pg/internal/config"
	logtest "github.com/A-SunsetMkt-Forks/pg/internal/testutil"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// env is a command environment over a temporary state file.
type env struct {
	t   *testing.T
	dir string
	cfg *config.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.FromContext(context.Background())
	cfg.StatePath = filepath.Join(dir, "state.db")
	cfg.BackoffBase = time.Millisecond
	cfg.MaxRetries = 0
	return &env{t: t, dir: dir, cfg: cfg}
}

// run executes cmd with args and returns the captured renderer.
func (e *env) run(cmd *cobra.Command, mode output.Mode, args ...string) (*testutil.TestRenderer, error) {
	e.t.Helper()
	tr := testutil.NewTestRenderer(mode, mode == output.ModeTable)
	ctx := config.WithConfig(context.Background(), e.cfg)
	ctx = config.WithLogger(ctx, logtest.NewTestLogger(e.t))
	ctx = output.WithRenderer(ctx, tr.Renderer)

	cmd.SetArgs(args)
	cmd.SetOut(tr.Out)
	cmd.SetErr(tr.ErrOut)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return tr, cmd.ExecuteContext(ctx)
}

func (e *env) createDemo() {
	e.t.Helper()
	_, err := e.run(NewProfileCommand(), output.ModeTable,
		"create", "demo", "--type", "sqlite", "--path", filepath.Join(e.dir, "demo.db"), "-d", "scratch")
	require.NoError(e.t, err)
	e.cfg.Profile = "demo"
}

func (e *env) query(mode output.Mode, args ...string) (*testutil.TestRenderer, error) {
	e.t.Helper()
	return e.run(NewQueryCommand(), mode, args...)
}

func TestProfileCommands(t *testing.T) {
	e := newEnv(t)
	e.createDemo()

	tr, err := e.run(NewProfileCommand(), output.ModeJSON, "list")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0]["name"])
	assert.Equal(t, "sqlite", list[0]["type"])
	assert.Equal(t, false, list[0]["active"])

	_, err = e.run(NewProfileCommand(), output.ModeTable, "create", "demo", "--type", "sqlite")
	require.Error(t, err)
	assert.Equal(t, core.KindDuplicateProfile, core.KindOf(err))

	_, err = e.run(NewProfileCommand(), output.ModeTable, "create", "bad", "--type", "oracle")
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidProfile, core.KindOf(err))

	_, err = e.run(NewProfileCommand(), output.ModeTable,
		"create", "wh", "--type", "postgres", "--host", "db.internal", "--username", "ro", "--password", "s3cret")
	require.NoError(t, err)

	tr, err = e.run(NewProfileCommand(), output.ModeTable, "show", "wh")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "db.internal")
	assert.NotContains(t, tr.Output(), "s3cret")
	assert.Contains(t, tr.Output(), "********")

	_, err = e.run(NewProfileCommand(), output.ModeTable, "edit", "wh", "--port", "6543", "-d", "warehouse")
	require.NoError(t, err)
	tr, err = e.run(NewProfileCommand(), output.ModeJSON, "show", "wh")
	require.NoError(t, err)
	var detail profileDetail
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &detail))
	assert.Equal(t, "warehouse", detail.Description)
	assert.Equal(t, 6543, detail.Credentials.Port)
	assert.Equal(t, "db.internal", detail.Credentials.Host, "unchanged fields survive an edit")

	_, err = e.run(NewProfileCommand(), output.ModeTable, "edit", "wh")
	assert.ErrorContains(t, err, "nothing to change")

	_, err = e.run(NewProfileCommand(), output.ModeTable, "remove", "wh")
	require.NoError(t, err)
	_, err = e.run(NewProfileCommand(), output.ModeTable, "show", "wh")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestProfileCreate_CredentialsJSON(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(NewProfileCommand(), output.ModeTable,
		"create", "raw", "--credentials-json", `{"type":"sqlite","path":":memory:"}`)
	require.NoError(t, err)

	_, err = e.run(NewProfileCommand(), output.ModeTable,
		"create", "mixed", "--credentials-json", `{"type":"sqlite"}`, "--path", "x.db")
	assert.ErrorContains(t, err, "cannot be combined")
}

func TestQueryCommand(t *testing.T) {
	e := newEnv(t)
	e.createDemo()

	_, err := e.query(output.ModeTable, "create table items (id integer primary key, name text)")
	require.NoError(t, err)
	_, err = e.query(output.ModeTable, "insert into items (name) values ('a'), ('b')")
	require.NoError(t, err)

	tr, err := e.query(output.ModeTable, "select id, name from items order by id")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "(2 rows)")
	assert.Contains(t, tr.Output(), "query #3")
	testutil.AssertNoANSI(t, tr.Output())

	tr, err = e.query(output.ModeTable, "-f", "csv", "select id, name from items order by id")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(tr.Output()), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "id,name", lines[0])
	assert.Equal(t, "1,a", lines[1])

	tr, err = e.query(output.ModeJSON, "select name from items where id = 2")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &rows))
	assert.Equal(t, []map[string]any{{"name": "b"}}, rows)

	_, err = e.query(output.ModeTable, "select * from missing")
	require.Error(t, err)
	assert.Equal(t, core.KindQueryExecution, core.KindOf(err))

	_, err = e.query(output.ModeTable, "-f", "xml", "select 1")
	assert.ErrorContains(t, err, "unknown format")
}

func TestQueryCommand_RequiresProfile(t *testing.T) {
	e := newEnv(t)
	_, err := e.query(output.ModeTable, "select 1")
	assert.ErrorContains(t, err, "no profile selected")
}

func TestQueryCommand_Input(t *testing.T) {
	e := newEnv(t)
	e.createDemo()

	cmd := NewQueryCommand()
	cmd.SetIn(strings.NewReader("select 7 as n"))
	tr, err := e.run(cmd, output.ModeJSON, "-i", "-")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), `"n": 7`)
}

func TestSchemaCommand(t *testing.T) {
	e := newEnv(t)
	e.createDemo()

	_, err := e.query(output.ModeTable, "create table customers (id integer primary key, name text not null)")
	require.NoError(t, err)
	_, err = e.query(output.ModeTable, "create table orders (id integer primary key, customer_id integer references customers(id))")
	require.NoError(t, err)

	tr, err := e.run(NewSchemaCommand(), output.ModeTable, "--format", "mermaid")
	require.NoError(t, err)
	out := tr.Output()
	assert.True(t, strings.HasPrefix(out, "erDiagram"))
	assert.Contains(t, out, `customers ||--o{ orders : "customer_id"`)

	tr, err = e.run(NewSchemaCommand(), output.ModeTable)
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "(2 tables, 1 relation)")

	_, err = e.run(NewSchemaCommand(), output.ModeTable, "--format", "dot")
	require.Error(t, err)
}

func TestLogCommand(t *testing.T) {
	e := newEnv(t)
	e.createDemo()

	_, err := e.query(output.ModeTable, "select 1")
	require.NoError(t, err)
	_, err = e.query(output.ModeTable, "select * from nowhere")
	require.Error(t, err)

	tr, err := e.run(NewLogCommand(), output.ModeJSON)
	require.NoError(t, err)
	var entries []core.QueryLogEntry
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID, "newest first")
	assert.Equal(t, core.QueryFailed, entries[0].Status)
	assert.Equal(t, core.QuerySucceeded, entries[1].Status)

	tr, err = e.run(NewLogCommand(), output.ModeJSON, "--status", "succeeded")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "select 1", entries[0].SQL)

	tr, err = e.run(NewLogCommand(), output.ModeTable, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "nowhere")
	assert.NotContains(t, tr.Output(), "select 1")

	_, err = e.run(NewLogCommand(), output.ModeTable, "--status", "bogus")
	assert.ErrorContains(t, err, "unknown status")
}

func TestFilterLog(t *testing.T) {
	log := []*core.QueryLogEntry{
		{ID: 1, Status: core.QuerySucceeded},
		{ID: 2, Status: core.QueryFailed},
		{ID: 3, Status: core.QuerySucceeded},
		{ID: 4, Status: core.QueryCancelled},
	}
	ids := func(es []*core.QueryLogEntry) []int64 {
		out := make([]int64, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	tests := []struct {
		name   string
		status core.QueryStatus
		limit  int
		want   []int64
	}{
		{"all", "", 0, []int64{4, 3, 2, 1}},
		{"limit", "", 2, []int64{4, 3}},
		{"status", core.QuerySucceeded, 0, []int64{3, 1}},
		{"status and limit", core.QuerySucceeded, 1, []int64{3}},
		{"no match", core.QueryRunning, 0, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(filterLog(log, tt.status, tt.limit)))
		})
	}
}

func TestReadSQL(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "q.sql")
	require.NoError(t, os.WriteFile(file, []byte("select 2"), 0o600))

	tests := []struct {
		name    string
		args    []string
		input   string
		stdin   string
		want    string
		wantErr string
	}{
		{name: "args", args: []string{"select", "1"}, want: "select 1"},
		{name: "stdin", input: "-", stdin: "select 3", want: "select 3"},
		{name: "file", input: file, want: "select 2"},
		{name: "empty", args: []string{"  "}, wantErr: "no SQL given"},
		{name: "missing file", input: filepath.Join(dir, "nope.sql"), wantErr: "failed to read SQL file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSQL(strings.NewReader(tt.stdin), tt.args, tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultFormat(t *testing.T) {
	tests := []struct {
		mode output.Mode
		flag string
		want string
	}{
		{output.ModeTable, "", "table"},
		{output.ModeJSON, "", "json"},
		{output.ModeYAML, "", "yaml"},
		{output.ModeMermaid, "", "table"},
		{output.ModeJSON, "csv", "csv"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.flag, func(t *testing.T) {
			tr := testutil.NewTestRenderer(tt.mode, false)
			got, err := resultFormat(tr.Renderer, tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderResult(t *testing.T) {
	res := &core.Result{
		Columns:  []string{"id", "note"},
		Rows:     [][]any{{int64(1), "a|b"}, {int64(2), nil}},
		RowCount: 5,
	}

	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"note", "NULL", "(showing first 2 of 5 rows)"}},
		{"md", []string{"| id | note |", "| --- | --- |", `| 1 | a\|b |`}},
		{"csv", []string{"id,note", "1,a|b", "2,NULL"}},
		{"json", []string{`"note": "a|b"`, `"note": null`}},
		{"yaml", []string{"note: a|b"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var sb strings.Builder
			require.NoError(t, renderResult(&sb, res, tt.format))
			for _, want := range tt.want {
				assert.Contains(t, sb.String(), want)
			}
		})
	}

	var sb strings.Builder
	require.NoError(t, renderResult(&sb, &core.Result{RowCount: 3}, "table"))
	assert.Equal(t, "(3 rows affected)\n", sb.String())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		input    any
		expected string
	}{
		{nil, "NULL"},
		{"hello", "hello"},
		{42, "42"},
		{3.14, "3.14"},
		{true, "true"},
		{[]byte("raw"), "raw"},
	}

	for _, tt := range tests {
		result := formatValue(tt.input)
		assert.Equal(t, tt.expected, result)
	}
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"with,comma", `"with,comma"`},
		{`with"quote`, `"with""quote"`},
		{"with\nnewline", `"with
newline"`},
		{`complex,"values"`, `"complex,""values"""`},
	}

	for _, tt := range tests {
		result := escapeCSV(tt.input)
		assert.Equal(t, tt.expected, result)
	}
}
