package commands

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/testutil"
	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	logtest "github.com/A-SunsetMkt-Forks/pg/internal/testutil"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

func newShell(t *testing.T) (*shell, *testutil.TestRenderer) {
	t.Helper()
	wb, err := workbench.Open(context.Background(), workbench.Options{
		StatePath:   ":memory:",
		Logger:      logtest.NewTestLogger(t),
		BackoffBase: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wb.Close(context.Background()) })

	_, err = wb.CreateProfile(context.Background(), registry.ProfileInput{
		Name:        "demo",
		Credentials: []byte(`{"type":"sqlite","path":"` + filepath.ToSlash(filepath.Join(t.TempDir(), "demo.db")) + `"}`),
	})
	require.NoError(t, err)

	tr := testutil.NewTestRendererTable()
	return &shell{wb: wb, r: tr.Renderer, format: "table"}, tr
}

func TestShell_Session(t *testing.T) {
	sh, tr := newShell(t)
	ctx := context.Background()

	assert.False(t, sh.exec(ctx, "select 1;"))
	assert.Contains(t, tr.ErrorOutput(), "no active session")
	tr.Reset()

	sh.exec(ctx, ".connect nope")
	assert.Contains(t, tr.ErrorOutput(), "profile not found")
	tr.Reset()

	sh.exec(ctx, ".connect demo")
	assert.Contains(t, tr.Output(), "connected to demo")
	assert.Equal(t, core.SessionConnected, sh.wb.CurrentSession().Status)
	tr.Reset()

	sh.exec(ctx, ".status")
	assert.Contains(t, tr.Output(), "connected demo")
	tr.Reset()

	sh.exec(ctx, ".profiles")
	assert.Contains(t, tr.Output(), "* demo (sqlite)")
	tr.Reset()

	sh.exec(ctx, ".disconnect")
	assert.Equal(t, core.SessionDisconnected, sh.wb.CurrentSession().Status)

	assert.True(t, sh.exec(ctx, ".quit"))
}

func TestShell_MultiLineStatements(t *testing.T) {
	sh, tr := newShell(t)
	ctx := context.Background()
	sh.exec(ctx, ".connect demo")
	tr.Reset()

	sh.exec(ctx, "create table notes (")
	sh.exec(ctx, "  id integer primary key,")
	assert.Empty(t, tr.Output(), "nothing runs before the terminating semicolon")
	sh.exec(ctx, "  body text);")
	assert.Contains(t, tr.Output(), "query #1")
	assert.Zero(t, sh.buf.Len())
	tr.Reset()

	sh.exec(ctx, "insert into notes (body) values ('hi');")
	sh.exec(ctx, "select body from notes;")
	assert.Contains(t, tr.Output(), "hi")
	assert.Contains(t, tr.Output(), "(1 row)")
	tr.Reset()

	sh.exec(ctx, ".tables")
	assert.Contains(t, tr.Output(), "notes")
	tr.Reset()

	sh.exec(ctx, ".schema mermaid")
	assert.Contains(t, tr.Output(), "erDiagram")
	tr.Reset()

	sh.exec(ctx, ".log 2")
	assert.Contains(t, tr.Output(), "select body from notes")
	assert.NotContains(t, tr.Output(), "create table")
}

func TestShell_BackgroundAndCancel(t *testing.T) {
	sh, tr := newShell(t)
	ctx := context.Background()
	sh.exec(ctx, ".connect demo")
	tr.Reset()

	sh.exec(ctx, ".bg select 1")
	assert.Contains(t, tr.Output(), "submitted query #1")

	require.Eventually(t, func() bool {
		e, err := sh.wb.QueryEntry(1)
		return err == nil && e.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	tr.Reset()
	sh.exec(ctx, ".cancel 1")
	assert.Empty(t, tr.ErrorOutput(), "cancelling a finished statement is a no-op")

	sh.exec(ctx, ".cancel 42")
	assert.Contains(t, tr.ErrorOutput(), "no such query")
	tr.Reset()

	sh.exec(ctx, ".cancel x")
	assert.Contains(t, tr.ErrorOutput(), "Usage")
	tr.Reset()

	sh.exec(ctx, ".bogus")
	assert.Contains(t, tr.ErrorOutput(), "Unknown command")
}
