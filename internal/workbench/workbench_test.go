package workbench

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	"github.com/A-SunsetMkt-Forks/pg/internal/testutil"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

const demoCredentials = `{"type":"sqlite","path":":memory:"}`

func openWorkbench(t *testing.T, path string) *Workbench {
	t.Helper()
	wb, err := Open(context.Background(), Options{
		StatePath:   path,
		Logger:      testutil.NewTestLogger(t),
		BackoffBase: time.Millisecond,
	})
	require.NoError(t, err)
	return wb
}

func createDemo(t *testing.T, wb *Workbench) {
	t.Helper()
	_, err := wb.CreateProfile(context.Background(), registry.ProfileInput{
		Name:        "demo",
		Description: "scratch database",
		Credentials: []byte(demoCredentials),
	})
	require.NoError(t, err)
}

func run(t *testing.T, wb *Workbench, sql string) *core.QueryLogEntry {
	t.Helper()
	tk, err := wb.SubmitQuery(sql)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = tk.Wait(ctx)
	return tk.Entry()
}

func TestWorkbench_DemoScenario(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })
	ctx := context.Background()

	createDemo(t, wb)
	require.NoError(t, wb.Connect(ctx, "demo"))
	assert.Equal(t, core.SessionConnected, wb.CurrentSession().Status)

	e := run(t, wb, "select 1")
	assert.Equal(t, core.QuerySucceeded, e.Status)
	require.NotNil(t, e.RowCount)
	assert.Equal(t, int64(1), *e.RowCount)

	g, err := wb.SchemaGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, wb.CurrentSession().Generation, g.Generation)
	assert.NotNil(t, wb.SchemaView().Graph)

	require.NoError(t, wb.Disconnect(ctx))
	assert.Equal(t, core.SessionDisconnected, wb.CurrentSession().Status)
	assert.Nil(t, wb.SchemaView().Graph)

	_, err = wb.SchemaGraph(ctx)
	assert.True(t, errors.Is(err, core.ErrNoActiveSession))
	_, err = wb.SubmitQuery("select 1")
	assert.True(t, errors.Is(err, core.ErrNoActiveSession))
}

func TestWorkbench_DDLRebuildsGraph(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })
	ctx := context.Background()

	createDemo(t, wb)
	require.NoError(t, wb.Connect(ctx, "demo"))

	g, err := wb.SchemaGraph(ctx)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)

	for _, sql := range []string{
		"CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES customers(id))",
	} {
		require.Equal(t, core.QuerySucceeded, run(t, wb, sql).Status)
	}
	assert.Nil(t, wb.SchemaView().Graph, "DDL invalidates the cached graph")

	g, err = wb.SchemaGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, g.TableNames())
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "orders.customer_id", g.Edges[0].From.String())
	assert.Equal(t, "customers.id", g.Edges[0].To.String())
}

func TestWorkbench_FailedQueryIsLogged(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })

	createDemo(t, wb)
	require.NoError(t, wb.Connect(context.Background(), "demo"))

	e := run(t, wb, "selec 1")
	assert.Equal(t, core.QueryFailed, e.Status)
	assert.NotEmpty(t, e.Message)
	assert.Len(t, wb.QueryLog(), 1)
}

func TestWorkbench_ProfilesAndActiveGuard(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })
	ctx := context.Background()

	createDemo(t, wb)
	_, err := wb.CreateProfile(ctx, registry.ProfileInput{Name: "bad", Credentials: []byte(`{"type":"oracle"}`)})
	assert.True(t, errors.Is(err, core.ErrInvalidProfile))

	require.NoError(t, wb.Connect(ctx, "demo"))
	list, err := wb.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)
	assert.Equal(t, "sqlite", list[0].Type)

	assert.True(t, errors.Is(wb.CheckRemove(ctx, "demo"), core.ErrProfileInUse))
	err = wb.RemoveProfile(ctx, "demo", RemoveOptions{})
	assert.True(t, errors.Is(err, core.ErrProfileInUse))

	require.NoError(t, wb.RemoveProfile(ctx, "demo", RemoveOptions{Force: true}))
	assert.Equal(t, core.SessionDisconnected, wb.CurrentSession().Status)
	list, err = wb.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWorkbench_ConnectionFailureSurfaces(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })
	ctx := context.Background()

	_, err := wb.CreateProfile(ctx, registry.ProfileInput{
		Name:        "broken",
		Credentials: []byte(`{"type":"sqlite","path":"` + filepath.Join(t.TempDir(), "missing", "dir", "x.db") + `"}`),
	})
	require.NoError(t, err)

	err = wb.Connect(ctx, "broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConnection))
	info := wb.CurrentSession()
	assert.Equal(t, core.SessionFailed, info.Status)
	assert.NotEmpty(t, info.LastError)

	require.NoError(t, wb.Reset(ctx))
	assert.Equal(t, core.SessionDisconnected, wb.CurrentSession().Status)
}

func TestWorkbench_HistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	wb := openWorkbench(t, path)
	createDemo(t, wb)
	require.NoError(t, wb.Connect(ctx, "demo"))
	run(t, wb, "select 1")
	run(t, wb, "select 2")
	require.NoError(t, wb.Close(ctx))

	wb = openWorkbench(t, path)
	t.Cleanup(func() { _ = wb.Close(context.Background()) })

	log := wb.QueryLog()
	require.Len(t, log, 2)
	assert.Equal(t, "select 1", log[0].SQL)
	assert.Equal(t, core.QuerySucceeded, log[1].Status)

	list, err := wb.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
}

func TestWorkbench_Subscribe(t *testing.T) {
	wb := openWorkbench(t, ":memory:")
	t.Cleanup(func() { _ = wb.Close(context.Background()) })

	ch := wb.Subscribe()
	defer wb.Unsubscribe(ch)

	createDemo(t, wb)
	select {
	case ev := <-ch:
		assert.Equal(t, notifier.TopicProfiles, ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after profile create")
	}

	require.NoError(t, wb.Connect(context.Background(), "demo"))
	seen := map[notifier.Topic]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[notifier.TopicSession] {
		select {
		case ev := <-ch:
			seen[ev.Topic] = true
		case <-deadline:
			t.Fatal("no session event after connect")
		}
	}
}
