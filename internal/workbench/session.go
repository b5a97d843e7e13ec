package workbench

import (
	"context"
	"iter"

	"github.com/A-SunsetMkt-Forks/pg/internal/query"
	"github.com/A-SunsetMkt-Forks/pg/internal/schema"
	"github.com/A-SunsetMkt-Forks/pg/internal/session"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Connect activates a profile and waits until the session is Connected or
// has permanently failed.
func (w *Workbench) Connect(ctx context.Context, name string) error {
	return w.session.Connect(ctx, name)
}

// ConnectAsync starts activating a profile and returns at once.
func (w *Workbench) ConnectAsync(ctx context.Context, name string) (*session.Pending, error) {
	return w.session.ConnectAsync(ctx, name)
}

// Disconnect tears the session down, cancelling its queries.
func (w *Workbench) Disconnect(ctx context.Context) error {
	return w.session.Disconnect(ctx)
}

// Reset clears a permanently failed session.
func (w *Workbench) Reset(ctx context.Context) error {
	return w.session.Reset(ctx)
}

// CurrentSession returns the session snapshot.
func (w *Workbench) CurrentSession() core.SessionInfo {
	return w.session.Current()
}

// SubmitQuery queues sql against the active session.
func (w *Workbench) SubmitQuery(sql string) (*query.Ticket, error) {
	return w.queries.Submit(sql)
}

// CancelQuery aborts a Queued or Running query.
func (w *Workbench) CancelQuery(id int64) error {
	return w.queries.Cancel(id)
}

// QueryLog returns a snapshot of the query log ordered by id.
func (w *Workbench) QueryLog() []*core.QueryLogEntry {
	return w.queries.Log()
}

// QueryEntry returns one log entry.
func (w *Workbench) QueryEntry(id int64) (*core.QueryLogEntry, error) {
	return w.queries.Entry(id)
}

// QueryIter returns the log as a restartable sequence.
func (w *Workbench) QueryIter() iter.Seq[*core.QueryLogEntry] {
	return w.queries.Iter()
}

// SchemaGraph returns the graph of the active session, building it if needed.
func (w *Workbench) SchemaGraph(ctx context.Context) (*core.SchemaGraph, error) {
	return w.graphs.Build(ctx)
}

// SchemaView reports the cached graph without touching the engine.
func (w *Workbench) SchemaView() schema.View {
	return w.graphs.Snapshot()
}

// RefreshSchema drops the cached graph.
func (w *Workbench) RefreshSchema() {
	w.graphs.Invalidate()
}
