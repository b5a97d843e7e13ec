package query

import (
	"context"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Ticket is the handle of one submitted query.
type Ticket struct {
	p *Pipeline
	j *job
}

// ID returns the log entry id.
func (t *Ticket) ID() int64 { return t.j.entry.ID }

// Generation returns the session generation the query was issued under.
func (t *Ticket) Generation() uint64 { return t.j.gen }

// Done is closed once the entry is terminal.
func (t *Ticket) Done() <-chan struct{} { return t.j.done }

// Wait blocks until the entry is terminal or ctx ends. It returns the bounded
// result on success, a QueryExecution error on failure and a QueryCancelled
// error on cancellation.
func (t *Ticket) Wait(ctx context.Context) (*core.Result, error) {
	select {
	case <-t.j.done:
		return t.j.result, t.j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Entry returns a snapshot of the log entry.
func (t *Ticket) Entry() *core.QueryLogEntry {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.j.entry.Clone()
}

// Result returns the bounded result, or nil until the query succeeded.
func (t *Ticket) Result() *core.Result {
	select {
	case <-t.j.done:
		return t.j.result
	default:
		return nil
	}
}
