// Package query runs SQL against the active session and keeps the bounded
// query log.
//
// Every submission becomes a QueryLogEntry that moves Queued → Running →
// Succeeded | Failed | Cancelled. Statements of one generation start in
// submission order; the engine's Capabilities decide how many run at once.
package query

import (
	"context"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/internal/session"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Sessions is the part of the session controller the pipeline depends on.
type Sessions interface {
	Acquire() (session.Handle, error)
	IsCurrent(gen uint64) bool
	OnTeardown(fn func(gen uint64))
}

// Defaults.
const (
	DefaultLogCap        = 500
	DefaultMaxResultRows = 1000
	DefaultMessageLimit  = 256
)

// Options configure a Pipeline.
type Options struct {
	Sessions Sessions
	// Store persists entries. It may be nil for a memory-only log.
	Store         core.QueryLogStore
	Logger        *slog.Logger
	LogCap        int
	MaxResultRows int
	MessageLimit  int
	Notify        func(notifier.Event)
	// OnSchemaChange is called after a schema-mutating statement reached the
	// engine.
	OnSchemaChange func(gen uint64)
}

type job struct {
	entry  *core.QueryLogEntry
	gen    uint64
	handle session.Handle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// set once, before done is closed
	finalized bool
	result    *core.Result
	err       error
}

// lane serializes the start of statements of one generation.
type lane struct {
	gen     uint64
	ctx     context.Context
	sem     *semaphore.Weighted
	pending []*job
	wake    chan struct{}
}

// Pipeline is the query execution pipeline.
type Pipeline struct {
	sessions Sessions
	store    core.QueryLogStore
	writer   *writer
	logger   *slog.Logger
	notify   func(notifier.Event)
	onDDL    func(gen uint64)
	maxRows  int
	msgLimit int
	now      func() time.Time

	mu      sync.Mutex
	cap     int
	nextID  int64
	entries []*core.QueryLogEntry
	jobs    map[int64]*job
	lanes   map[uint64]*lane
	closed  bool
}

// New creates a Pipeline and registers its teardown hook with the sessions.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Pipeline{
		sessions: opts.Sessions,
		store:    opts.Store,
		logger:   logger,
		notify:   opts.Notify,
		onDDL:    opts.OnSchemaChange,
		maxRows:  positive(opts.MaxResultRows, DefaultMaxResultRows),
		msgLimit: positive(opts.MessageLimit, DefaultMessageLimit),
		cap:      positive(opts.LogCap, DefaultLogCap),
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[int64]*job),
		lanes:    make(map[uint64]*lane),
	}
	if p.store != nil {
		p.writer = newWriter(p.store, logger)
	}
	opts.Sessions.OnTeardown(p.teardown)
	return p
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// LoadHistory seeds the in-memory log from the store. Entries left
// non-terminal by a previous process are finalized as Cancelled first.
// Call it before the first Submit.
func (p *Pipeline) LoadHistory(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	n, err := p.store.CancelUnfinished(ctx, "interrupted", p.now())
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("finalized interrupted queries", slog.Int64("count", n))
	}
	maxID, err := p.store.MaxEntryID(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	keep := p.cap
	p.mu.Unlock()

	entries, err := p.store.ListEntries(ctx, keep)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if maxID > p.nextID {
		p.nextID = maxID
	}
	live := p.entries
	p.entries = append(entries, live...)
	p.trimLocked()
	return nil
}

// SetCap changes the bound of the log. Oldest terminal entries are evicted.
func (p *Pipeline) SetCap(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cap = n
	p.trimLocked()
	p.persistLocked(writeOp{kind: opPrune, keep: n})
}

// Cap returns the current log bound.
func (p *Pipeline) Cap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cap
}

// Submit queues sql against the active session. It fails with
// NoActiveSession unless the session is Connected, and with QueryExecution for
// an empty text; in both cases no entry is created.
func (p *Pipeline) Submit(sql string) (*Ticket, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, core.NewError(core.KindNoActiveSession, "", "workbench is closed")
	}
	h, err := p.sessions.Acquire()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if strings.TrimSpace(core.StripLeadingComments(sql)) == "" {
		p.mu.Unlock()
		return nil, core.NewError(core.KindQueryExecution, "", "empty statement")
	}

	p.nextID++
	entry := &core.QueryLogEntry{
		ID:          p.nextID,
		ProfileName: h.Profile,
		Generation:  h.Generation,
		SQL:         sql,
		Status:      core.QueryQueued,
		SubmittedAt: p.now(),
	}
	jctx, cancel := context.WithCancel(h.Ctx)
	j := &job{
		entry:  entry,
		gen:    h.Generation,
		handle: h,
		ctx:    jctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.entries = append(p.entries, entry)
	p.jobs[entry.ID] = j
	p.trimLocked()
	p.persistLocked(writeOp{kind: opAppend, entry: entry.Clone()})

	l := p.laneLocked(h)
	l.pending = append(l.pending, j)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	p.pingLocked(entry)
	p.mu.Unlock()

	p.logger.Debug("query queued",
		slog.Int64("entry_id", entry.ID),
		slog.Uint64("generation", h.Generation))
	return &Ticket{p: p, j: j}, nil
}

func (p *Pipeline) laneLocked(h session.Handle) *lane {
	if l, ok := p.lanes[h.Generation]; ok {
		return l
	}
	l := &lane{
		gen:  h.Generation,
		ctx:  h.Ctx,
		sem:  semaphore.NewWeighted(int64(h.Caps.Parallelism())),
		wake: make(chan struct{}, 1),
	}
	p.lanes[h.Generation] = l
	go p.dispatch(l)
	return l
}

// dispatch starts the jobs of one lane in FIFO order, waiting for a free
// execution slot before each.
func (p *Pipeline) dispatch(l *lane) {
	for {
		p.mu.Lock()
		for len(l.pending) == 0 {
			p.mu.Unlock()
			select {
			case <-l.wake:
			case <-l.ctx.Done():
				return
			}
			p.mu.Lock()
		}
		j := l.pending[0]
		l.pending = l.pending[1:]
		skip := j.finalized
		p.mu.Unlock()
		if skip {
			continue
		}

		if err := l.sem.Acquire(l.ctx, 1); err != nil {
			// The session is going away; its teardown hook finalizes the rest.
			return
		}

		p.mu.Lock()
		if j.finalized {
			p.mu.Unlock()
			l.sem.Release(1)
			continue
		}
		started := p.now()
		j.entry.Status = core.QueryRunning
		j.entry.StartedAt = &started
		p.persistLocked(writeOp{kind: opUpdate, entry: j.entry.Clone()})
		p.pingLocked(j.entry)
		p.mu.Unlock()

		go p.execute(l, j)
	}
}

func (p *Pipeline) execute(l *lane, j *job) {
	defer l.sem.Release(1)

	res, err := j.handle.Adapter.Execute(j.ctx, j.entry.SQL, p.maxRows)
	p.schemaTouched(j)

	p.mu.Lock()
	if j.finalized {
		p.mu.Unlock()
		return
	}
	switch {
	case j.ctx.Err() != nil || !p.sessions.IsCurrent(j.gen):
		p.finalizeLocked(j, core.QueryCancelled, "session changed before completion", nil, nil)
	case err != nil:
		p.finalizeLocked(j, core.QueryFailed, err.Error(), nil, err)
	default:
		p.finalizeLocked(j, core.QuerySucceeded, "", res, nil)
	}
	status := j.entry.Status
	p.mu.Unlock()

	p.logger.Debug("query finished",
		slog.Int64("entry_id", j.entry.ID),
		slog.String("status", string(status)))
}

// schemaTouched runs the schema-change hook for a DDL statement that reached
// the engine, whatever its outcome.
func (p *Pipeline) schemaTouched(j *job) {
	if p.onDDL != nil && core.IsSchemaMutating(j.entry.SQL) {
		p.onDDL(j.gen)
	}
}

// finalizeLocked moves a job to a terminal status exactly once.
func (p *Pipeline) finalizeLocked(j *job, status core.QueryStatus, msg string, res *core.Result, cause error) {
	if j.finalized {
		return
	}
	j.finalized = true
	finished := p.now()
	e := j.entry
	e.Status = status
	e.FinishedAt = &finished
	e.Message = core.Truncate(msg, p.msgLimit)
	if res != nil {
		n := res.RowCount
		e.RowCount = &n
	}

	switch status {
	case core.QueryCancelled:
		j.err = core.NewError(core.KindQueryCancelled, entrySubject(e.ID), "%s", e.Message)
	case core.QueryFailed:
		j.err = core.WrapError(core.KindQueryExecution, entrySubject(e.ID), cause, e.Message)
	default:
		j.result = res
	}

	delete(p.jobs, e.ID)
	p.persistLocked(writeOp{kind: opUpdate, entry: e.Clone()})
	p.persistLocked(writeOp{kind: opPrune, keep: p.cap})
	p.trimLocked()
	p.pingLocked(e)
	close(j.done)
	j.cancel()
}

// Cancel aborts a Queued or Running entry. Cancelling a terminal entry is a
// no-op; an unknown id fails with NotFound.
func (p *Pipeline) Cancel(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		if p.findLocked(id) != nil {
			return nil
		}
		return core.NewError(core.KindNotFound, entrySubject(id), "no such query")
	}
	p.finalizeLocked(j, core.QueryCancelled, "cancelled by user", nil, nil)
	p.logger.Info("query cancelled", slog.Int64("entry_id", id))
	return nil
}

// teardown finalizes every live job of gen. It runs before the engine handle
// of gen is closed.
func (p *Pipeline) teardown(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, j := range p.jobs {
		if j.gen != gen {
			continue
		}
		p.finalizeLocked(j, core.QueryCancelled, "session disconnected", nil, nil)
		n++
	}
	delete(p.lanes, gen)
	if n > 0 {
		p.logger.Info("cancelled in-flight queries",
			slog.Uint64("generation", gen),
			slog.Int("count", n))
	}
}

// Log returns a snapshot of the log ordered by id.
func (p *Pipeline) Log() []*core.QueryLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*core.QueryLogEntry, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Clone()
	}
	return out
}

// Iter returns a restartable sequence over the log. Each range takes a fresh
// snapshot and never waits for future entries.
func (p *Pipeline) Iter() iter.Seq[*core.QueryLogEntry] {
	return func(yield func(*core.QueryLogEntry) bool) {
		for _, e := range p.Log() {
			if !yield(e) {
				return
			}
		}
	}
}

// Entry returns one log entry.
func (p *Pipeline) Entry(id int64) (*core.QueryLogEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.findLocked(id); e != nil {
		return e.Clone(), nil
	}
	return nil, core.NewError(core.KindNotFound, entrySubject(id), "no such query")
}

func (p *Pipeline) findLocked(id int64) *core.QueryLogEntry {
	lo, hi := 0, len(p.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case p.entries[mid].ID == id:
			return p.entries[mid]
		case p.entries[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil
}

// trimLocked evicts the oldest terminal entries beyond the cap. Live entries
// are kept even when that exceeds the cap.
func (p *Pipeline) trimLocked() {
	excess := len(p.entries) - p.cap
	if excess <= 0 {
		return
	}
	kept := p.entries[:0]
	for _, e := range p.entries {
		if excess > 0 && e.Status.Terminal() {
			excess--
			continue
		}
		kept = append(kept, e)
	}
	clear(p.entries[len(kept):])
	p.entries = kept
}

func (p *Pipeline) persistLocked(op writeOp) {
	if p.writer != nil {
		p.writer.enqueue(op)
	}
}

func (p *Pipeline) pingLocked(e *core.QueryLogEntry) {
	if p.notify != nil {
		p.notify(notifier.Event{Topic: notifier.TopicLog, Generation: e.Generation, EntryID: e.ID})
	}
}

// Flush waits until every log change has reached the store.
func (p *Pipeline) Flush(ctx context.Context) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.flush(ctx)
}

// Close rejects further submissions, cancels what is still live and drains
// pending store writes.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, j := range p.jobs {
		p.finalizeLocked(j, core.QueryCancelled, "shutting down", nil, nil)
	}
	p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	return p.writer.stop(ctx)
}

func entrySubject(id int64) string {
	return "query " + strconv.FormatInt(id, 10)
}
