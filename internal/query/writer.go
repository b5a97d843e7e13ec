package query

import (
	"context"
	"log/slog"
	"sync"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

type opKind int

const (
	opAppend opKind = iota
	opUpdate
	opPrune
)

type writeOp struct {
	kind  opKind
	entry *core.QueryLogEntry
	keep  int
}

// writer applies store writes in the order they were enqueued, off the
// caller's goroutine.
type writer struct {
	store  core.QueryLogStore
	logger *slog.Logger

	mu      sync.Mutex
	queue   []writeOp
	busy    bool
	wake    chan struct{}
	idle    chan struct{} // closed and replaced whenever the queue drains
	stopped bool
	exited  chan struct{}
}

func newWriter(store core.QueryLogStore, logger *slog.Logger) *writer {
	w := &writer{
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
		idle:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	close(w.idle)
	go w.loop()
	return w
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if len(w.queue) == 0 && !w.busy {
		w.idle = make(chan struct{})
	}
	w.queue = append(w.queue, op)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) loop() {
	defer close(w.exited)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 {
			if w.stopped {
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			<-w.wake
			w.mu.Lock()
		}
		op := w.queue[0]
		w.queue = w.queue[1:]
		w.busy = true
		w.mu.Unlock()

		w.apply(op)

		w.mu.Lock()
		w.busy = false
		if len(w.queue) == 0 {
			close(w.idle)
		}
		w.mu.Unlock()
	}
}

func (w *writer) apply(op writeOp) {
	ctx := context.Background()
	var err error
	switch op.kind {
	case opAppend:
		err = w.store.AppendEntry(ctx, op.entry)
	case opUpdate:
		err = w.store.UpdateEntry(ctx, op.entry)
	case opPrune:
		_, err = w.store.PruneEntries(ctx, op.keep)
	}
	if err != nil {
		w.logger.Error("query log write failed", slog.String("error", err.Error()))
	}
}

// flush waits until every enqueued write has been applied.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop drains the queue and ends the writer goroutine.
func (w *writer) stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.mu.Unlock()
	select {
	case <-w.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
