// Package schema builds and caches the entity-relationship graph of the
// active session.
package schema

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/internal/session"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Sessions is the part of the session controller the builder depends on.
type Sessions interface {
	Acquire() (session.Handle, error)
	IsCurrent(gen uint64) bool
	OnTeardown(fn func(gen uint64))
}

// Options configure a Builder.
type Options struct {
	Sessions Sessions
	Logger   *slog.Logger
	Notify   func(notifier.Event)
}

// View is what the builder can say about the graph right now.
type View struct {
	Graph    *core.SchemaGraph
	Building bool
	Err      error
}

// Builder introspects the engine and caches one graph per generation.
type Builder struct {
	sessions Sessions
	logger   *slog.Logger
	notify   func(notifier.Event)
	group    singleflight.Group
	now      func() time.Time

	mu       sync.Mutex
	cached   *core.SchemaGraph
	epoch    uint64 // bumped by every invalidation
	building int
	lastErr  error
	errGen   uint64
}

// New creates a Builder and registers its teardown hook with the sessions.
func New(opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Builder{
		sessions: opts.Sessions,
		logger:   logger,
		notify:   opts.Notify,
		now:      func() time.Time { return time.Now().UTC() },
	}
	opts.Sessions.OnTeardown(b.InvalidateGeneration)
	return b
}

// Build returns the graph of the live session, introspecting the engine
// unless a graph of the same generation is cached. It fails with
// NoActiveSession unless the session is Connected.
//
// Concurrent callers share one introspection. The introspection is bound to
// the session, not to ctx: a caller giving up does not abort it.
func (b *Builder) Build(ctx context.Context) (*core.SchemaGraph, error) {
	h, err := b.sessions.Acquire()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if g := b.cached; g != nil && g.Generation == h.Generation {
		b.mu.Unlock()
		return g, nil
	}
	epoch := b.epoch
	b.mu.Unlock()

	key := strconv.FormatUint(h.Generation, 10) + "/" + strconv.FormatUint(epoch, 10)
	ch := b.group.DoChan(key, func() (any, error) {
		return b.build(h, epoch)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*core.SchemaGraph), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Builder) build(h session.Handle, epoch uint64) (*core.SchemaGraph, error) {
	b.mu.Lock()
	b.building++
	b.mu.Unlock()
	b.ping(h.Generation)

	start := b.now()
	g, err := b.introspect(h)

	b.mu.Lock()
	b.building--
	switch {
	case err != nil:
		b.lastErr, b.errGen = err, h.Generation
	case b.epoch == epoch && b.sessions.IsCurrent(h.Generation):
		b.cached = g
		b.lastErr = nil
	}
	b.mu.Unlock()
	b.ping(h.Generation)

	if err != nil {
		b.logger.Warn("schema introspection failed",
			slog.Uint64("generation", h.Generation),
			slog.String("error", err.Error()))
		return nil, err
	}
	b.logger.Debug("schema graph built",
		slog.Uint64("generation", h.Generation),
		slog.Int("tables", len(g.Nodes)),
		slog.Int("edges", len(g.Edges)),
		slog.Duration("took", b.now().Sub(start)))
	return g, nil
}

func (b *Builder) introspect(h session.Handle) (*core.SchemaGraph, error) {
	meta, err := h.Adapter.IntrospectSchema(h.Ctx)
	if err != nil {
		if h.Ctx.Err() != nil {
			return nil, core.NewError(core.KindNoActiveSession, h.Profile, "session ended during introspection")
		}
		return nil, core.WrapError(core.KindSchemaIntrospection, h.Profile, err, "introspection failed")
	}
	if !b.sessions.IsCurrent(h.Generation) {
		return nil, core.NewError(core.KindNoActiveSession, h.Profile, "session changed during introspection")
	}

	g, err := Assemble(meta)
	if err != nil {
		return nil, err
	}
	g.Generation = h.Generation
	g.ProfileName = h.Profile
	g.BuiltAt = b.now()
	return g, nil
}

// Current returns the cached graph while its generation is live.
func (b *Builder) Current() (*core.SchemaGraph, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached == nil || !b.sessions.IsCurrent(b.cached.Generation) {
		return nil, false
	}
	return b.cached, true
}

// Snapshot reports the cached graph, whether a build is running and the last
// build error of the live generation. It never blocks on the engine.
func (b *Builder) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{Building: b.building > 0}
	if b.cached != nil && b.sessions.IsCurrent(b.cached.Generation) {
		v.Graph = b.cached
	}
	if b.lastErr != nil && b.sessions.IsCurrent(b.errGen) {
		v.Err = b.lastErr
	}
	return v
}

// Invalidate drops the cached graph. Builds started before the call do not
// repopulate the cache.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	b.epoch++
	gen := uint64(0)
	if b.cached != nil {
		gen = b.cached.Generation
	}
	b.cached = nil
	b.lastErr = nil
	b.mu.Unlock()
	b.ping(gen)
}

// InvalidateGeneration drops the cache if it belongs to gen.
func (b *Builder) InvalidateGeneration(gen uint64) {
	b.mu.Lock()
	b.epoch++
	hit := b.cached != nil && b.cached.Generation == gen
	if hit {
		b.cached = nil
	}
	if b.errGen == gen {
		b.lastErr = nil
	}
	b.mu.Unlock()
	if hit {
		b.logger.Debug("schema graph invalidated", slog.Uint64("generation", gen))
		b.ping(gen)
	}
}

func (b *Builder) ping(gen uint64) {
	if b.notify != nil {
		b.notify(notifier.Event{Topic: notifier.TopicSchema, Generation: gen})
	}
}
