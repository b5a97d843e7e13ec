// Package workbench wires the profile registry, the session controller, the
// query pipeline and the schema builder into the surface a UI shell drives.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/internal/query"
	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	"github.com/A-SunsetMkt-Forks/pg/internal/schema"
	"github.com/A-SunsetMkt-Forks/pg/internal/session"
	"github.com/A-SunsetMkt-Forks/pg/internal/state"
	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Options configure a Workbench. Zero values select the component defaults;
// a zero MaxRetries disables reconnect retries.
type Options struct {
	// StatePath is the SQLite file holding profiles and the query log.
	// ":memory:" keeps everything in memory.
	StatePath     string
	Logger        *slog.Logger
	LogCap        int
	MaxRetries    int
	BackoffBase   time.Duration
	MaxResultRows int
	MessageLimit  int
	// Opener replaces the registered engine adapters, mostly for tests.
	Opener session.Opener
}

// Workbench is the application core.
type Workbench struct {
	logger   *slog.Logger
	store    *state.SQLiteStore
	notifier *notifier.Notifier
	profiles *registry.Registry
	session  *session.Controller
	queries  *query.Pipeline
	graphs   *schema.Builder
}

// Open opens the state store and assembles the components.
func Open(ctx context.Context, opts Options) (*Workbench, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.StatePath == "" {
		opts.StatePath = ":memory:"
	}

	store := state.NewSQLiteStore(logger.With(slog.String("component", "state")))
	if err := store.Open(opts.StatePath); err != nil {
		return nil, err
	}

	n := notifier.New()
	reg := registry.New(registry.Options{
		Store:               store,
		Logger:              logger.With(slog.String("component", "registry")),
		ValidateCredentials: adapter.ValidateCredentials,
		Notify:              n.Broadcast,
	})

	opener := opts.Opener
	if opener == nil {
		engineLogger := logger.With(slog.String("component", "engine"))
		opener = func(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error) {
			return adapter.Open(ctx, p, engineLogger)
		}
	}
	ctrl := session.New(session.Options{
		Opener:      opener,
		Profiles:    reg,
		Logger:      logger.With(slog.String("component", "session")),
		MaxRetries:  opts.MaxRetries,
		BackoffBase: opts.BackoffBase,
		Notify:      n.Broadcast,
	})
	reg.SetGuard(ctrl)

	graphs := schema.New(schema.Options{
		Sessions: ctrl,
		Logger:   logger.With(slog.String("component", "schema")),
		Notify:   n.Broadcast,
	})
	pipe := query.New(query.Options{
		Sessions:       ctrl,
		Store:          store,
		Logger:         logger.With(slog.String("component", "query")),
		LogCap:         opts.LogCap,
		MaxResultRows:  opts.MaxResultRows,
		MessageLimit:   opts.MessageLimit,
		Notify:         n.Broadcast,
		OnSchemaChange: graphs.InvalidateGeneration,
	})
	if err := pipe.LoadHistory(ctx); err != nil {
		_ = pipe.Close(ctx)
		_ = store.Close()
		return nil, fmt.Errorf("failed to load query history: %w", err)
	}

	logger.Debug("workbench opened", slog.String("state", opts.StatePath))
	return &Workbench{
		logger:   logger,
		store:    store,
		notifier: n,
		profiles: reg,
		session:  ctrl,
		queries:  pipe,
		graphs:   graphs,
	}, nil
}

// Close disconnects, flushes the query log and closes the state store.
func (w *Workbench) Close(ctx context.Context) error {
	var errs []error
	if err := w.session.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := w.queries.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush query log: %w", err))
	}
	if err := w.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close state store: %w", err))
	}
	return errors.Join(errs...)
}

// Subscribe returns a channel pinged on every state change: profile
// mutations, session transitions, log changes and graph rebuilds.
func (w *Workbench) Subscribe() chan notifier.Event { return w.notifier.Subscribe() }

// Unsubscribe releases a channel returned by Subscribe.
func (w *Workbench) Unsubscribe(ch chan notifier.Event) { w.notifier.Unsubscribe(ch) }

// SetLogCap changes the bound of the query log.
func (w *Workbench) SetLogCap(n int) { w.queries.SetCap(n) }

// LogCap returns the bound of the query log.
func (w *Workbench) LogCap() int { return w.queries.Cap() }
