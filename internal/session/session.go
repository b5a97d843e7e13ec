// Package session owns the single live engine connection and drives its
// Disconnected → Connecting → Connected → Disconnecting lifecycle.
//
// Every connect attempt gets a new generation. In-flight work captures the
// attempt it started under and discards its outcome once that attempt is no
// longer current, so new requests never wait behind stale ones.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Opener turns a profile into a connected engine handle.
type Opener func(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error)

// Profiles resolves a profile and runs fn while the profile cannot be removed.
type Profiles interface {
	WithProfile(ctx context.Context, name string, fn func(*core.DatabaseProfile) error) error
}

// Options configure a Controller.
type Options struct {
	Opener      Opener
	Profiles    Profiles
	Logger      *slog.Logger
	MaxRetries  int
	BackoffBase time.Duration
	// Notify, when set, is called on every status change. It must not block.
	Notify func(notifier.Event)
}

// Default retry policy.
const (
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 200 * time.Millisecond
)

var errClosed = core.NewError(core.KindConnection, "", "session controller is closed")

// attempt is one generation of the session.
type attempt struct {
	id      uuid.UUID
	gen     uint64
	profile *core.DatabaseProfile

	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Controller.mu
	status       core.SessionStatus
	handle       core.Adapter
	caps         core.Capabilities
	tries        int
	retryPending bool
	lastErr      error
	connectedAt  time.Time
	tearing      bool

	done     chan struct{} // closed once the connect goroutine has returned
	result   error         // written before done is closed
	torndown chan struct{} // closed once teardown has released the handle
}

// Controller is the session controller.
type Controller struct {
	opener      Opener
	profiles    Profiles
	logger      *slog.Logger
	maxRetries  int
	backoffBase time.Duration
	notify      func(notifier.Event)

	mu     sync.Mutex
	cur    *attempt
	gen    uint64
	hooks  []func(gen uint64)
	closed bool

	snap atomic.Pointer[core.SessionInfo]
}

// New creates a disconnected controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	c := &Controller{
		opener:      opts.Opener,
		profiles:    opts.Profiles,
		logger:      logger,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		notify:      opts.Notify,
	}
	c.cur = newDisconnected(0)
	c.publishLocked()
	return c
}

func newDisconnected(gen uint64) *attempt {
	st := &attempt{
		gen:      gen,
		status:   core.SessionDisconnected,
		done:     make(chan struct{}),
		torndown: make(chan struct{}),
		ctx:      context.Background(),
		cancel:   func() {},
	}
	close(st.done)
	close(st.torndown)
	return st
}

// OnTeardown registers fn to run synchronously whenever a generation is torn
// down, before its engine handle is closed.
func (c *Controller) OnTeardown(fn func(gen uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Current returns a snapshot of the session. It never blocks.
func (c *Controller) Current() core.SessionInfo {
	return *c.snap.Load()
}

// ActiveProfile returns the profile of a non-Disconnected session, or "".
func (c *Controller) ActiveProfile() string {
	info := c.snap.Load()
	if info.Status == core.SessionDisconnected {
		return ""
	}
	return info.ProfileName
}

// Generation returns the current generation.
func (c *Controller) Generation() uint64 {
	return c.snap.Load().Generation
}

func (c *Controller) publishLocked() {
	st := c.cur
	info := &core.SessionInfo{
		Status:       st.status,
		Generation:   st.gen,
		Attempt:      st.tries,
		RetryPending: st.retryPending,
	}
	if st.status != core.SessionDisconnected && st.profile != nil {
		info.ID = st.id.String()
		info.ProfileName = st.profile.Name
	}
	if st.lastErr != nil && st.status == core.SessionFailed {
		info.LastError = st.lastErr.Error()
	}
	if st.status == core.SessionConnected {
		t := st.connectedAt
		info.ConnectedAt = &t
	}
	c.snap.Store(info)
	if c.notify != nil {
		c.notify(notifier.Event{Topic: notifier.TopicSession, Generation: st.gen})
	}
}

// Handle is the engine handle of a Connected session, captured together with
// the generation it belongs to.
type Handle struct {
	Adapter    core.Adapter
	Generation uint64
	Profile    string
	Caps       core.Capabilities
	// Ctx is cancelled when the generation is torn down.
	Ctx context.Context
}

// Acquire returns the live handle. It fails with NoActiveSession unless the
// session is Connected.
func (c *Controller) Acquire() (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.cur
	if st.status != core.SessionConnected {
		return Handle{}, core.NewError(core.KindNoActiveSession, "", "no active session (status %s)", st.status)
	}
	return Handle{
		Adapter:    st.handle,
		Generation: st.gen,
		Profile:    st.profile.Name,
		Caps:       st.caps,
		Ctx:        st.ctx,
	}, nil
}

// IsCurrent reports whether gen is the generation of a Connected session.
func (c *Controller) IsCurrent(gen uint64) bool {
	info := c.snap.Load()
	return info.Generation == gen && info.Status == core.SessionConnected
}

// Pending is the future of a connect attempt.
type Pending struct {
	st *attempt
}

// Generation returns the generation of the attempt.
func (p *Pending) Generation() uint64 { return p.st.gen }

// Done is closed when the attempt has settled.
func (p *Pending) Done() <-chan struct{} { return p.st.done }

// Err returns the outcome of a settled attempt.
func (p *Pending) Err() error {
	select {
	case <-p.st.done:
		return p.st.result
	default:
		return nil
	}
}

// Wait blocks until the attempt settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.st.done:
		return p.st.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectAsync starts connecting to the named profile and returns at once.
// A current session is torn down before the new attempt opens its handle.
func (c *Controller) ConnectAsync(ctx context.Context, name string) (*Pending, error) {
	var (
		st, prev *attempt
		owner    bool
	)
	err := c.profiles.WithProfile(ctx, name, func(p *core.DatabaseProfile) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return errClosed
		}

		prev = c.cur
		if prev.status != core.SessionDisconnected && !prev.tearing {
			prev.tearing = true
			prev.cancel()
			owner = true
		}

		c.gen++
		actx, cancel := context.WithCancel(context.Background())
		st = &attempt{
			id:       uuid.New(),
			gen:      c.gen,
			profile:  p.Clone(),
			ctx:      actx,
			cancel:   cancel,
			status:   core.SessionConnecting,
			done:     make(chan struct{}),
			torndown: make(chan struct{}),
		}
		c.cur = st
		c.publishLocked()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("connecting",
		slog.String("profile", name),
		slog.Uint64("generation", st.gen),
		slog.String("attempt_id", st.id.String()))

	go c.run(st, prev, owner)
	return &Pending{st: st}, nil
}

// Connect connects to the named profile and waits for the outcome.
func (c *Controller) Connect(ctx context.Context, name string) error {
	p, err := c.ConnectAsync(ctx, name)
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Disconnect tears the session down. It is a no-op when already Disconnected
// and waits for a teardown already in progress. Engine close errors are
// logged, never returned.
func (c *Controller) Disconnect(ctx context.Context) error {
	return c.disconnect(ctx, false)
}

// Reset moves a Failed session to Disconnected. Other states are left alone.
func (c *Controller) Reset(ctx context.Context) error {
	return c.disconnect(ctx, true)
}

func (c *Controller) disconnect(ctx context.Context, onlyFailed bool) error {
	c.mu.Lock()
	st := c.cur
	if st.status == core.SessionDisconnected || (onlyFailed && st.status != core.SessionFailed) {
		c.mu.Unlock()
		return nil
	}
	if st.tearing {
		c.mu.Unlock()
		select {
		case <-st.torndown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	st.tearing = true
	st.status = core.SessionDisconnecting
	st.retryPending = false
	st.cancel()
	c.publishLocked()
	c.mu.Unlock()

	c.teardown(st)

	c.mu.Lock()
	if c.cur == st {
		st.status = core.SessionDisconnected
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.Info("disconnected", slog.Uint64("generation", st.gen))
	return nil
}

// Close disconnects and rejects further connects.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Disconnect(ctx)
}

// teardown releases everything owned by st. The caller must have set
// st.tearing and cancelled st.ctx under mu; exactly one caller does.
func (c *Controller) teardown(st *attempt) {
	// A connect goroutine still running closes a late handle itself.
	<-st.done

	c.mu.Lock()
	hooks := append([]func(uint64){}, c.hooks...)
	handle := st.handle
	st.handle = nil
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(st.gen)
	}

	if handle != nil {
		if err := handle.Close(); err != nil {
			c.logger.Warn("engine close failed",
				slog.Uint64("generation", st.gen),
				slog.String("error", err.Error()))
		}
	}
	close(st.torndown)
}

var errSuperseded = errors.New("connection attempt superseded")

func superseded(st *attempt) error {
	return core.WrapError(core.KindConnection, st.profile.Name, errSuperseded, "connect abandoned")
}

// stale reports whether st no longer owns the session. Requires mu.
func (c *Controller) staleLocked(st *attempt) bool {
	return c.cur != st || st.tearing
}
