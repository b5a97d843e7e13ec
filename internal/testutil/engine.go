package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// ErrTransient is the default scripted open failure.
var ErrTransient = errors.New("connection refused")

// FakeEngine is a scriptable engine adapter factory. Its Open method is a
// session opener; every handle it returns is a *FakeHandle.
type FakeEngine struct {
	mu sync.Mutex

	// Caps is reported by every handle.
	Caps core.Capabilities
	// Meta is returned by IntrospectSchema.
	Meta *core.SchemaMetadata
	// MetaErr, when set, fails IntrospectSchema.
	MetaErr error

	openErrs  map[string][]error
	openGates map[string]chan struct{}
	execGates map[string]chan struct{}
	execErrs  map[string]error
	opens     map[string]int
	live      int
	running   int
	maxRun    int
	started   []string
	introGate chan struct{}
	intros    int
}

// NewFakeEngine returns an engine whose statements succeed with one row.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		openErrs:  make(map[string][]error),
		openGates: make(map[string]chan struct{}),
		execGates: make(map[string]chan struct{}),
		execErrs:  make(map[string]error),
		opens:     make(map[string]int),
		Meta:      &core.SchemaMetadata{},
	}
}

// FailOpen makes the next len(errs) opens of profile fail with errs in order.
func (f *FakeEngine) FailOpen(profile string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErrs[profile] = append(f.openErrs[profile], errs...)
}

// GateOpen blocks opens of profile until the returned release is called.
// A blocked open returns the context error when its context ends first.
func (f *FakeEngine) GateOpen(profile string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.openGates[profile] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// GateExec blocks statements equal to sql until release is called or their
// context ends.
func (f *FakeEngine) GateExec(sql string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.execGates[sql] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// GateIntrospect blocks IntrospectSchema until release is called.
func (f *FakeEngine) GateIntrospect() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.introGate = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// FailExec makes statements equal to sql fail with err.
func (f *FakeEngine) FailExec(sql string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execErrs[sql] = err
}

// Open implements a session opener.
func (f *FakeEngine) Open(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error) {
	f.mu.Lock()
	f.opens[p.Name]++
	gate := f.openGates[p.Name]
	var err error
	if errs := f.openErrs[p.Name]; len(errs) > 0 {
		err, f.openErrs[p.Name] = errs[0], errs[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.live++
	f.mu.Unlock()
	return &FakeHandle{engine: f, Profile: p.Name}, nil
}

// Opens returns how many times profile was opened, failures included.
func (f *FakeEngine) Opens(profile string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[profile]
}

// Live returns the number of handles opened and not yet closed.
func (f *FakeEngine) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Running returns the number of statements currently executing.
func (f *FakeEngine) Running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// MaxRunning returns the highest number of statements seen executing at once.
func (f *FakeEngine) MaxRunning() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRun
}

// Started returns statements in the order they reached the engine.
func (f *FakeEngine) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

// Introspections returns how many times IntrospectSchema ran.
func (f *FakeEngine) Introspections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intros
}

// FakeHandle is a connected fake adapter.
type FakeHandle struct {
	engine  *FakeEngine
	Profile string

	mu     sync.Mutex
	closed bool
}

var _ core.Adapter = (*FakeHandle)(nil)

// Connect is a no-op; handles are connected by FakeEngine.Open.
func (h *FakeHandle) Connect(context.Context, core.AdapterConfig) error { return nil }

// Close releases the handle once.
func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.engine.mu.Lock()
	h.engine.live--
	h.engine.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Execute runs a scripted statement.
func (h *FakeHandle) Execute(ctx context.Context, sql string, maxRows int) (*core.Result, error) {
	f := h.engine
	f.mu.Lock()
	f.running++
	if f.running > f.maxRun {
		f.maxRun = f.running
	}
	f.started = append(f.started, sql)
	gate := f.execGates[sql]
	err := f.execErrs[sql]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if h.Closed() {
		return nil, errors.New("handle is closed")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	res := &core.Result{Columns: []string{"?column?"}, RowCount: 1}
	if maxRows > 0 {
		res.Rows = [][]any{{int64(1)}}
	} else {
		res.Truncated = true
	}
	return res, nil
}

// IntrospectSchema returns the engine's scripted metadata.
func (h *FakeHandle) IntrospectSchema(ctx context.Context) (*core.SchemaMetadata, error) {
	f := h.engine
	f.mu.Lock()
	f.intros++
	gate := f.introGate
	meta, err := f.Meta, f.MetaErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// Capabilities returns the engine's scripted capabilities.
func (h *FakeHandle) Capabilities() core.Capabilities {
	return h.engine.Caps
}
