package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/internal/testutil"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

type profileMap map[string]*core.DatabaseProfile

func (m profileMap) WithProfile(_ context.Context, name string, fn func(*core.DatabaseProfile) error) error {
	p, ok := m[name]
	if !ok {
		return core.NewError(core.KindNotFound, name, "profile not found")
	}
	return fn(p)
}

func profiles(names ...string) profileMap {
	m := profileMap{}
	for _, n := range names {
		m[n] = &core.DatabaseProfile{Name: n, Credentials: []byte(`{"type":"fake"}`)}
	}
	return m
}

type harness struct {
	ctl     *Controller
	engine  *testutil.FakeEngine
	mu      sync.Mutex
	history []core.SessionInfo
}

func newHarness(t *testing.T, opener func(e *testutil.FakeEngine) Opener) *harness {
	t.Helper()
	h := &harness{engine: testutil.NewFakeEngine()}
	open := Opener(h.engine.Open)
	if opener != nil {
		open = opener(h.engine)
	}
	var ctl atomic.Pointer[Controller]
	h.ctl = New(Options{
		Opener:      open,
		Profiles:    profiles("demo", "a", "b"),
		Logger:      testutil.NewTestLogger(t),
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: time.Millisecond,
		Notify: func(notifier.Event) {
			if c := ctl.Load(); c != nil {
				h.mu.Lock()
				h.history = append(h.history, c.Current())
				h.mu.Unlock()
			}
		},
	})
	ctl.Store(h.ctl)
	t.Cleanup(func() { _ = h.ctl.Close(context.Background()) })
	return h
}

func (h *harness) statuses() []core.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.SessionInfo(nil), h.history...)
}

func TestController_ConnectDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var tornDown []uint64
	h.ctl.OnTeardown(func(gen uint64) { tornDown = append(tornDown, gen) })

	require.NoError(t, h.ctl.Connect(ctx, "demo"))

	info := h.ctl.Current()
	assert.Equal(t, core.SessionConnected, info.Status)
	assert.Equal(t, "demo", info.ProfileName)
	assert.Equal(t, uint64(1), info.Generation)
	assert.NotEmpty(t, info.ID)
	assert.NotNil(t, info.ConnectedAt)
	assert.Equal(t, "demo", h.ctl.ActiveProfile())

	handle, err := h.ctl.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), handle.Generation)
	assert.True(t, h.ctl.IsCurrent(1))

	require.NoError(t, h.ctl.Disconnect(ctx))
	info = h.ctl.Current()
	assert.Equal(t, core.SessionDisconnected, info.Status)
	assert.Empty(t, info.ProfileName)
	assert.Equal(t, uint64(1), info.Generation, "disconnect does not start a generation")
	assert.Equal(t, []uint64{1}, tornDown)
	assert.Equal(t, 0, h.engine.Live(), "handle released")
	assert.Error(t, handle.Ctx.Err(), "generation context cancelled")

	_, err = h.ctl.Acquire()
	assert.ErrorIs(t, err, core.ErrNoActiveSession)

	require.NoError(t, h.ctl.Disconnect(ctx), "disconnect when disconnected is a no-op")
	assert.Equal(t, []uint64{1}, tornDown)
}

func TestController_ConnectUnknownProfile(t *testing.T) {
	h := newHarness(t, nil)

	err := h.ctl.Connect(context.Background(), "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, core.SessionDisconnected, h.ctl.Current().Status)
	assert.Equal(t, uint64(0), h.ctl.Generation())
}

func TestController_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.FailOpen("demo", testutil.ErrTransient, testutil.ErrTransient)

	require.NoError(t, h.ctl.Connect(context.Background(), "demo"))

	info := h.ctl.Current()
	assert.Equal(t, core.SessionConnected, info.Status)
	assert.Equal(t, 3, info.Attempt)
	assert.Equal(t, 3, h.engine.Opens("demo"))
	assert.Equal(t, uint64(1), info.Generation, "retries stay in one generation")

	var sawRetry bool
	for _, s := range h.statuses() {
		if s.Status == core.SessionFailed {
			assert.True(t, s.RetryPending, "intermediate failures are never terminal")
			sawRetry = true
		}
	}
	assert.True(t, sawRetry)
}

func TestController_RetriesExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.FailOpen("demo", testutil.ErrTransient, testutil.ErrTransient, testutil.ErrTransient)

	err := h.ctl.Connect(context.Background(), "demo")
	require.ErrorIs(t, err, core.ErrConnection)
	require.ErrorIs(t, err, testutil.ErrTransient)

	info := h.ctl.Current()
	assert.Equal(t, core.SessionFailed, info.Status)
	assert.False(t, info.RetryPending)
	assert.Contains(t, info.LastError, "connection refused")
	assert.Equal(t, 3, h.engine.Opens("demo"))
	assert.Equal(t, "demo", h.ctl.ActiveProfile(), "failed session still holds its profile")

	require.NoError(t, h.ctl.Reset(context.Background()))
	assert.Equal(t, core.SessionDisconnected, h.ctl.Current().Status)
}

func TestController_InvalidProfileNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.FailOpen("demo", core.NewError(core.KindInvalidProfile, "demo", "unknown adapter"))

	err := h.ctl.Connect(context.Background(), "demo")
	require.ErrorIs(t, err, core.ErrInvalidProfile)
	assert.Equal(t, 1, h.engine.Opens("demo"))
	assert.Equal(t, core.SessionFailed, h.ctl.Current().Status)
}

func TestController_ResetIgnoresHealthySession(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctl.Connect(context.Background(), "demo"))
	require.NoError(t, h.ctl.Reset(context.Background()))
	assert.Equal(t, core.SessionConnected, h.ctl.Current().Status)
}

func TestController_LaterConnectWins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	release := h.engine.GateOpen("a")
	defer release()

	pa, err := h.ctl.ConnectAsync(ctx, "a")
	require.NoError(t, err)
	pb, err := h.ctl.ConnectAsync(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, pb.Wait(ctx))
	errA := pa.Wait(ctx)
	require.ErrorIs(t, errA, core.ErrConnection)
	assert.Contains(t, errA.Error(), "superseded")

	info := h.ctl.Current()
	assert.Equal(t, "b", info.ProfileName)
	assert.Equal(t, core.SessionConnected, info.Status)
	assert.Equal(t, uint64(2), info.Generation)
	assert.Equal(t, 1, h.engine.Live())
}

func TestController_LateHandleFromStaleAttemptIsClosed(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	var stale *testutil.FakeHandle
	h := newHarness(t, func(e *testutil.FakeEngine) Opener {
		return func(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error) {
			if p.Name == "a" {
				close(entered)
				<-gate // ignores ctx, like a driver stuck in a handshake
				a, err := e.Open(context.Background(), p)
				stale, _ = a.(*testutil.FakeHandle)
				return a, err
			}
			return e.Open(ctx, p)
		}
	})
	ctx := context.Background()

	pa, err := h.ctl.ConnectAsync(ctx, "a")
	require.NoError(t, err)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never reached the opener")
	}
	pb, err := h.ctl.ConnectAsync(ctx, "b")
	require.NoError(t, err)

	select {
	case <-pb.Done():
		t.Fatal("new attempt must wait for the old handle to be released")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, pb.Wait(ctx))
	require.ErrorIs(t, pa.Wait(ctx), core.ErrConnection)

	require.NotNil(t, stale)
	assert.True(t, stale.Closed())
	assert.Equal(t, 1, h.engine.Live())
	assert.Equal(t, "b", h.ctl.Current().ProfileName)
}

func TestController_SwitchReleasesOldHandleFirst(t *testing.T) {
	var liveAtOpen []int
	h := newHarness(t, func(e *testutil.FakeEngine) Opener {
		return func(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error) {
			liveAtOpen = append(liveAtOpen, e.Live())
			return e.Open(ctx, p)
		}
	})
	ctx := context.Background()

	require.NoError(t, h.ctl.Connect(ctx, "a"))
	require.NoError(t, h.ctl.Connect(ctx, "b"))

	assert.Equal(t, []int{0, 0}, liveAtOpen)
	assert.Equal(t, "b", h.ctl.Current().ProfileName)
}

func TestController_DisconnectWhileConnecting(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	release := h.engine.GateOpen("demo")
	defer release()

	p, err := h.ctl.ConnectAsync(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, core.SessionConnecting, h.ctl.Current().Status)

	require.NoError(t, h.ctl.Disconnect(ctx))
	assert.Equal(t, core.SessionDisconnected, h.ctl.Current().Status)
	require.ErrorIs(t, p.Wait(ctx), core.ErrConnection)
	assert.Equal(t, 0, h.engine.Live())
}

func TestController_DisconnectCancelsRetryBackoff(t *testing.T) {
	h := newHarness(t, nil)
	h.ctl.backoffBase = time.Hour
	h.engine.FailOpen("demo", testutil.ErrTransient)
	ctx := context.Background()

	p, err := h.ctl.ConnectAsync(ctx, "demo")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.ctl.Current().RetryPending }, time.Second, time.Millisecond)

	require.NoError(t, h.ctl.Disconnect(ctx))
	require.ErrorIs(t, p.Wait(ctx), core.ErrConnection)
	assert.Equal(t, core.SessionDisconnected, h.ctl.Current().Status)
	assert.Equal(t, 1, h.engine.Opens("demo"))
}

func TestController_ConcurrentConnectDisconnect(t *testing.T) {
	var violations atomic.Int32
	h := newHarness(t, func(e *testutil.FakeEngine) Opener {
		return func(ctx context.Context, p *core.DatabaseProfile) (core.Adapter, error) {
			if e.Live() != 0 {
				violations.Add(1)
			}
			return e.Open(ctx, p)
		}
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_ = h.ctl.Connect(ctx, "a")
			case 1:
				_ = h.ctl.Connect(ctx, "b")
			default:
				_ = h.ctl.Disconnect(ctx)
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, violations.Load(), "two engine handles were open at once")
	require.NoError(t, h.ctl.Disconnect(ctx))
	assert.Equal(t, 0, h.engine.Live())
	assert.Equal(t, core.SessionDisconnected, h.ctl.Current().Status)
}

func TestController_CloseRejectsConnect(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctl.Connect(context.Background(), "demo"))
	require.NoError(t, h.ctl.Close(context.Background()))

	assert.Equal(t, 0, h.engine.Live())
	err := h.ctl.Connect(context.Background(), "demo")
	require.Error(t, err)
	assert.Equal(t, core.KindConnection, core.KindOf(err))
}

func ExampleController_Current() {
	ctl := New(Options{})
	fmt.Println(ctl.Current().Status)
	// Output: disconnected
}
