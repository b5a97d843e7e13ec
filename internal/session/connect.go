package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// run drives one connect attempt to Connected or Failed.
func (c *Controller) run(st *attempt, prev *attempt, owner bool) {
	defer close(st.done)

	if prev != nil {
		if owner {
			c.teardown(prev)
		} else {
			select {
			case <-prev.torndown:
			case <-st.ctx.Done():
			}
		}
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(c.backoffBase))
	err := retry.Do(st.ctx, backoff, func(ctx context.Context) error {
		if !c.beginTry(st) {
			return errSuperseded
		}

		handle, err := c.opener(ctx, st.profile)
		if err != nil {
			if ctx.Err() != nil || core.KindOf(err) == core.KindInvalidProfile {
				return err
			}
			if c.noteFailure(st, err) {
				return retry.RetryableError(err)
			}
			return err
		}

		if !c.commit(st, handle) {
			if cerr := handle.Close(); cerr != nil {
				c.logger.Warn("closing stale handle failed", slog.String("error", cerr.Error()))
			}
			return errSuperseded
		}
		return nil
	})

	switch {
	case err == nil:
		c.logger.Info("connected",
			slog.String("profile", st.profile.Name),
			slog.Uint64("generation", st.gen))
	case errors.Is(err, errSuperseded) || st.ctx.Err() != nil:
		st.result = superseded(st)
		c.logger.Debug("connect attempt discarded", slog.Uint64("generation", st.gen))
	default:
		st.result = c.fail(st, err)
	}
}

// beginTry marks the start of one open attempt. It returns false when st has
// been superseded.
func (c *Controller) beginTry(st *attempt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(st) {
		return false
	}
	st.tries++
	st.status = core.SessionConnecting
	st.retryPending = false
	c.publishLocked()
	return true
}

// noteFailure records a transient open failure. While retries remain the
// session shows Failed with RetryPending set. It reports whether a retry
// will follow.
func (c *Controller) noteFailure(st *attempt, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(st) {
		return false
	}
	more := st.tries <= c.maxRetries
	st.lastErr = err
	if more {
		st.status = core.SessionFailed
		st.retryPending = true
		c.publishLocked()
	}
	c.logger.Warn("connect attempt failed",
		slog.String("profile", st.profile.Name),
		slog.Uint64("generation", st.gen),
		slog.Int("attempt", st.tries),
		slog.Bool("retry", more),
		slog.String("error", err.Error()))
	return more
}

// commit installs handle as the session's engine handle unless st is stale.
func (c *Controller) commit(st *attempt, handle core.Adapter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(st) {
		return false
	}
	st.handle = handle
	st.caps = handle.Capabilities()
	st.status = core.SessionConnected
	st.retryPending = false
	st.lastErr = nil
	st.connectedAt = time.Now().UTC()
	c.publishLocked()
	return true
}

// fail settles st as permanently Failed and returns the caller-facing error.
func (c *Controller) fail(st *attempt, err error) error {
	out := err
	if k := core.KindOf(err); k != core.KindInvalidProfile && k != core.KindConnection {
		out = core.WrapError(core.KindConnection, st.profile.Name, err, "connect failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.staleLocked(st) {
		st.status = core.SessionFailed
		st.retryPending = false
		st.lastErr = out
		c.publishLocked()
	}
	c.logger.Error("connect failed",
		slog.String("profile", st.profile.Name),
		slog.Uint64("generation", st.gen),
		slog.Int("attempts", st.tries),
		slog.String("error", err.Error()))
	return out
}
