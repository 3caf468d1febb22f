package vault

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultReentryWait bounds how long an operation waits behind one that is
// stuck in an external call.
const DefaultReentryWait = 5 * time.Second

type flightKey struct{}

// flight marks a context as belonging to an operation in progress.
type flight struct {
	owner  *guard
	active atomic.Bool
}

// guard serializes operations and protects the ledger state.
//
// Operations hold ops for their whole run. A context carrying an active
// flight of the same guard identifies a call made from inside that operation
// and fails at once. A call that arrives with any other context while the
// holder has run for longer than wait is treated as reentrant as well, since
// the holder can only be that slow while blocked in a gateway or oracle call.
//
// state is write-locked only around effects and their rollback, never across
// external calls, so views never wait on a transfer.
type guard struct {
	ops   chan struct{}
	state sync.RWMutex
	wait  time.Duration
	// heldSince is the unix nano time ops was taken, 0 while free.
	heldSince atomic.Int64
}

func newGuard(wait time.Duration) *guard {
	if wait <= 0 {
		wait = DefaultReentryWait
	}
	return &guard{ops: make(chan struct{}, 1), wait: wait}
}

func (g *guard) inside(ctx context.Context) bool {
	f, ok := ctx.Value(flightKey{}).(*flight)
	return ok && f.owner == g && f.active.Load()
}

// enter waits until no other operation runs and returns a marked context.
func (g *guard) enter(ctx context.Context) (context.Context, func(), error) {
	if g.inside(ctx) {
		return nil, nil, ErrReentrantCall
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNotStarted, err)
	}
	if err := g.acquire(ctx); err != nil {
		return nil, nil, err
	}
	// the caller may have given up while queued
	if err := ctx.Err(); err != nil {
		g.unlock()
		return nil, nil, fmt.Errorf("%w: %w", ErrNotStarted, err)
	}

	f := &flight{owner: g}
	f.active.Store(true)
	return context.WithValue(ctx, flightKey{}, f), func() {
		f.active.Store(false)
		g.unlock()
	}, nil
}

func (g *guard) acquire(ctx context.Context) error {
	for {
		timer := time.NewTimer(g.untilStalled())
		select {
		case g.ops <- struct{}{}:
			timer.Stop()
			g.heldSince.Store(time.Now().UnixNano())
			return nil
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrNotStarted, ctx.Err())
		case <-timer.C:
			if g.stalled() {
				return fmt.Errorf("%w: vault busy in an external call for over %s", ErrReentrantCall, g.wait)
			}
		}
	}
}

func (g *guard) unlock() {
	g.heldSince.Store(0)
	<-g.ops
}

func (g *guard) untilStalled() time.Duration {
	since := g.heldSince.Load()
	if since == 0 {
		return g.wait
	}
	return max(time.Until(time.Unix(0, since).Add(g.wait)), 0)
}

func (g *guard) stalled() bool {
	since := g.heldSince.Load()
	return since != 0 && time.Since(time.Unix(0, since)) >= g.wait
}

// apply runs fn with the state write-locked. Only the operation holding ops
// may call it, and fn must not make external calls.
func (g *guard) apply(fn func() error) error {
	g.state.Lock()
	defer g.state.Unlock()
	return fn()
}

// view read-locks the state. The holder of ops only writes inside apply, so
// views from inside an operation do not block either.
func (g *guard) view() func() {
	g.state.RLock()
	return g.state.RUnlock
}
