package inference

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// admission is the single in-flight generation slot. Waiters are served in
// arrival order.
type admission struct {
	sem      *semaphore.Weighted
	pending  atomic.Int64 // waiting + in flight
	maxDepth int
	wait     time.Duration
}

func newAdmission(maxDepth int, wait time.Duration) *admission {
	return &admission{sem: semaphore.NewWeighted(1), maxDepth: maxDepth, wait: wait}
}

// acquire joins the queue and blocks until the slot is free. The returned
// release func must be called exactly once.
func (a *admission) acquire(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := a.pending.Add(1)
	if a.maxDepth > 0 && n > int64(a.maxDepth)+1 {
		a.leave()
		return nil, ErrTooBusy
	}
	queueDepth.Set(float64(n))

	waitCtx := ctx
	if a.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.wait)
		defer cancel()
	}
	start := time.Now()
	if err := a.sem.Acquire(waitCtx, 1); err != nil {
		a.leave()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooBusy
	}
	queueWaitSeconds.Observe(time.Since(start).Seconds())

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			a.sem.Release(1)
			a.leave()
		}
	}, nil
}

func (a *admission) leave() {
	queueDepth.Set(float64(a.pending.Add(-1)))
}

// depth reports requests waiting for or holding the slot.
func (a *admission) depth() int { return int(a.pending.Load()) }
