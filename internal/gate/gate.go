// Package gate bounds how many simulations one worker process runs at once.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting semaphore sized to the worker's capacity. The pull path
// blocks in Acquire so the worker claims exactly as many tasks as it has free
// slots; the push path uses TryAcquire so a full worker releases the message
// back to the bus instead of queueing it in memory.
//
// The active count is maintained alongside the semaphore so the heartbeat
// loop can report it without any extra bookkeeping in the task handler.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	active   atomic.Int64
}

func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done. Waiters are served in
// FIFO order.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.active.Add(1)
	return nil
}

// TryAcquire takes a slot without blocking. Returns false when the worker is
// already running at capacity.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.active.Add(1)
	return true
}

// Release returns a slot. Must be called exactly once per successful
// Acquire/TryAcquire.
func (g *Gate) Release() {
	g.active.Add(-1)
	g.sem.Release(1)
}

// Active returns the number of slots currently held.
func (g *Gate) Active() int {
	return int(g.active.Load())
}

func (g *Gate) Capacity() int {
	return g.capacity
}
