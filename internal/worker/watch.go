package worker

import (
	"context"
	"sync"
	"sync/atomic"
)

// cancelWatcher polls the job's status while a simulation runs and cancels
// the execution context when the job is cancelled externally. Detection
// latency is bounded by the poll interval; this is cooperative cancellation,
// not instantaneous.
type cancelWatcher struct {
	hit      atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// watchCancellation starts the watcher goroutine. The caller must invoke
// stop() as soon as the simulation's own execution returns, whatever the
// outcome, so the ticker never outlives its simulation.
func (r *Runtime) watchCancellation(ctx context.Context, jobID string, cancel context.CancelFunc) *cancelWatcher {
	w := &cancelWatcher{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		ticker := newTicker(r.CancelPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := r.Store.GetJob(ctx, jobID)
				if err != nil {
					r.Logger.Warn("cancellation check failed", "job_id", jobID, "err", err)
					continue
				}
				if job.Cancelled() {
					w.hit.Store(true)
					cancel()
					return
				}
			}
		}
	}()
	return w
}

// stop tears the watcher down and waits for its goroutine to exit. Safe to
// call more than once.
func (w *cancelWatcher) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

// cancelled reports whether the watcher observed an external cancellation.
// Distinguishes a user cancel from a timeout when both cancel the same
// context.
func (w *cancelWatcher) cancelled() bool {
	return w.hit.Load()
}
