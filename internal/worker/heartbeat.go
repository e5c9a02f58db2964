package worker

import (
	"context"
	"time"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// RunHeartbeat reports the worker's identity, capacity and load every
// interval so the fleet view can distinguish live workers from crashed ones.
// Send failures are logged only; a heartbeat never alters simulation or job
// state. Stops cleanly on context cancellation. Run in a goroutine alongside
// the task source.
func (r *Runtime) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := newTicker(interval)
	defer ticker.Stop()

	// One immediate beat so a fresh worker shows up without waiting a full
	// interval.
	r.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Runtime) beat(ctx context.Context) {
	status := domain.WorkerIdle
	if r.Gate.Active() > 0 {
		status = domain.WorkerBusy
	}
	if err := r.Store.Heartbeat(ctx, r.heartbeat(status)); err != nil {
		r.Logger.Error("heartbeat failed", "err", err)
	}
}

// SendFinalHeartbeat reports status "updating" during graceful shutdown,
// bounded by a short timeout, so the fleet view shows a restart instead of a
// stale busy/offline gap. Best effort.
func (r *Runtime) SendFinalHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Store.Heartbeat(ctx, r.heartbeat(domain.WorkerUpdating)); err != nil {
		r.Logger.Warn("final heartbeat failed", "err", err)
	}
}

func (r *Runtime) heartbeat(status domain.WorkerStatus) domain.Heartbeat {
	return domain.Heartbeat{
		WorkerID:          r.WorkerID,
		WorkerName:        r.WorkerName,
		Status:            status,
		Capacity:          r.Gate.Capacity(),
		ActiveSimulations: r.Gate.Active(),
		UptimeMs:          r.Uptime().Milliseconds(),
	}
}
