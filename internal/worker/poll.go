package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// RunPullLoop is the pull-mode task source: it polls the orchestrator's
// claim endpoint and fans out each claimed job's simulations with bounded
// parallelism. When a job was claimed the next poll happens immediately;
// otherwise the loop sleeps for the configured delay. Returns once ctx is
// cancelled and all in-flight simulations have drained.
func (r *Runtime) RunPullLoop(ctx context.Context) {
	r.Logger.Info("pull loop starting", "poll_delay", r.PollDelay.String())

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := r.Store.ClaimNextJob(ctx)
		if err != nil {
			r.Logger.Error("claim next job failed", "err", err)
			if !r.sleep(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !r.sleep(ctx) {
				return
			}
			continue
		}

		r.Logger.Info("claimed job", "job_id", job.ID, "simulations", job.Simulations)
		r.runJobSimulations(ctx, job)
	}
}

// runJobSimulations executes every simulation of one claimed job, each behind
// a gate slot. ctx cancellation stops new acquisitions; simulations already
// running drain to completion (Handle detaches from ctx).
func (r *Runtime) runJobSimulations(ctx context.Context, job *domain.Job) {
	var g errgroup.Group

	for i := 0; i < job.Simulations; i++ {
		if err := r.Gate.Acquire(ctx); err != nil {
			r.Logger.Info("stopping job fan-out", "job_id", job.ID, "err", err)
			break
		}

		task := domain.SimulationTask{
			JobID: job.ID,
			// Pull mode claims whole jobs; simulation IDs are derived
			// deterministically so redelivered claims overwrite the same
			// records instead of creating new ones.
			SimID:     fmt.Sprintf("%s-sim-%d", job.ID, i),
			SimIndex:  i,
			TotalSims: job.Simulations,
		}

		g.Go(func() error {
			defer r.Gate.Release()
			if d := r.Handle(ctx, task); d == Nack {
				// No bus to redeliver in pull mode; the orchestrator's
				// stale-RUNNING sweep requeues the simulation.
				r.Logger.Warn("simulation left for requeue",
					"job_id", task.JobID, "sim_id", task.SimID)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// sleep waits out the idle poll delay. Returns false when ctx was cancelled.
func (r *Runtime) sleep(ctx context.Context) bool {
	t := newTicker(r.PollDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
