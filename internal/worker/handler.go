package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/api"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/gamelog"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/runner"
)

// Handle runs one simulation task end to end: fetch the job, report RUNNING,
// execute the container with a cancellation watcher alongside, report the
// terminal state, upload the log. Both transports (push and pull) converge
// here; the caller owns the gate slot.
//
// The returned Disposition distinguishes permanent outcomes (Ack — the
// orchestrator has a terminal state, or the message is poison) from transient
// ones (Nack — the bus should redeliver).
func (r *Runtime) Handle(ctx context.Context, task domain.SimulationTask) Disposition {
	// Detach from the transport's context: an in-flight simulation drains to
	// completion during graceful shutdown, and its terminal report must not
	// be cut off by the shutdown signal.
	ctx = context.WithoutCancel(ctx)

	log := r.Logger.With(
		"job_id", task.JobID,
		"sim_id", task.SimID,
		"sim_index", task.SimIndex,
	)

	job, err := r.Store.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			// Retrying cannot make a missing job appear.
			log.Warn("job not found; failing permanently")
			r.report(ctx, log, task, domain.SimulationReport{
				State:        domain.SimFailed,
				ErrorMessage: "job not found",
			})
			return Ack
		}
		log.Error("job fetch failed", "err", err)
		r.report(ctx, log, task, domain.SimulationReport{
			State:        domain.SimFailed,
			ErrorMessage: fmt.Sprintf("job fetch failed: %v", err),
		})
		return Nack
	}

	if job.Cancelled() {
		log.Info("job already cancelled; skipping simulation")
		r.report(ctx, log, task, domain.SimulationReport{State: domain.SimCancelled})
		return Ack
	}

	if err := validDecks(job); err != nil {
		log.Warn("job missing deck data; failing permanently", "err", err)
		r.report(ctx, log, task, domain.SimulationReport{
			State:        domain.SimFailed,
			ErrorMessage: err.Error(),
		})
		return Ack
	}

	// RUNNING must land before any terminal report. The orchestrator flips
	// the parent job QUEUED->RUNNING on the first one it sees.
	if err := r.Store.ReportSimulation(ctx, task.JobID, task.SimID, domain.SimulationReport{
		State:      domain.SimRunning,
		WorkerID:   r.WorkerID,
		WorkerName: r.WorkerName,
	}); err != nil {
		log.Error("running report failed", "err", err)
		return Nack
	}

	result, outcome := r.execute(ctx, log, task, job)

	switch outcome {
	case outcomeCancelled:
		log.Info("simulation cancelled", "duration_ms", result.Duration.Milliseconds())
		r.report(ctx, log, task, domain.SimulationReport{
			State:      domain.SimCancelled,
			WorkerID:   r.WorkerID,
			WorkerName: r.WorkerName,
			DurationMs: result.Duration.Milliseconds(),
		})
		r.uploadLog(ctx, log, task, result.Log)
		return Ack

	case outcomeTimeout:
		log.Warn("simulation timed out", "duration_ms", result.Duration.Milliseconds())
		r.report(ctx, log, task, domain.SimulationReport{
			State:        domain.SimFailed,
			WorkerID:     r.WorkerID,
			WorkerName:   r.WorkerName,
			DurationMs:   result.Duration.Milliseconds(),
			ErrorMessage: "simulation timed out",
		})
		r.uploadLog(ctx, log, task, result.Log)
		return Ack

	case outcomeRunnerError:
		// Could not even execute: treat as transient and let the bus retry.
		r.report(ctx, log, task, domain.SimulationReport{
			State:        domain.SimFailed,
			WorkerID:     r.WorkerID,
			WorkerName:   r.WorkerName,
			ErrorMessage: result.err.Error(),
		})
		return Nack

	case outcomeNonZeroExit:
		// The simulation itself failing is not a transport error.
		log.Warn("simulation exited non-zero", "exit_code", result.ExitCode)
		r.report(ctx, log, task, domain.SimulationReport{
			State:        domain.SimFailed,
			WorkerID:     r.WorkerID,
			WorkerName:   r.WorkerName,
			DurationMs:   result.Duration.Milliseconds(),
			ErrorMessage: fmt.Sprintf("simulation exited with code %d", result.ExitCode),
		})
		r.uploadLog(ctx, log, task, result.Log)
		return Ack
	}

	out := gamelog.Extract(result.Log)
	log.Info("simulation completed",
		"duration_ms", result.Duration.Milliseconds(),
		"winner", out.Winner,
		"winning_turn", out.WinningTurn)
	r.report(ctx, log, task, domain.SimulationReport{
		State:       domain.SimCompleted,
		WorkerID:    r.WorkerID,
		WorkerName:  r.WorkerName,
		DurationMs:  result.Duration.Milliseconds(),
		Winner:      out.Winner,
		WinningTurn: out.WinningTurn,
	})
	r.uploadLog(ctx, log, task, result.Log)
	return Ack
}

type execOutcome int

const (
	outcomeCompleted execOutcome = iota
	outcomeCancelled
	outcomeTimeout
	outcomeNonZeroExit
	outcomeRunnerError
)

type execResult struct {
	runner.Result
	err error
}

// execute runs the container with the cancellation watcher polling alongside.
// The watcher goroutine is stopped before execute returns, whatever the
// outcome, so no timer outlives its simulation.
func (r *Runtime) execute(ctx context.Context, log *slog.Logger, task domain.SimulationTask, job *domain.Job) (execResult, execOutcome) {
	execCtx := ctx
	var cancel context.CancelFunc
	if r.SimTimeout > 0 {
		execCtx, cancel = context.WithTimeout(execCtx, r.SimTimeout)
	} else {
		execCtx, cancel = context.WithCancel(execCtx)
	}
	defer cancel()

	watcher := r.watchCancellation(execCtx, task.JobID, cancel)
	defer watcher.stop()

	result, err := r.Runner.Run(execCtx, runner.Spec{
		JobID:     task.JobID,
		SimID:     task.SimID,
		SimIndex:  task.SimIndex,
		TotalSims: task.TotalSims,
		Decks:     job.Decks,
	})
	watcher.stop()

	switch {
	case err != nil:
		return execResult{err: err}, outcomeRunnerError
	case result.Cancelled && watcher.cancelled():
		return execResult{Result: result}, outcomeCancelled
	case result.Cancelled && errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return execResult{Result: result}, outcomeTimeout
	case result.Cancelled:
		// Cancelled without a watcher hit or deadline: only possible if the
		// caller's context died, which Handle detaches from. Report it as
		// cancelled rather than inventing an exit code.
		return execResult{Result: result}, outcomeCancelled
	case result.ExitCode != 0:
		return execResult{Result: result}, outcomeNonZeroExit
	default:
		return execResult{Result: result}, outcomeCompleted
	}
}

// report sends a lifecycle transition. Reports are idempotent last-write-wins
// updates; a failed terminal report is logged and the message disposition
// still stands, because redelivery re-runs the simulation anyway.
func (r *Runtime) report(ctx context.Context, log *slog.Logger, task domain.SimulationTask, rep domain.SimulationReport) {
	if err := r.Store.ReportSimulation(ctx, task.JobID, task.SimID, rep); err != nil {
		log.Error("status report failed", "state", string(rep.State), "err", err)
	}
}

// uploadLog ships the raw game log. Best effort: failure never alters the
// reported simulation state.
func (r *Runtime) uploadLog(ctx context.Context, log *slog.Logger, task domain.SimulationTask, logText string) {
	if logText == "" {
		return
	}
	if err := r.Store.UploadSimulationLog(ctx, task.JobID, task.SimID, logText); err != nil {
		log.Warn("log upload failed", "err", err)
	}
}

func validDecks(job *domain.Job) error {
	if len(job.Decks) != 4 {
		return fmt.Errorf("job has %d decks, want 4", len(job.Decks))
	}
	for i, d := range job.Decks {
		if d.Dck == "" {
			return fmt.Errorf("deck %d (%s) has no deck data", i, d.Name)
		}
	}
	return nil
}
