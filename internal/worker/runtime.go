// Package worker is the simulation worker runtime: it consumes simulation
// tasks (pushed from Pub/Sub or pulled from the orchestrator), executes each
// one in an isolated container bounded by the concurrency gate, and reports
// lifecycle transitions and heartbeats back to the orchestrator.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/gate"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/runner"
)

// Store is the worker's view of the orchestrator API. *api.Client implements
// it; tests use in-memory fakes.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimNextJob(ctx context.Context) (*domain.Job, error)
	ReportSimulation(ctx context.Context, jobID, simID string, rep domain.SimulationReport) error
	UploadSimulationLog(ctx context.Context, jobID, simID, logText string) error
	Heartbeat(ctx context.Context, hb domain.Heartbeat) error
}

// Disposition tells the transport what to do with the message after the
// handler returns.
type Disposition int

const (
	// Ack: the task reached a terminal state (or is poison); never redeliver.
	Ack Disposition = iota
	// Nack: transient failure or shutdown; request redelivery with backoff.
	Nack
)

// Runtime owns the worker's identity, capacity and shared state. One Runtime
// per process; the task handler, heartbeat loop and shutdown path all hang
// off it instead of module-level globals.
type Runtime struct {
	WorkerID   string
	WorkerName string

	Store  Store
	Runner runner.Runner
	Gate   *gate.Gate
	Logger *slog.Logger

	// CancelPollInterval is how often a running simulation re-checks its
	// job for external cancellation.
	CancelPollInterval time.Duration
	// PollDelay is the pull-mode idle delay when no job was claimed.
	PollDelay time.Duration
	// SimTimeout, when non-zero, bounds a single simulation's wall-clock
	// duration. An expired deadline is reported FAILED, not CANCELLED.
	SimTimeout time.Duration

	startedAt time.Time
}

func New(workerID, workerName string, store Store, r runner.Runner, g *gate.Gate, logger *slog.Logger) *Runtime {
	return &Runtime{
		WorkerID:           workerID,
		WorkerName:         workerName,
		Store:              store,
		Runner:             r,
		Gate:               g,
		Logger:             logger,
		CancelPollInterval: 5 * time.Second,
		PollDelay:          3 * time.Second,
		startedAt:          time.Now(),
	}
}

// Uptime is the time since the runtime was constructed, reported in
// heartbeats.
func (r *Runtime) Uptime() time.Duration {
	return time.Since(r.startedAt)
}

// newTicker clamps non-positive intervals so a zero-valued interval cannot
// panic time.NewTicker.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = time.Second
	}
	return time.NewTicker(d)
}
