// Package runner executes one simulation as an isolated container. Containers
// are one-shot: created per simulation, never pooled or reused.
package runner

import (
	"context"
	"time"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// Spec describes one simulation run.
type Spec struct {
	JobID     string
	SimID     string
	SimIndex  int
	TotalSims int
	Decks     []domain.Deck
}

// Result is the outcome of one simulation container.
type Result struct {
	ExitCode int
	Duration time.Duration
	Log      string
	// Cancelled is set when the run was aborted via context cancellation.
	// The exit code is meaningless in that case.
	Cancelled bool
}

// Runner is the container-runtime seam. The Docker implementation is the real
// one; tests substitute fakes.
type Runner interface {
	// Ping verifies the container runtime is reachable. A failing Ping at
	// startup is fatal.
	Ping(ctx context.Context) error
	// PullImage pre-pulls the simulation image. Best effort: a locally
	// cached image may suffice when the pull fails.
	PullImage(ctx context.Context) error
	// Run executes one simulation and captures its combined output. When
	// ctx is cancelled the container is killed and the result is tagged
	// Cancelled instead of being mapped to an exit code.
	Run(ctx context.Context, spec Spec) (Result, error)
}
