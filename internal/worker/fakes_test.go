package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/api"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/gate"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/runner"
)

var errTransient = errors.New("connection refused")

// fakeStore is an in-memory orchestrator. All mutators are safe for
// concurrent use so e2e tests can hammer it from several simulations.
type fakeStore struct {
	mu sync.Mutex

	jobs       map[string]*domain.Job
	getErr     error
	reportErr  error
	uploadErr  error
	claimQueue []*domain.Job

	reports    map[string][]domain.SimulationReport // keyed by simID
	uploads    map[string]string
	heartbeats []domain.Heartbeat
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[string]*domain.Job),
		reports: make(map[string][]domain.SimulationReport),
		uploads: make(map[string]string),
	}
}

func (s *fakeStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, api.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ClaimNextJob(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.claimQueue) == 0 {
		return nil, nil
	}
	job := s.claimQueue[0]
	s.claimQueue = s.claimQueue[1:]
	return job, nil
}

func (s *fakeStore) ReportSimulation(ctx context.Context, jobID, simID string, rep domain.SimulationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reportErr != nil {
		return s.reportErr
	}
	s.reports[simID] = append(s.reports[simID], rep)
	return nil
}

func (s *fakeStore) UploadSimulationLog(ctx context.Context, jobID, simID, logText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[simID] = logText
	return nil
}

func (s *fakeStore) Heartbeat(ctx context.Context, hb domain.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, hb)
	return nil
}

func (s *fakeStore) setJob(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *fakeStore) setJobStatus(jobID string, status domain.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
	}
}

// states returns the sequence of reported states for one simulation.
func (s *fakeStore) states(simID string) []domain.SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var states []domain.SimState
	for _, rep := range s.reports[simID] {
		states = append(states, rep.State)
	}
	return states
}

func (s *fakeStore) lastReport(simID string) (domain.SimulationReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reps := s.reports[simID]
	if len(reps) == 0 {
		return domain.SimulationReport{}, false
	}
	return reps[len(reps)-1], true
}

// fakeRunner scripts container outcomes and records concurrency.
type fakeRunner struct {
	mu sync.Mutex

	exitCode int
	logText  string
	runErr   error
	// blockUntilCancel makes Run wait for ctx cancellation, mimicking a
	// container killed mid-game.
	blockUntilCancel bool
	delay            time.Duration

	runs     int
	inFlight int
	peak     int
}

func (f *fakeRunner) Ping(ctx context.Context) error      { return nil }
func (f *fakeRunner) PullImage(ctx context.Context) error { return nil }

func (f *fakeRunner) Run(ctx context.Context, spec runner.Spec) (runner.Result, error) {
	f.mu.Lock()
	f.runs++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	runErr, exitCode, logText := f.runErr, f.exitCode, f.logText
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if runErr != nil {
		return runner.Result{}, runErr
	}

	if f.blockUntilCancel {
		<-ctx.Done()
		return runner.Result{Cancelled: true, Log: logText, Duration: time.Millisecond}, nil
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return runner.Result{Cancelled: true, Log: logText, Duration: time.Millisecond}, nil
		}
	}

	return runner.Result{ExitCode: exitCode, Log: logText, Duration: 5 * time.Millisecond}, nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeRunner) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func testJob(id string) *domain.Job {
	return &domain.Job{
		ID: id,
		Decks: []domain.Deck{
			{Name: "Deck 1", Dck: "[main]\n1 Island"},
			{Name: "Deck 2", Dck: "[main]\n1 Swamp"},
			{Name: "Deck 3", Dck: "[main]\n1 Forest"},
			{Name: "Deck 4", Dck: "[main]\n1 Mountain"},
		},
		Simulations: 4,
		Parallelism: 2,
		Status:      domain.JobQueued,
	}
}

func testRuntime(t *testing.T, store Store, r runner.Runner, capacity int) *Runtime {
	t.Helper()
	rt := New("worker-1", "test-worker", store, r, gate.New(capacity),
		slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})))
	rt.CancelPollInterval = 10 * time.Millisecond
	rt.PollDelay = 10 * time.Millisecond
	return rt
}

// testWriter routes runtime logs through t.Logf so failures show context.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
