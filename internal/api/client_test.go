package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// fakeOrchestrator records requests and serves canned jobs, mimicking the
// last-write-wins semantics of the real API.
type fakeOrchestrator struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	simStates map[string]domain.SimulationReport
	requests  []string
	failures  int // serve this many 500s before succeeding
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{
		jobs:      make(map[string]domain.Job),
		simStates: make(map[string]domain.SimulationReport),
	}
}

func (f *fakeOrchestrator) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/jobs/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.consumeFailure() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.mu.Lock()
		job, ok := f.jobs[r.PathValue("jobID")]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(job)
	})

	mux.HandleFunc("PATCH /api/jobs/{jobID}/simulations/{simID}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var rep domain.SimulationReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
		f.mu.Lock()
		f.simStates[r.PathValue("simID")] = rep // last write wins
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/jobs/{jobID}/logs/simulation", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /api/workers/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func (f *fakeOrchestrator) record(r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+" auth="+r.Header.Get("Authorization")+" secret="+r.Header.Get("X-Worker-Secret"))
	f.mu.Unlock()
}

func (f *fakeOrchestrator) consumeFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func TestGetJob(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.jobs["job-1"] = domain.Job{ID: "job-1", Simulations: 16, Status: domain.JobQueued}
	srv := httptest.NewServer(orch.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123", "sekrit")
	job, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 16, job.Simulations)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	assert.Contains(t, orch.requests[0], "auth=Bearer tok-123")
	assert.Contains(t, orch.requests[0], "secret=sekrit")
}

func TestGetJobNotFoundIsPermanent(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := httptest.NewServer(orch.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	_, err := c.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	assert.Len(t, orch.requests, 1, "404 must not be retried")
}

func TestGetJobRetriesTransientFailures(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.jobs["job-1"] = domain.Job{ID: "job-1"}
	orch.failures = 2
	srv := httptest.NewServer(orch.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	job, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	assert.Len(t, orch.requests, 3, "two 500s then success")
}

func TestReportSimulationIsIdempotent(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := httptest.NewServer(orch.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	rep := domain.SimulationReport{State: domain.SimCompleted, Winner: "Alice", WinningTurn: 7}

	require.NoError(t, c.ReportSimulation(context.Background(), "job-1", "sim-1", rep))
	require.NoError(t, c.ReportSimulation(context.Background(), "job-1", "sim-1", rep),
		"re-sending the same terminal report must not error")

	orch.mu.Lock()
	defer orch.mu.Unlock()
	assert.Equal(t, rep, orch.simStates["sim-1"], "state equivalent to sending it once")
}

func TestClaimNextJobEmptyQueue(t *testing.T) {
	orch := newFakeOrchestrator()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/next", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	_ = orch

	c := NewClient(srv.URL, "", "")
	job, err := c.ClaimNextJob(context.Background())
	require.NoError(t, err, "an empty queue is the normal idle state, not an error")
	assert.Nil(t, job)
}

func TestClaimNextJobReturnsJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/next", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Job{ID: "job-7", Simulations: 4})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	job, err := c.ClaimNextJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-7", job.ID)
}

func TestHeartbeat(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := httptest.NewServer(orch.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	err := c.Heartbeat(context.Background(), domain.Heartbeat{
		WorkerID: "w-1", Status: domain.WorkerIdle, Capacity: 4,
	})
	require.NoError(t, err)
}
