// Package api is the HTTP client for the orchestrator, the single source of
// truth for job and simulation state. Workers never talk to each other; they
// coordinate implicitly through this API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
)

// ErrNotFound is returned when the orchestrator has no record of the
// requested job. Callers treat it as permanent: retrying cannot make a
// missing job appear.
var ErrNotFound = errors.New("api: not found")

// Client talks to the orchestrator REST API with bearer-token and worker
// shared-secret authentication.
type Client struct {
	baseURL      string
	authToken    string
	workerSecret string
	httpClient   *http.Client
}

func NewClient(baseURL, authToken, workerSecret string) *Client {
	return &Client{
		baseURL:      baseURL,
		authToken:    authToken,
		workerSecret: workerSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// retryPolicy bounds transient-failure retries for reads and status reports.
// Status updates are last-write-wins upserts on the orchestrator side, so a
// duplicate delivery after an ambiguous failure is harmless.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(b, ctx)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.workerSecret != "" {
		req.Header.Set("X-Worker-Secret", c.workerSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client errors won't heal on retry.
		return backoff.Permanent(fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// GetJob fetches a job's decks and current status.
func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := backoff.Retry(func() error {
		return c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &job)
	}, retryPolicy(ctx))
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNextJob asks the orchestrator for the next queued job (pull mode).
// Returns nil, nil when the queue is empty.
func (c *Client) ClaimNextJob(ctx context.Context) (*domain.Job, error) {
	var job domain.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/next", nil, &job)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

// ReportSimulation PATCHes a simulation's lifecycle state. Idempotent: the
// orchestrator treats it as a last-write-wins update, so at-least-once
// delivery is safe.
func (c *Client) ReportSimulation(ctx context.Context, jobID, simID string, rep domain.SimulationReport) error {
	path := fmt.Sprintf("/api/jobs/%s/simulations/%s", jobID, simID)
	return backoff.Retry(func() error {
		return c.do(ctx, http.MethodPatch, path, rep, nil)
	}, retryPolicy(ctx))
}

// UploadSimulationLog ships one raw game log to the orchestrator. Best
// effort, no retries: a lost log never changes the reported simulation state.
func (c *Client) UploadSimulationLog(ctx context.Context, jobID, simID, logText string) error {
	path := fmt.Sprintf("/api/jobs/%s/logs/simulation", jobID)
	body := map[string]string{"simId": simID, "log": logText}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Heartbeat reports the worker's identity, capacity and load. No retries;
// the next tick supersedes a lost one.
func (c *Client) Heartbeat(ctx context.Context, hb domain.Heartbeat) error {
	return c.do(ctx, http.MethodPost, "/api/workers/heartbeat", hb, nil)
}
