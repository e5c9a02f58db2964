// Package config resolves worker configuration from the environment, with an
// optional Google Secret Manager merge for deployments that don't inject
// secrets as env vars. Env vars always win.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Task source modes. Selected once at startup, never switched at runtime.
const (
	ModePush = "push"
	ModePull = "pull"
)

type Config struct {
	// Orchestrator API.
	APIBaseURL   string
	AuthToken    string
	WorkerSecret string

	// Worker identity.
	WorkerIDOverride string
	WorkerName       string
	StateDir         string

	// Simulation container.
	Image string

	// Task source.
	Mode               string
	PubSubProject      string
	PubSubSubscription string
	PollDelay          time.Duration

	// Optional remote config source.
	SecretsProject string

	// Execution.
	Capacity           int
	CancelPollInterval time.Duration
	HeartbeatInterval  time.Duration
	SimTimeout         time.Duration // 0 disables the per-simulation deadline
}

// Load reads configuration from the environment. Only API_URL and SIM_IMAGE
// are required up front; push mode additionally validates its Pub/Sub
// settings.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:         os.Getenv("API_URL"),
		AuthToken:          os.Getenv("AUTH_TOKEN"),
		WorkerSecret:       os.Getenv("WORKER_SECRET"),
		WorkerIDOverride:   os.Getenv("WORKER_ID"),
		WorkerName:         os.Getenv("WORKER_NAME"),
		StateDir:           envOr("STATE_DIR", defaultStateDir()),
		Image:              os.Getenv("SIM_IMAGE"),
		Mode:               envOr("TASK_SOURCE", ModePush),
		PubSubProject:      os.Getenv("PUBSUB_PROJECT"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		SecretsProject:     os.Getenv("SECRETS_PROJECT"),
		PollDelay:          envSeconds("POLL_DELAY_SECONDS", 3*time.Second),
		CancelPollInterval: envSeconds("CANCEL_POLL_SECONDS", 5*time.Second),
		HeartbeatInterval:  envSeconds("HEARTBEAT_SECONDS", 15*time.Second),
		SimTimeout:         envSeconds("SIM_TIMEOUT_SECONDS", 0),
		Capacity:           envInt("WORKER_CAPACITY", defaultCapacity()),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_URL is required")
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("SIM_IMAGE is required")
	}
	switch cfg.Mode {
	case ModePush:
		if cfg.PubSubProject == "" || cfg.PubSubSubscription == "" {
			return nil, fmt.Errorf("push mode requires PUBSUB_PROJECT and PUBSUB_SUBSCRIPTION")
		}
	case ModePull:
		// Pull mode needs nothing beyond the API.
	default:
		return nil, fmt.Errorf("TASK_SOURCE must be %q or %q, got %q", ModePush, ModePull, cfg.Mode)
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	return cfg, nil
}

// defaultCapacity derives the simulation slot count from host resources.
// Simulations are JVM-heavy, so half the logical CPUs is a sane default.
func defaultCapacity() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.sim-worker"
	}
	return "/var/lib/sim-worker"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
