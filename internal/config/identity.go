package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity is the worker's stable identity across restarts.
type Identity struct {
	ID   string
	Name string
}

// ResolveIdentity picks the worker ID in priority order: env override, the
// persisted ID file, then a freshly generated UUID written back to disk so
// the same machine keeps its identity across restarts. The name defaults to
// the hostname.
func ResolveIdentity(cfg *Config) (Identity, error) {
	id := cfg.WorkerIDOverride
	if id == "" {
		var err error
		id, err = loadOrCreateID(filepath.Join(cfg.StateDir, "worker-id"))
		if err != nil {
			return Identity{}, err
		}
	}

	name := cfg.WorkerName
	if name == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			short := id
			if len(short) > 8 {
				short = short[:8]
			}
			host = "worker-" + short
		}
		name = host
	}
	return Identity{ID: id, Name: name}, nil
}

func loadOrCreateID(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
		// Corrupt ID file: regenerate rather than carry garbage forever.
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist worker id: %w", err)
	}
	return id, nil
}
