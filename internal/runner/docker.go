package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker runs simulations via the Docker Engine API.
type Docker struct {
	cli    *client.Client
	image  string
	logger *slog.Logger
}

func NewDocker(imageRef string, logger *slog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli, image: imageRef, logger: logger}, nil
}

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

func (d *Docker) PullImage(ctx context.Context) error {
	rc, err := d.cli.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", d.image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull %s: %w", d.image, err)
	}
	return nil
}

// Run creates a fresh container for the simulation, waits for it to exit and
// captures its combined stdout/stderr. Deck payloads are handed to the image
// as a JSON env var; the image's entrypoint owns everything from there.
func (d *Docker) Run(ctx context.Context, spec Spec) (Result, error) {
	decksJSON, err := json.Marshal(spec.Decks)
	if err != nil {
		return Result{}, fmt.Errorf("marshal decks: %w", err)
	}

	cfg := &container.Config{
		Image: d.image,
		Env: []string{
			"JOB_ID=" + spec.JobID,
			"SIM_ID=" + spec.SimID,
			"SIM_INDEX=" + strconv.Itoa(spec.SimIndex),
			"TOTAL_SIMS=" + strconv.Itoa(spec.TotalSims),
			"DECKS_JSON=" + string(decksJSON),
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none", // simulations are untrusted workloads
	}

	// Creation and teardown run on a background context so a cancelled
	// simulation still gets its container removed.
	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}
	id := created.ID
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rmCancel()
		if err := d.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("container remove failed", "container_id", id, "err", err)
		}
	}()

	start := time.Now()
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)

	var exitCode int
	cancelled := false
	select {
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case err := <-errCh:
		if ctx.Err() != nil {
			cancelled = true
			d.kill(id)
		} else if err != nil {
			return Result{}, fmt.Errorf("wait for container: %w", err)
		}
	case <-ctx.Done():
		cancelled = true
		d.kill(id)
	}
	duration := time.Since(start)

	logText := d.collectLogs(id)

	return Result{
		ExitCode:  exitCode,
		Duration:  duration,
		Log:       logText,
		Cancelled: cancelled,
	}, nil
}

// kill sends SIGKILL on a background context; the deferred remove cleans up.
func (d *Docker) kill(id string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.cli.ContainerKill(killCtx, id, "SIGKILL"); err != nil {
		d.logger.Warn("container kill failed", "container_id", id, "err", err)
	}
}

// collectLogs fetches whatever output the container produced, demultiplexing
// the Docker log stream into one combined text. Uses a background context so
// a cancelled run still yields its partial log.
func (d *Docker) collectLogs(id string) string {
	logCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc, err := d.cli.ContainerLogs(logCtx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		d.logger.Warn("container logs unavailable", "container_id", id, "err", err)
		return ""
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		d.logger.Warn("container log copy failed", "container_id", id, "err", err)
	}
	return buf.String()
}
