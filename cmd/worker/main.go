package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/api"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/bus"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/config"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/gate"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/runner"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/worker"
)

// shutdownGrace is the hard deadline for a graceful shutdown. If draining
// hangs past it the process exits 1 and redelivery takes over.
const shutdownGrace = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := worker.EnableParentDeathSignal(); err != nil {
		logger.Warn("failed to enable parent-death signal", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 1. Configuration: env vars, optionally merged with Secret Manager.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if cfg.SecretsProject != "" {
		if err := config.MergeSecrets(ctx, cfg, logger); err != nil {
			logger.Warn("secret manager merge failed", "err", err)
		}
	}

	// 2. Worker identity, persisted across restarts.
	identity, err := config.ResolveIdentity(cfg)
	if err != nil {
		logger.Error("resolve worker identity failed", "err", err)
		os.Exit(1)
	}
	logger.Info("worker identity resolved",
		"worker_id", identity.ID,
		"worker_name", identity.Name)

	// 3. Container runtime must be reachable; fatal precondition, not retried.
	docker, err := runner.NewDocker(cfg.Image, logger)
	if err != nil {
		logger.Error("create docker runner failed", "err", err)
		os.Exit(1)
	}
	if err := docker.Ping(ctx); err != nil {
		logger.Error("container runtime unreachable", "err", err)
		os.Exit(1)
	}

	// 4. Best-effort image pre-pull; a cached image may suffice.
	pullCtx, pullCancel := context.WithTimeout(ctx, 5*time.Minute)
	if err := docker.PullImage(pullCtx); err != nil {
		logger.Warn("image pre-pull failed; relying on local cache",
			"image", cfg.Image, "err", err)
	}
	pullCancel()

	// 5. Capacity and the concurrency gate.
	g := gate.New(cfg.Capacity)
	logger.Info("capacity resolved", "capacity", g.Capacity())

	store := api.NewClient(cfg.APIBaseURL, cfg.AuthToken, cfg.WorkerSecret)

	rt := worker.New(identity.ID, identity.Name, store, docker, g, logger)
	rt.CancelPollInterval = cfg.CancelPollInterval
	rt.PollDelay = cfg.PollDelay
	rt.SimTimeout = cfg.SimTimeout

	// 6. Heartbeats run for the life of the process.
	hbCtx, hbCancel := context.WithCancel(context.Background())
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		rt.RunHeartbeat(hbCtx, cfg.HeartbeatInterval)
	}()

	// 7. Task source: push xor pull, chosen once at startup.
	sourceDone := make(chan struct{})
	switch cfg.Mode {
	case config.ModePush:
		sub, err := bus.NewSubscriber(ctx, cfg.PubSubProject, cfg.PubSubSubscription, g, rt, logger)
		if err != nil {
			logger.Error("create subscriber failed", "err", err)
			os.Exit(1)
		}
		go func() {
			defer close(sourceDone)
			defer sub.Close()
			if err := sub.Receive(ctx); err != nil {
				logger.Error("subscription receive ended", "err", err)
			}
		}()
	case config.ModePull:
		go func() {
			defer close(sourceDone)
			rt.RunPullLoop(ctx)
		}()
	}

	logger.Info("worker ready",
		"worker_id", identity.ID,
		"mode", cfg.Mode,
		"image", cfg.Image)

	<-ctx.Done()
	logger.Info("shutdown signal received; draining")

	// Re-entrant safe: a second signal lands on the already-cancelled ctx.
	// The hard deadline covers a drain that never finishes.
	timer := time.AfterFunc(shutdownGrace, func() {
		logger.Error("graceful shutdown timed out; forcing exit")
		os.Exit(1)
	})
	defer timer.Stop()

	// Stop heartbeats, send the final "updating" beat, then wait for the
	// task source to drain its in-flight simulations.
	hbCancel()
	<-hbDone
	rt.SendFinalHeartbeat()
	<-sourceDone

	logger.Info("shutdown complete")
}
