package bus

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/domain"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/gate"
	"github.com/TytaniumDev/MagicBracketSimulator-sub001/internal/worker"
)

// TaskHandler is what the subscriber drives; *worker.Runtime implements it.
type TaskHandler interface {
	Handle(ctx context.Context, task domain.SimulationTask) worker.Disposition
}

// acker is the slice of *pubsub.Message the dispatcher needs. Tests
// substitute fakes to assert ack/nack decisions.
type acker interface {
	Ack()
	Nack()
}

// Subscriber consumes simulation tasks from a Pub/Sub subscription.
//
// Concurrency is capped twice: MaxOutstandingMessages keeps the bus from
// delivering more than capacity messages at once, and TryAcquire on the gate
// nacks immediately under unexpected over-delivery. Both caps derive from the
// same capacity value so they cannot drift apart.
type Subscriber struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	gate    *gate.Gate
	handler TaskHandler
	logger  *slog.Logger
}

func NewSubscriber(ctx context.Context, projectID, subscription string, g *gate.Gate, h TaskHandler, logger *slog.Logger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = g.Capacity()
	sub.ReceiveSettings.NumGoroutines = 1

	return &Subscriber{
		client:  client,
		sub:     sub,
		gate:    g,
		handler: h,
		logger:  logger,
	}, nil
}

// Receive blocks, delivering messages to the task handler until ctx is
// cancelled. Pub/Sub waits for outstanding callbacks before returning, so a
// graceful shutdown drains in-flight simulations.
func (s *Subscriber) Receive(ctx context.Context) error {
	s.logger.Info("subscription receiving",
		"subscription", s.sub.String(),
		"max_outstanding", s.gate.Capacity())
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		s.dispatch(ctx, m.Data, m)
	})
}

// Close releases the underlying Pub/Sub client. Call after Receive returns.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// dispatch maps one raw message onto the per-task handler and its disposition
// back onto ack/nack. Factored off *pubsub.Message so the decision table is
// testable without a real bus.
func (s *Subscriber) dispatch(ctx context.Context, data []byte, m acker) {
	task, kind, err := Decode(data)
	if err != nil {
		// Poison message: redelivery can never fix it.
		s.logger.Warn("dropping malformed message", "err", err)
		m.Ack()
		return
	}
	if kind == KindLegacyJobCreated {
		s.logger.Info("acknowledging legacy job-created message")
		m.Ack()
		return
	}

	// Second line of defense behind MaxOutstandingMessages: if the gate is
	// full the message goes straight back to the bus instead of queueing in
	// memory.
	if !s.gate.TryAcquire() {
		s.logger.Warn("gate full; releasing message for redelivery",
			"job_id", task.JobID, "sim_id", task.SimID)
		m.Nack()
		return
	}
	defer s.gate.Release()

	switch s.handler.Handle(ctx, task) {
	case worker.Ack:
		m.Ack()
	case worker.Nack:
		m.Nack()
	}
}
