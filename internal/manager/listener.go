package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/notify"
	"github.com/falmar/swarmman/internal/queue"
)

type ListenerConfig struct {
	Service  Service
	Queue    queue.Queue
	Notifier notify.Notifier
	// BatchSize is the number of events requested per poll.
	BatchSize int
	Logger    *slog.Logger
}

// Listener applies node lifecycle events pushed by workers.
type Listener struct {
	svc       Service
	queue     queue.Queue
	notifier  notify.Notifier
	batchSize int
	logger    *slog.Logger
}

func NewListener(cfg *ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewNop()
	}

	size := cfg.BatchSize
	if size <= 0 {
		size = 1
	}

	return &Listener{
		svc:       cfg.Service,
		queue:     cfg.Queue,
		notifier:  notifier,
		batchSize: size,
		logger:    logger,
	}
}

// Listen consumes events until ctx is cancelled.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := l.queue.Pop(ctx, l.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			l.logger.Error("failed to pop events", slog.Any("error", err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, event := range events {
			l.Handle(ctx, event)
		}
	}
}

// Handle applies one event and settles it on the queue: handled and
// permanently failed events are removed, retryable failures are released.
func (l *Listener) Handle(ctx context.Context, event *queue.Event) {
	logger := l.logger.With(
		slog.String("event_id", event.ID),
		slog.String("event", string(event.Name)),
		slog.String("node", event.Node),
		slog.Int("retry_count", event.RetryCount),
	)

	message, err := l.apply(ctx, event)
	switch {
	case err == nil:
		logger.Info("event handled")
		l.notify(ctx, logger, message)
	case cluster.IsRetryable(err):
		logger.Warn("event failed, will retry", slog.Any("error", err))

		if err := l.queue.Retry(ctx, event); err != nil {
			logger.Error("failed to release event", slog.Any("error", err))
		}
		return
	default:
		logger.Error("event failed", slog.Any("error", err))
		if !errors.Is(err, queue.ErrUnknownEvent) {
			l.notify(ctx, logger, fmt.Sprintf("%s event failed: %s", event.Name, err))
		}
	}

	if err := l.queue.Remove(ctx, event); err != nil {
		logger.Error("failed to remove event", slog.Any("error", err))
	}
}

func (l *Listener) apply(ctx context.Context, event *queue.Event) (string, error) {
	switch event.Name {
	case queue.NodeDrainEvent:
		var payload queue.NodeDrainPayload
		if err := event.Decode(&payload); err != nil {
			return "", fmt.Errorf("%w: %w", cluster.ErrValidation, err)
		}

		node, err := l.svc.GetNodeByAddress(ctx, payload.Address)
		if err != nil {
			return "", err
		}

		node, err = l.svc.UpdateAvailability(ctx, node.ID, string(cluster.AvailabilityDrain))
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("node %s (%s) drained: %s", node.Hostname, node.Address, payload.Reason), nil
	case queue.NodeLeaveEvent:
		var payload queue.NodeLeavePayload
		if err := event.Decode(&payload); err != nil {
			return "", fmt.Errorf("%w: %w", cluster.ErrValidation, err)
		}

		node, err := l.svc.GetNodeByAddress(ctx, payload.Address)
		if err != nil {
			return "", err
		}

		node, err = l.svc.Leave(ctx, node.ID)
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("node %s (%s) left its swarm: %s", node.Hostname, node.Address, payload.Reason), nil
	}

	return "", fmt.Errorf("%w: %s", queue.ErrUnknownEvent, event.Name)
}

func (l *Listener) notify(ctx context.Context, logger *slog.Logger, text string) {
	if err := l.notifier.Notify(ctx, text); err != nil {
		logger.Warn("failed to notify", slog.Any("error", err))
	}
}
