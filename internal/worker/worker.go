package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/falmar/swarmman/internal/ec2metadata"
	"github.com/falmar/swarmman/internal/notify"
	"github.com/falmar/swarmman/internal/queue"
)

type Worker interface {
	// Listen polls the instance metadata until the first interruption
	// notice, enqueues one drain event for the node and returns.
	Listen(ctx context.Context) error
}

type Config struct {
	Metadata ec2metadata.Service
	Queue    queue.Queue
	Notifier notify.Notifier

	// Address is the node address as registered in swarmman.
	Address        string
	ListenInterval time.Duration
	Logger         *slog.Logger
}

type worker struct {
	metadata ec2metadata.Service
	queue    queue.Queue
	notifier notify.Notifier
	address  string
	interval time.Duration
	logger   *slog.Logger
}

type notice struct {
	kind   queue.InterruptType
	time   time.Time
	reason string
}

func NewWorker(cfg *Config) Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewNop()
	}

	return &worker{
		metadata: cfg.Metadata,
		queue:    cfg.Queue,
		notifier: notifier,
		address:  cfg.Address,
		interval: cfg.ListenInterval,
		logger:   logger,
	}
}

func (w *worker) Listen(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notices := make(chan notice, 2)

	go w.poll(pollCtx, notices, w.spotInterruption)
	go w.poll(pollCtx, notices, w.asgReBalance)

	var n notice
	select {
	case <-ctx.Done():
		return nil
	case n = <-notices:
		cancel()
	}

	w.logger.Warn("interruption notice received",
		slog.String("type", string(n.kind)),
		slog.Time("time", n.time),
		slog.String("address", w.address),
	)

	event, err := queue.NewEvent(queue.NodeDrainEvent, queue.NodeDrainPayload{
		Address:    w.address,
		Reason:     n.reason,
		Type:       n.kind,
		Time:       n.time,
		InstanceID: w.instanceID(ctx),
	})
	if err != nil {
		return err
	}

	if err := w.push(ctx, event); err != nil {
		return err
	}

	if err := w.notifier.Notify(ctx, fmt.Sprintf("%s: %s; node %s will be drained", n.kind, n.reason, w.address)); err != nil {
		w.logger.Warn("failed to notify", slog.Any("error", err))
	}

	return nil
}

// push retries every interval until the event is accepted or ctx ends.
func (w *worker) push(ctx context.Context, event *queue.Event) error {
	for {
		err := w.queue.Push(ctx, event, 0)
		if err == nil {
			w.logger.Info("drain event enqueued", slog.String("event_id", event.ID))
			return nil
		}

		w.logger.Error("failed to enqueue drain event", slog.Any("error", err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("drain event %s not enqueued: %w", event.ID, err)
		case <-time.After(w.interval):
		}
	}
}

func (w *worker) instanceID(ctx context.Context) string {
	token, err := w.metadata.GetToken(ctx)
	if err != nil {
		return ""
	}

	id, err := w.metadata.GetInstanceID(ctx, token)
	if err != nil {
		w.logger.Debug("failed to get instance id", slog.Any("error", err))
		return ""
	}

	return id
}

type check func(ctx context.Context, token string) (*notice, error)

func (w *worker) poll(ctx context.Context, notices chan<- notice, fn check) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}

		token, err := w.metadata.GetToken(ctx)
		if err != nil {
			w.logger.Warn("failed to get metadata token", slog.Any("error", err))
			continue
		}

		n, err := fn(ctx, token)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.Warn("failed to check metadata", slog.Any("error", err))
			}
			continue
		}
		if n == nil {
			continue
		}

		notices <- *n
		return
	}
}

func (w *worker) spotInterruption(ctx context.Context, token string) (*notice, error) {
	res, err := w.metadata.GetSpotInterruption(ctx, token)
	if errors.Is(err, ec2metadata.ErrInterruptionNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &notice{
		kind:   queue.SpotInterruption,
		time:   res.Time,
		reason: "spot instance " + res.Action,
	}, nil
}

func (w *worker) asgReBalance(ctx context.Context, token string) (*notice, error) {
	res, err := w.metadata.GetASGReBalance(ctx, token)
	if errors.Is(err, ec2metadata.ErrRebalanceNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &notice{
		kind:   queue.ASGRebalance,
		time:   res.Time,
		reason: "rebalance recommended",
	}, nil
}
