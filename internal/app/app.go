package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/falmar/swarmman/internal/config"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
	"github.com/falmar/swarmman/internal/lifecycle"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/falmar/swarmman/internal/manager/middleware"
	"github.com/falmar/swarmman/internal/notify"
	"github.com/falmar/swarmman/internal/queue"
	"github.com/falmar/swarmman/internal/store"
	"github.com/falmar/swarmman/internal/utilization"
	"github.com/falmar/swarmman/internal/view"
	"github.com/prometheus/client_golang/prometheus"
)

const svcName = "swarmman"

// App holds the wired components shared by the commands.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Service  manager.Service
	Registry *prometheus.Registry

	repos *store.Repositories
}

func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// New builds the domain service from cfg. A nil dialer uses the docker
// engine API.
func New(cfg *config.Config, logger *slog.Logger, dialer engine.Dialer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repos, err := store.NewRepositories(&store.Config{
		Type:        cfg.Storage.Type,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	if dialer == nil {
		dialer = engine.NewDockerDialer(&engine.Config{
			Timeout:    cfg.Engine.Timeout,
			APIVersion: cfg.Engine.APIVersion,
		})
	}

	selector := failover.NewSelector(&failover.Config{
		Dialer:   dialer,
		Fallback: cfg.Engine.DefaultManagerAddress,
		Logger:   logger,
	})

	var svc manager.Service
	svc = manager.New(&manager.Config{
		Swarms: repos.Swarms,
		Nodes:  repos.Nodes,
		Lifecycle: lifecycle.New(&lifecycle.Config{
			Nodes:      repos.Nodes,
			Selector:   selector,
			ForceLeave: cfg.Engine.ForceLeave,
			Logger:     logger,
		}),
		Utilization: utilization.New(&utilization.Config{
			Selector: selector,
			Policy: utilization.Policy{
				SubtractCache:                  cfg.Utilization.SubtractCache,
				MemoryUnsupportedArchitectures: cfg.Utilization.MemoryUnsupportedArchitectures,
			},
		}),
		View:     view.New(&view.Config{Nodes: repos.Nodes, Selector: selector}),
		Selector: selector,
		Port:     cfg.Engine.Port,
		Logger:   logger,
	})

	registry := prometheus.NewRegistry()
	counter, latency := middleware.MakeMetrics(svcName, "api", registry)

	svc = middleware.Logging(logger, svc)
	svc = middleware.Metrics(counter, latency, svc)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		Registry: registry,
		repos:    repos,
	}, nil
}

// Queue returns the SQS queue when one is configured, else a process-local
// queue.
func (a *App) Queue(ctx context.Context) (queue.Queue, error) {
	qc := a.Config.Queue
	if qc.SQSURL == "" {
		a.Logger.Warn("queue.sqs_url not set, using in-memory queue")
		return queue.NewMemoryQueue(qc.PollInterval), nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if qc.Region != "" {
		opts = append(opts, awsconfig.WithRegion(qc.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return queue.NewSQSQueue(&queue.SQSConfig{
		QueueURL:          qc.SQSURL,
		Client:            sqs.NewFromConfig(awsCfg),
		PollInterval:      qc.PollInterval,
		VisibilityTimeout: qc.VisibilityTimeout,
		Logger:            a.Logger,
	}), nil
}

func (a *App) Notifier() notify.Notifier {
	return NewNotifier(a.Config)
}

func NewNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Slack.Token == "" {
		return notify.NewNop()
	}

	return notify.NewSlack(&notify.SlackConfig{
		Token:   cfg.Slack.Token,
		Channel: cfg.Slack.Channel,
	})
}

func (a *App) Close() error {
	if a.repos.Closer == nil {
		return nil
	}

	return a.repos.Closer.Close()
}
