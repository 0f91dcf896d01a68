package middleware

import (
	"context"
	"time"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/falmar/swarmman/internal/utilization"
	"github.com/falmar/swarmman/internal/view"
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

var _ manager.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     manager.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc manager.Service) manager.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

// MakeMetrics registers a request counter and a latency summary, both
// labelled by method, on reg.
func MakeMetrics(namespace, subsystem string, reg prometheus.Registerer) (metrics.Counter, metrics.Histogram) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"})
	latency := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, []string{"method"})

	reg.MustRegister(counter, latency)

	return kitprometheus.NewCounter(counter), kitprometheus.NewSummary(latency)
}

func (mm *metricsMiddleware) CreateSwarm(ctx context.Context, name string) (cluster.Swarm, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "create-swarm").Add(1)
		mm.latency.With("method", "create-swarm").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CreateSwarm(ctx, name)
}

func (mm *metricsMiddleware) GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-swarm").Add(1)
		mm.latency.With("method", "get-swarm").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetSwarm(ctx, id)
}

func (mm *metricsMiddleware) GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-swarm-by-name").Add(1)
		mm.latency.With("method", "get-swarm-by-name").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetSwarmByName(ctx, name)
}

func (mm *metricsMiddleware) ListSwarms(ctx context.Context) ([]cluster.Swarm, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-swarms").Add(1)
		mm.latency.With("method", "list-swarms").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListSwarms(ctx)
}

func (mm *metricsMiddleware) DeleteSwarm(ctx context.Context, id int64) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "delete-swarm").Add(1)
		mm.latency.With("method", "delete-swarm").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.DeleteSwarm(ctx, id)
}

func (mm *metricsMiddleware) DiscoverNodes(ctx context.Context, address string) ([]cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "discover-nodes").Add(1)
		mm.latency.With("method", "discover-nodes").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.DiscoverNodes(ctx, address)
}

func (mm *metricsMiddleware) AddExistingNodes(ctx context.Context, swarmID int64, address string) ([]cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "add-existing-nodes").Add(1)
		mm.latency.With("method", "add-existing-nodes").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AddExistingNodes(ctx, swarmID, address)
}

func (mm *metricsMiddleware) ListNodes(ctx context.Context, swarmID int64) ([]cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-nodes").Add(1)
		mm.latency.With("method", "list-nodes").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListNodes(ctx, swarmID)
}

func (mm *metricsMiddleware) ListAllNodes(ctx context.Context) ([]cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-all-nodes").Add(1)
		mm.latency.With("method", "list-all-nodes").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListAllNodes(ctx)
}

func (mm *metricsMiddleware) GetNode(ctx context.Context, id int64) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-node").Add(1)
		mm.latency.With("method", "get-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetNode(ctx, id)
}

func (mm *metricsMiddleware) GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-node-by-address").Add(1)
		mm.latency.With("method", "get-node-by-address").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetNodeByAddress(ctx, address)
}

func (mm *metricsMiddleware) AssignNode(ctx context.Context, nodeID, swarmID int64) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "assign-node").Add(1)
		mm.latency.With("method", "assign-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.AssignNode(ctx, nodeID, swarmID)
}

func (mm *metricsMiddleware) Promote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "promote-node").Add(1)
		mm.latency.With("method", "promote-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Promote(ctx, nodeID)
}

func (mm *metricsMiddleware) Demote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "demote-node").Add(1)
		mm.latency.With("method", "demote-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Demote(ctx, nodeID)
}

func (mm *metricsMiddleware) Leave(ctx context.Context, nodeID int64) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "leave-swarm").Add(1)
		mm.latency.With("method", "leave-swarm").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Leave(ctx, nodeID)
}

func (mm *metricsMiddleware) UpdateAvailability(ctx context.Context, nodeID int64, availability string) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "update-availability").Add(1)
		mm.latency.With("method", "update-availability").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.UpdateAvailability(ctx, nodeID, availability)
}

func (mm *metricsMiddleware) SyncNode(ctx context.Context, nodeID int64) (cluster.Node, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "sync-node").Add(1)
		mm.latency.With("method", "sync-node").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SyncNode(ctx, nodeID)
}

func (mm *metricsMiddleware) NodeUtilization(ctx context.Context, nodeID int64) (utilization.Report, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "node-utilization").Add(1)
		mm.latency.With("method", "node-utilization").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.NodeUtilization(ctx, nodeID)
}

func (mm *metricsMiddleware) SwarmView(ctx context.Context, swarmID int64) (view.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "swarm-view").Add(1)
		mm.latency.With("method", "swarm-view").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SwarmView(ctx, swarmID)
}

func (mm *metricsMiddleware) ServiceDetail(ctx context.Context, swarmID int64, ref string) (cluster.Service, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "service-detail").Add(1)
		mm.latency.With("method", "service-detail").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ServiceDetail(ctx, swarmID, ref)
}

func (mm *metricsMiddleware) ScaleService(ctx context.Context, swarmID int64, ref string, replicas int64) (cluster.Service, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "scale-service").Add(1)
		mm.latency.With("method", "scale-service").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ScaleService(ctx, swarmID, ref, replicas)
}
