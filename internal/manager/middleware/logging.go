package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/falmar/swarmman/internal/utilization"
	"github.com/falmar/swarmman/internal/view"
)

var _ manager.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    manager.Service
}

func Logging(logger *slog.Logger, svc manager.Service) manager.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) log(begin time.Time, op string, err error, attrs ...any) {
	args := append([]any{slog.String("duration", time.Since(begin).String())}, attrs...)
	if err != nil {
		args = append(args, slog.Any("error", err))
		lm.logger.Warn(op+" failed", args...)

		return
	}
	lm.logger.Info(op+" completed successfully", args...)
}

func swarmGroup(s cluster.Swarm) slog.Attr {
	return slog.Group("swarm",
		slog.Int64("id", s.ID),
		slog.String("name", s.Name),
	)
}

func nodeGroup(n cluster.Node) slog.Attr {
	return slog.Group("node",
		slog.Int64("id", n.ID),
		slog.String("hostname", n.Hostname),
		slog.String("address", n.Address),
		slog.String("role", string(n.Role)),
	)
}

func (lm *loggingMiddleware) CreateSwarm(ctx context.Context, name string) (s cluster.Swarm, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Create swarm", err, slog.Group("swarm",
			slog.Int64("id", s.ID),
			slog.String("name", name),
		))
	}(time.Now())

	return lm.svc.CreateSwarm(ctx, name)
}

func (lm *loggingMiddleware) GetSwarm(ctx context.Context, id int64) (s cluster.Swarm, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Get swarm", err, slog.Group("swarm", slog.Int64("id", id)))
	}(time.Now())

	return lm.svc.GetSwarm(ctx, id)
}

func (lm *loggingMiddleware) GetSwarmByName(ctx context.Context, name string) (s cluster.Swarm, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Get swarm by name", err, slog.Group("swarm", slog.String("name", name)))
	}(time.Now())

	return lm.svc.GetSwarmByName(ctx, name)
}

func (lm *loggingMiddleware) ListSwarms(ctx context.Context) (swarms []cluster.Swarm, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "List swarms", err, slog.Int("count", len(swarms)))
	}(time.Now())

	return lm.svc.ListSwarms(ctx)
}

func (lm *loggingMiddleware) DeleteSwarm(ctx context.Context, id int64) (err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Delete swarm", err, slog.Group("swarm", slog.Int64("id", id)))
	}(time.Now())

	return lm.svc.DeleteSwarm(ctx, id)
}

func (lm *loggingMiddleware) DiscoverNodes(ctx context.Context, address string) (nodes []cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Discover nodes", err,
			slog.String("address", address),
			slog.Int("count", len(nodes)),
		)
	}(time.Now())

	return lm.svc.DiscoverNodes(ctx, address)
}

func (lm *loggingMiddleware) AddExistingNodes(ctx context.Context, swarmID int64, address string) (nodes []cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Add existing nodes", err,
			slog.Group("swarm", slog.Int64("id", swarmID)),
			slog.String("address", address),
			slog.Int("count", len(nodes)),
		)
	}(time.Now())

	return lm.svc.AddExistingNodes(ctx, swarmID, address)
}

func (lm *loggingMiddleware) ListNodes(ctx context.Context, swarmID int64) (nodes []cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "List nodes", err,
			slog.Group("swarm", slog.Int64("id", swarmID)),
			slog.Int("count", len(nodes)),
		)
	}(time.Now())

	return lm.svc.ListNodes(ctx, swarmID)
}

func (lm *loggingMiddleware) ListAllNodes(ctx context.Context) (nodes []cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "List all nodes", err, slog.Int("count", len(nodes)))
	}(time.Now())

	return lm.svc.ListAllNodes(ctx)
}

func (lm *loggingMiddleware) GetNode(ctx context.Context, id int64) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Get node", err, slog.Group("node", slog.Int64("id", id)))
	}(time.Now())

	return lm.svc.GetNode(ctx, id)
}

func (lm *loggingMiddleware) GetNodeByAddress(ctx context.Context, address string) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Get node by address", err, slog.Group("node", slog.String("address", address)))
	}(time.Now())

	return lm.svc.GetNodeByAddress(ctx, address)
}

func (lm *loggingMiddleware) AssignNode(ctx context.Context, nodeID, swarmID int64) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Assign node", err,
			nodeGroup(n),
			slog.Group("swarm", slog.Int64("id", swarmID)),
		)
	}(time.Now())

	return lm.svc.AssignNode(ctx, nodeID, swarmID)
}

func (lm *loggingMiddleware) Promote(ctx context.Context, nodeID int64) (n cluster.Node, outcome cluster.Outcome, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Promote node", err,
			nodeGroup(n),
			slog.String("outcome", string(outcome)),
		)
	}(time.Now())

	return lm.svc.Promote(ctx, nodeID)
}

func (lm *loggingMiddleware) Demote(ctx context.Context, nodeID int64) (n cluster.Node, outcome cluster.Outcome, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Demote node", err,
			nodeGroup(n),
			slog.String("outcome", string(outcome)),
		)
	}(time.Now())

	return lm.svc.Demote(ctx, nodeID)
}

func (lm *loggingMiddleware) Leave(ctx context.Context, nodeID int64) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Leave swarm", err, nodeGroup(n))
	}(time.Now())

	return lm.svc.Leave(ctx, nodeID)
}

func (lm *loggingMiddleware) UpdateAvailability(ctx context.Context, nodeID int64, availability string) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Update node availability", err,
			nodeGroup(n),
			slog.String("availability", availability),
		)
	}(time.Now())

	return lm.svc.UpdateAvailability(ctx, nodeID, availability)
}

func (lm *loggingMiddleware) SyncNode(ctx context.Context, nodeID int64) (n cluster.Node, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Sync node", err, nodeGroup(n))
	}(time.Now())

	return lm.svc.SyncNode(ctx, nodeID)
}

func (lm *loggingMiddleware) NodeUtilization(ctx context.Context, nodeID int64) (r utilization.Report, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Node utilization", err,
			slog.Group("node", slog.Int64("id", nodeID)),
			slog.Int("containers", len(r.Containers)),
		)
	}(time.Now())

	return lm.svc.NodeUtilization(ctx, nodeID)
}

func (lm *loggingMiddleware) SwarmView(ctx context.Context, swarmID int64) (snap view.Snapshot, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Swarm view", err,
			swarmGroup(snap.Swarm),
			slog.Int("nodes", snap.NodeCount),
			slog.Int("services", len(snap.Services)),
		)
	}(time.Now())

	return lm.svc.SwarmView(ctx, swarmID)
}

func (lm *loggingMiddleware) ServiceDetail(ctx context.Context, swarmID int64, ref string) (s cluster.Service, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Service detail", err,
			slog.Group("swarm", slog.Int64("id", swarmID)),
			slog.Group("service",
				slog.String("ref", ref),
				slog.String("status", string(s.Status)),
			),
		)
	}(time.Now())

	return lm.svc.ServiceDetail(ctx, swarmID, ref)
}

func (lm *loggingMiddleware) ScaleService(ctx context.Context, swarmID int64, ref string, replicas int64) (s cluster.Service, err error) {
	defer func(begin time.Time) {
		lm.log(begin, "Scale service", err,
			slog.Group("swarm", slog.Int64("id", swarmID)),
			slog.Group("service",
				slog.String("ref", ref),
				slog.Int64("replicas", replicas),
			),
		)
	}(time.Now())

	return lm.svc.ScaleService(ctx, swarmID, ref, replicas)
}
