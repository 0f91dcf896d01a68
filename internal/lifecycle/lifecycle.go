package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
)

// NodeStore is the part of the node repository the controller needs.
type NodeStore interface {
	ListNodesBySwarm(ctx context.Context, swarmID int64) ([]cluster.Node, error)
	UpdateNode(ctx context.Context, node *cluster.Node) error
}

type Config struct {
	Nodes    NodeStore
	Selector *failover.Selector
	// ForceLeave is passed to the node when it is asked to leave, allowing
	// managers to leave without being demoted first.
	ForceLeave bool
	Logger     *slog.Logger
}

// Controller changes node role, availability and membership on the cluster
// and mirrors confirmed changes into the node store.
type Controller struct {
	nodes      NodeStore
	selector   *failover.Selector
	forceLeave bool
	logger     *slog.Logger
}

func New(cfg *Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		nodes:      cfg.Nodes,
		selector:   cfg.Selector,
		forceLeave: cfg.ForceLeave,
		logger:     logger,
	}
}

func (c *Controller) Promote(ctx context.Context, node cluster.Node) (cluster.Node, cluster.Outcome, error) {
	return c.setRole(ctx, node, cluster.RoleManager)
}

func (c *Controller) Demote(ctx context.Context, node cluster.Node) (cluster.Node, cluster.Outcome, error) {
	return c.setRole(ctx, node, cluster.RoleWorker)
}

func (c *Controller) setRole(ctx context.Context, node cluster.Node, role cluster.Role) (cluster.Node, cluster.Outcome, error) {
	if node.Role == role {
		return node, cluster.OutcomeAlreadyInState, nil
	}

	endpoints, err := c.candidates(ctx, node)
	if err != nil {
		return node, "", err
	}

	var version uint64
	endpoint, err := c.selector.Do(ctx, endpoints, func(ctx context.Context, client engine.Client) error {
		live, err := client.NodeInspect(ctx, node.Ref())
		if err != nil {
			return err
		}

		spec := live.Spec
		spec.Role = role.Engine()
		spec.Availability = swarm.NodeAvailabilityActive

		if err := client.NodeUpdate(ctx, live.ID, live.Version, spec); err != nil {
			return err
		}

		version = c.refreshVersion(ctx, client, live)

		return nil
	})
	if err != nil {
		return node, "", fmt.Errorf("failed to set role %s on node %s: %w", role, node.Hostname, err)
	}

	node.Role = role
	node.Availability = cluster.AvailabilityActive
	node.VersionIndex = version

	if err := c.nodes.UpdateNode(ctx, &node); err != nil {
		return node, "", fmt.Errorf("failed to persist node %s: %w", node.Hostname, err)
	}

	c.logger.Info("node role changed",
		slog.String("hostname", node.Hostname),
		slog.String("role", string(role)),
		slog.String("endpoint", endpoint),
	)

	return node, cluster.OutcomeUpdated, nil
}

// Leave asks the node itself to leave its swarm. Managers are never used for
// this call.
func (c *Controller) Leave(ctx context.Context, node cluster.Node) (cluster.Node, error) {
	err := c.selector.Direct(ctx, node.Endpoint(), func(ctx context.Context, client engine.Client) error {
		return client.SwarmLeave(ctx, c.forceLeave)
	})
	if err != nil {
		return node, fmt.Errorf("failed to leave swarm on node %s: %w", node.Hostname, err)
	}

	node.SwarmID = nil
	node.Role = cluster.RoleUnassigned
	node.ClusterNodeID = ""
	node.Availability = ""
	node.VersionIndex = 0

	if err := c.nodes.UpdateNode(ctx, &node); err != nil {
		return node, fmt.Errorf("failed to persist node %s: %w", node.Hostname, err)
	}

	return node, nil
}

// UpdateAvailability validates value before any call is made, then sends it
// with the node's current role.
func (c *Controller) UpdateAvailability(ctx context.Context, node cluster.Node, value string) (cluster.Node, error) {
	availability, err := cluster.ParseAvailability(value)
	if err != nil {
		return node, err
	}

	endpoints, err := c.candidates(ctx, node)
	if err != nil {
		return node, err
	}

	var version uint64
	_, err = c.selector.Do(ctx, endpoints, func(ctx context.Context, client engine.Client) error {
		live, err := client.NodeInspect(ctx, node.Ref())
		if err != nil {
			return err
		}

		spec := live.Spec
		spec.Availability = swarm.NodeAvailability(availability)

		if err := client.NodeUpdate(ctx, live.ID, live.Version, spec); err != nil {
			return err
		}

		version = c.refreshVersion(ctx, client, live)

		return nil
	})
	if err != nil {
		return node, fmt.Errorf("failed to set availability %s on node %s: %w", availability, node.Hostname, err)
	}

	node.Availability = availability
	node.VersionIndex = version

	if err := c.nodes.UpdateNode(ctx, &node); err != nil {
		return node, fmt.Errorf("failed to persist node %s: %w", node.Hostname, err)
	}

	return node, nil
}

// Sync overwrites the cached node metadata with the first manager's answer.
func (c *Controller) Sync(ctx context.Context, node cluster.Node) (cluster.Node, error) {
	endpoints, err := c.candidates(ctx, node)
	if err != nil {
		return node, err
	}

	var live swarm.Node
	_, err = c.selector.Do(ctx, endpoints, func(ctx context.Context, client engine.Client) error {
		n, err := client.NodeInspect(ctx, node.Ref())
		if err != nil {
			return err
		}
		live = n

		return nil
	})
	if err != nil {
		return node, fmt.Errorf("failed to fetch node %s: %w", node.Hostname, err)
	}

	if err := ApplyEngineNode(&node, live); err != nil {
		return node, err
	}

	if err := c.nodes.UpdateNode(ctx, &node); err != nil {
		return node, fmt.Errorf("failed to persist node %s: %w", node.Hostname, err)
	}

	return node, nil
}

func (c *Controller) candidates(ctx context.Context, node cluster.Node) ([]string, error) {
	if !node.InSwarm() {
		return nil, fmt.Errorf("%w: node %s is not assigned to a swarm", cluster.ErrValidation, node.Hostname)
	}

	nodes, err := c.nodes.ListNodesBySwarm(ctx, *node.SwarmID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swarm nodes: %w", err)
	}

	return c.selector.Candidates(nodes), nil
}

// refreshVersion returns the version index after a confirmed update. The
// update already happened, so a failed lookup only costs a stale index.
func (c *Controller) refreshVersion(ctx context.Context, client engine.Client, before swarm.Node) uint64 {
	after, err := client.NodeInspect(ctx, before.ID)
	if err != nil {
		c.logger.Warn("failed to refresh node version",
			slog.String("node_id", before.ID),
			slog.Any("error", err),
		)
		return before.Version.Index
	}

	return after.Version.Index
}

// ApplyEngineNode copies the cluster's authoritative description of a node
// onto n. Memory is converted from bytes to GB and CPUs from nano-units to
// cores.
func ApplyEngineNode(n *cluster.Node, live swarm.Node) error {
	role, err := cluster.ParseRole(string(live.Spec.Role))
	if err != nil {
		return err
	}

	n.Role = role
	n.ClusterNodeID = live.ID
	n.Architecture = live.Description.Platform.Architecture
	n.OS = live.Description.Platform.OS
	n.MemoryGB = float64(live.Description.Resources.MemoryBytes) / 1e9
	n.CPUCount = float64(live.Description.Resources.NanoCPUs) / 1e9
	n.EngineVersion = live.Description.Engine.EngineVersion
	n.Availability = cluster.Availability(live.Spec.Availability)
	n.VersionIndex = live.Version.Index

	return nil
}
