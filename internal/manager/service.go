package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
	"github.com/falmar/swarmman/internal/lifecycle"
	"github.com/falmar/swarmman/internal/store"
	"github.com/falmar/swarmman/internal/utilization"
	"github.com/falmar/swarmman/internal/view"
)

var _ Service = (*service)(nil)

// Service is the node and swarm management API used by the operator
// commands and the event listener.
type Service interface {
	CreateSwarm(ctx context.Context, name string) (cluster.Swarm, error)
	GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error)
	GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error)
	ListSwarms(ctx context.Context) ([]cluster.Swarm, error)
	DeleteSwarm(ctx context.Context, id int64) error

	// DiscoverNodes lists the members of the swarm managed at address
	// without storing anything.
	DiscoverNodes(ctx context.Context, address string) ([]cluster.Node, error)
	// AddExistingNodes stores every member of the swarm managed at address
	// under swarmID, together with the swarm's join tokens.
	AddExistingNodes(ctx context.Context, swarmID int64, address string) ([]cluster.Node, error)
	ListNodes(ctx context.Context, swarmID int64) ([]cluster.Node, error)
	ListAllNodes(ctx context.Context) ([]cluster.Node, error)
	GetNode(ctx context.Context, id int64) (cluster.Node, error)
	GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error)
	AssignNode(ctx context.Context, nodeID, swarmID int64) (cluster.Node, error)

	Promote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error)
	Demote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error)
	Leave(ctx context.Context, nodeID int64) (cluster.Node, error)
	UpdateAvailability(ctx context.Context, nodeID int64, availability string) (cluster.Node, error)
	SyncNode(ctx context.Context, nodeID int64) (cluster.Node, error)
	NodeUtilization(ctx context.Context, nodeID int64) (utilization.Report, error)

	SwarmView(ctx context.Context, swarmID int64) (view.Snapshot, error)
	ServiceDetail(ctx context.Context, swarmID int64, ref string) (cluster.Service, error)
	ScaleService(ctx context.Context, swarmID int64, ref string, replicas int64) (cluster.Service, error)
}

type Config struct {
	Swarms      store.SwarmRepository
	Nodes       store.NodeRepository
	Lifecycle   *lifecycle.Controller
	Utilization *utilization.Aggregator
	View        *view.View
	Selector    *failover.Selector

	// Port is assigned to discovered nodes and to addresses given without one.
	Port   int
	Logger *slog.Logger
}

type service struct {
	swarms      store.SwarmRepository
	nodes       store.NodeRepository
	lifecycle   *lifecycle.Controller
	utilization *utilization.Aggregator
	view        *view.View
	selector    *failover.Selector
	port        int
	logger      *slog.Logger
}

func New(cfg *Config) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &service{
		swarms:      cfg.Swarms,
		nodes:       cfg.Nodes,
		lifecycle:   cfg.Lifecycle,
		utilization: cfg.Utilization,
		view:        cfg.View,
		selector:    cfg.Selector,
		port:        cfg.Port,
		logger:      logger,
	}
}

func (svc *service) CreateSwarm(ctx context.Context, name string) (cluster.Swarm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return cluster.Swarm{}, fmt.Errorf("%w: swarm name is required", cluster.ErrValidation)
	}

	s := cluster.Swarm{Name: name}
	if err := svc.swarms.CreateSwarm(ctx, &s); err != nil {
		return cluster.Swarm{}, err
	}

	return s, nil
}

func (svc *service) GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error) {
	return svc.swarms.GetSwarm(ctx, id)
}

func (svc *service) GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error) {
	return svc.swarms.GetSwarmByName(ctx, name)
}

func (svc *service) ListSwarms(ctx context.Context) ([]cluster.Swarm, error) {
	return svc.swarms.ListSwarms(ctx)
}

func (svc *service) DeleteSwarm(ctx context.Context, id int64) error {
	return svc.swarms.DeleteSwarm(ctx, id)
}

func (svc *service) DiscoverNodes(ctx context.Context, address string) ([]cluster.Node, error) {
	nodes, _, err := svc.discover(ctx, address)

	return nodes, err
}

func (svc *service) AddExistingNodes(ctx context.Context, swarmID int64, address string) ([]cluster.Node, error) {
	s, err := svc.swarms.GetSwarm(ctx, swarmID)
	if err != nil {
		return nil, err
	}

	discovered, live, err := svc.discover(ctx, address)
	if err != nil {
		return nil, err
	}

	records := make([]*cluster.Node, 0, len(discovered))
	for i := range discovered {
		n := &discovered[i]

		_, err := svc.nodes.GetNodeByAddress(ctx, n.Address)
		if err == nil {
			return nil, fmt.Errorf("%w: node address %s", cluster.ErrAlreadyExists, n.Address)
		} else if !errors.Is(err, cluster.ErrNotFound) {
			return nil, err
		}

		n.SwarmID = &s.ID
		records = append(records, n)
	}

	// tokens go first: a failed token write must leave no nodes behind, so
	// the import can be retried
	s.ManagerToken = live.JoinTokens.Manager
	s.WorkerToken = live.JoinTokens.Worker
	if err := svc.swarms.UpdateSwarm(ctx, &s); err != nil {
		return nil, fmt.Errorf("failed to store join tokens: %w", err)
	}

	if err := svc.nodes.CreateNodes(ctx, records); err != nil {
		return nil, err
	}

	out := make([]cluster.Node, len(records))
	for i, n := range records {
		out[i] = *n
	}

	return out, nil
}

func (svc *service) discover(ctx context.Context, address string) ([]cluster.Node, swarm.Swarm, error) {
	endpoint, err := SanitizeAddress(address, svc.port)
	if err != nil {
		return nil, swarm.Swarm{}, err
	}

	var (
		live    []swarm.Node
		members swarm.Swarm
	)
	err = svc.selector.Direct(ctx, endpoint, func(ctx context.Context, c engine.Client) error {
		var err error
		if live, err = c.NodeList(ctx); err != nil {
			return err
		}
		members, err = c.SwarmInspect(ctx)

		return err
	})
	if err != nil {
		return nil, swarm.Swarm{}, fmt.Errorf("failed to discover nodes at %s: %w", endpoint, err)
	}

	nodes := make([]cluster.Node, 0, len(live))
	for _, l := range live {
		n := cluster.Node{
			Hostname: l.Description.Hostname,
			Address:  nodeAddress(l),
			Port:     svc.port,
		}
		if err := n.RequireAddress(); err != nil {
			return nil, swarm.Swarm{}, fmt.Errorf("failed to discover nodes at %s: %w", endpoint, err)
		}
		if err := lifecycle.ApplyEngineNode(&n, l); err != nil {
			return nil, swarm.Swarm{}, err
		}

		nodes = append(nodes, n)
	}

	return nodes, members, nil
}

func (svc *service) ListNodes(ctx context.Context, swarmID int64) ([]cluster.Node, error) {
	if _, err := svc.swarms.GetSwarm(ctx, swarmID); err != nil {
		return nil, err
	}

	return svc.nodes.ListNodesBySwarm(ctx, swarmID)
}

func (svc *service) ListAllNodes(ctx context.Context) ([]cluster.Node, error) {
	return svc.nodes.ListNodes(ctx)
}

func (svc *service) GetNode(ctx context.Context, id int64) (cluster.Node, error) {
	return svc.nodes.GetNode(ctx, id)
}

func (svc *service) GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error) {
	return svc.nodes.GetNodeByAddress(ctx, address)
}

// AssignNode attaches a swarm-less node to a swarm and syncs it from the
// swarm's managers. A failed sync leaves the node assigned but unsynced.
func (svc *service) AssignNode(ctx context.Context, nodeID, swarmID int64) (cluster.Node, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, err
	}
	if node.InSwarm() {
		return node, fmt.Errorf("%w: node %s already belongs to swarm %d", cluster.ErrValidation, node.Hostname, *node.SwarmID)
	}

	s, err := svc.swarms.GetSwarm(ctx, swarmID)
	if err != nil {
		return node, err
	}

	node.SwarmID = &s.ID
	if err := svc.nodes.UpdateNode(ctx, &node); err != nil {
		return node, err
	}

	synced, err := svc.lifecycle.Sync(ctx, node)
	if err != nil {
		svc.logger.Warn("assigned node could not be synced",
			slog.String("hostname", node.Hostname),
			slog.String("swarm", s.Name),
			slog.Any("error", err),
		)
		return node, nil
	}

	return synced, nil
}

func (svc *service) Promote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, "", err
	}

	return svc.lifecycle.Promote(ctx, node)
}

func (svc *service) Demote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, "", err
	}

	return svc.lifecycle.Demote(ctx, node)
}

func (svc *service) Leave(ctx context.Context, nodeID int64) (cluster.Node, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, err
	}

	return svc.lifecycle.Leave(ctx, node)
}

func (svc *service) UpdateAvailability(ctx context.Context, nodeID int64, availability string) (cluster.Node, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, err
	}

	return svc.lifecycle.UpdateAvailability(ctx, node, availability)
}

func (svc *service) SyncNode(ctx context.Context, nodeID int64) (cluster.Node, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return cluster.Node{}, err
	}

	return svc.lifecycle.Sync(ctx, node)
}

func (svc *service) NodeUtilization(ctx context.Context, nodeID int64) (utilization.Report, error) {
	node, err := svc.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return utilization.Report{}, err
	}

	return svc.utilization.Report(ctx, node)
}

func (svc *service) SwarmView(ctx context.Context, swarmID int64) (view.Snapshot, error) {
	s, err := svc.swarms.GetSwarm(ctx, swarmID)
	if err != nil {
		return view.Snapshot{}, err
	}

	return svc.view.Snapshot(ctx, s)
}

func (svc *service) ServiceDetail(ctx context.Context, swarmID int64, ref string) (cluster.Service, error) {
	s, err := svc.swarms.GetSwarm(ctx, swarmID)
	if err != nil {
		return cluster.Service{}, err
	}

	return svc.view.ServiceDetail(ctx, s, ref)
}

func (svc *service) ScaleService(ctx context.Context, swarmID int64, ref string, replicas int64) (cluster.Service, error) {
	if replicas < 0 {
		return cluster.Service{}, fmt.Errorf("%w: replicas must not be negative", cluster.ErrValidation)
	}

	s, err := svc.swarms.GetSwarm(ctx, swarmID)
	if err != nil {
		return cluster.Service{}, err
	}

	return svc.view.Scale(ctx, s, ref, uint64(replicas))
}

// SanitizeAddress strips any scheme and path from address and adds port
// when none is given.
func SanitizeAddress(address string, port int) (string, error) {
	addr := strings.TrimSpace(address)
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}

	if addr == "" {
		return "", fmt.Errorf("%w: address is required", cluster.ErrValidation)
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
	}

	return addr, nil
}

// nodeAddress prefers the node's reported address; managers bound to all
// interfaces report 0.0.0.0 there, so their raft address is used instead.
func nodeAddress(n swarm.Node) string {
	addr := n.Status.Addr
	if (addr == "" || addr == "0.0.0.0") && n.ManagerStatus != nil {
		if host, _, err := net.SplitHostPort(n.ManagerStatus.Addr); err == nil {
			return host
		}
	}

	return addr
}
