package engine

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
)

var _ Dialer = (*MemoryCluster)(nil)
var _ Client = (*memoryClient)(nil)

// Call records one request made against a MemoryCluster endpoint.
type Call struct {
	Address string
	Method  string
	Ref     string
}

// MemoryCluster is an in-memory cluster control plane. Every endpoint
// shares the same node and service state; containers and stats are kept per
// endpoint. It enforces the version index on updates the same way the real
// control plane does.
type MemoryCluster struct {
	mu sync.Mutex

	nodes    []swarm.Node
	services []swarm.Service
	tasks    []swarm.Task
	tokens   swarm.JoinTokens

	containers map[string][]types.Container
	stats      map[string]map[string]types.StatsJSON
	failures   map[string]error

	calls []Call
}

func NewMemoryCluster() *MemoryCluster {
	return &MemoryCluster{
		containers: make(map[string][]types.Container),
		stats:      make(map[string]map[string]types.StatsJSON),
		failures:   make(map[string]error),
	}
}

func (m *MemoryCluster) SetJoinTokens(tokens swarm.JoinTokens) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens = tokens
}

func (m *MemoryCluster) AddNode(node swarm.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = append(m.nodes, node)
}

// Node returns the current state of a node by id or hostname.
func (m *MemoryCluster) Node(ref string) (swarm.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.nodeIndex(ref)
	if i < 0 {
		return swarm.Node{}, false
	}

	return m.nodes[i], true
}

func (m *MemoryCluster) AddService(service swarm.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services = append(m.services, service)
}

func (m *MemoryCluster) Service(id string) (swarm.Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.serviceIndex(id)
	if i < 0 {
		return swarm.Service{}, false
	}

	return m.services[i], true
}

func (m *MemoryCluster) AddTask(task swarm.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = append(m.tasks, task)
}

// AddContainer registers a running container on the endpoint at address.
func (m *MemoryCluster) AddContainer(address string, container types.Container, stats types.StatsJSON) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.containers[address] = append(m.containers[address], container)
	if m.stats[address] == nil {
		m.stats[address] = make(map[string]types.StatsJSON)
	}
	m.stats[address][container.ID] = stats
}

// Fail makes every call against address return err. A nil err clears it.
func (m *MemoryCluster) Fail(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, address)
		return
	}
	m.failures[address] = err
}

func (m *MemoryCluster) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// CallsTo returns the recorded calls for one method, in order.
func (m *MemoryCluster) CallsTo(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []Call
	for _, c := range m.calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}

	return calls
}

func (m *MemoryCluster) Dial(address string) (Client, error) {
	return &memoryClient{cluster: m, address: address}, nil
}

func (m *MemoryCluster) nodeIndex(ref string) int {
	for i, n := range m.nodes {
		if n.ID == ref || n.Description.Hostname == ref {
			return i
		}
	}

	return -1
}

func (m *MemoryCluster) serviceIndex(ref string) int {
	for i, s := range m.services {
		if s.ID == ref || s.Spec.Name == ref {
			return i
		}
	}

	return -1
}

type memoryClient struct {
	cluster *MemoryCluster
	address string
}

// begin records the call and returns the injected failure, if any.
// It leaves the cluster locked on success; callers must unlock.
func (c *memoryClient) begin(ctx context.Context, method, ref string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", cluster.ErrClusterUnreachable, err)
	}

	c.cluster.mu.Lock()
	c.cluster.calls = append(c.cluster.calls, Call{Address: c.address, Method: method, Ref: ref})

	if err, ok := c.cluster.failures[c.address]; ok {
		c.cluster.mu.Unlock()
		return fmt.Errorf("%s %s: %w", method, c.address, err)
	}

	return nil
}

func (c *memoryClient) NodeList(ctx context.Context) ([]swarm.Node, error) {
	if err := c.begin(ctx, "NodeList", ""); err != nil {
		return nil, err
	}
	defer c.cluster.mu.Unlock()

	return append([]swarm.Node(nil), c.cluster.nodes...), nil
}

func (c *memoryClient) NodeInspect(ctx context.Context, ref string) (swarm.Node, error) {
	if err := c.begin(ctx, "NodeInspect", ref); err != nil {
		return swarm.Node{}, err
	}
	defer c.cluster.mu.Unlock()

	i := c.cluster.nodeIndex(ref)
	if i < 0 {
		return swarm.Node{}, fmt.Errorf("%w: no such node: %s", cluster.ErrNotFound, ref)
	}

	return c.cluster.nodes[i], nil
}

func (c *memoryClient) NodeUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.NodeSpec) error {
	if err := c.begin(ctx, "NodeUpdate", id); err != nil {
		return err
	}
	defer c.cluster.mu.Unlock()

	i := c.cluster.nodeIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: no such node: %s", cluster.ErrNotFound, id)
	}

	node := &c.cluster.nodes[i]
	if node.Version.Index != version.Index {
		return fmt.Errorf("%w: update out of sequence", cluster.ErrConflictRejected)
	}

	switch spec.Role {
	case swarm.NodeRoleManager, swarm.NodeRoleWorker:
	default:
		return fmt.Errorf("%w: invalid role %q", cluster.ErrConflictRejected, spec.Role)
	}

	switch spec.Availability {
	case swarm.NodeAvailabilityActive, swarm.NodeAvailabilityPause, swarm.NodeAvailabilityDrain:
	default:
		return fmt.Errorf("%w: invalid availability %q", cluster.ErrConflictRejected, spec.Availability)
	}

	node.Spec = spec
	node.Version.Index++

	if spec.Role == swarm.NodeRoleManager {
		if node.ManagerStatus == nil {
			node.ManagerStatus = &swarm.ManagerStatus{
				Reachability: swarm.ReachabilityReachable,
				Addr:         net.JoinHostPort(node.Status.Addr, "2377"),
			}
		}
	} else {
		node.ManagerStatus = nil
	}

	return nil
}

func (c *memoryClient) SwarmInspect(ctx context.Context) (swarm.Swarm, error) {
	if err := c.begin(ctx, "SwarmInspect", ""); err != nil {
		return swarm.Swarm{}, err
	}
	defer c.cluster.mu.Unlock()

	return swarm.Swarm{JoinTokens: c.cluster.tokens}, nil
}

// SwarmLeave removes the node whose address matches this endpoint.
func (c *memoryClient) SwarmLeave(ctx context.Context, force bool) error {
	if err := c.begin(ctx, "SwarmLeave", c.address); err != nil {
		return err
	}
	defer c.cluster.mu.Unlock()

	host, _, err := net.SplitHostPort(c.address)
	if err != nil {
		host = c.address
	}

	for i, n := range c.cluster.nodes {
		if n.Status.Addr != host {
			continue
		}

		if n.Spec.Role == swarm.NodeRoleManager && !force {
			return fmt.Errorf("%w: you are attempting to leave the swarm on a node that is participating as a manager", cluster.ErrConflictRejected)
		}

		c.cluster.nodes = append(c.cluster.nodes[:i], c.cluster.nodes[i+1:]...)
		return nil
	}

	return fmt.Errorf("%w: this node is not part of a swarm", cluster.ErrConflictRejected)
}

func (c *memoryClient) ServiceList(ctx context.Context) ([]swarm.Service, error) {
	if err := c.begin(ctx, "ServiceList", ""); err != nil {
		return nil, err
	}
	defer c.cluster.mu.Unlock()

	return append([]swarm.Service(nil), c.cluster.services...), nil
}

func (c *memoryClient) ServiceInspect(ctx context.Context, id string) (swarm.Service, error) {
	if err := c.begin(ctx, "ServiceInspect", id); err != nil {
		return swarm.Service{}, err
	}
	defer c.cluster.mu.Unlock()

	i := c.cluster.serviceIndex(id)
	if i < 0 {
		return swarm.Service{}, fmt.Errorf("%w: no such service: %s", cluster.ErrNotFound, id)
	}

	return c.cluster.services[i], nil
}

func (c *memoryClient) ServiceUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.ServiceSpec) error {
	if err := c.begin(ctx, "ServiceUpdate", id); err != nil {
		return err
	}
	defer c.cluster.mu.Unlock()

	i := c.cluster.serviceIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: no such service: %s", cluster.ErrNotFound, id)
	}

	service := &c.cluster.services[i]
	if service.Version.Index != version.Index {
		return fmt.Errorf("%w: update out of sequence", cluster.ErrConflictRejected)
	}

	service.Spec = spec
	service.Version.Index++

	return nil
}

func (c *memoryClient) TaskList(ctx context.Context, serviceID string) ([]swarm.Task, error) {
	if err := c.begin(ctx, "TaskList", serviceID); err != nil {
		return nil, err
	}
	defer c.cluster.mu.Unlock()

	var tasks []swarm.Task
	for _, t := range c.cluster.tasks {
		if serviceID == "" || t.ServiceID == serviceID {
			tasks = append(tasks, t)
		}
	}

	return tasks, nil
}

func (c *memoryClient) ContainerList(ctx context.Context) ([]types.Container, error) {
	if err := c.begin(ctx, "ContainerList", ""); err != nil {
		return nil, err
	}
	defer c.cluster.mu.Unlock()

	return append([]types.Container(nil), c.cluster.containers[c.address]...), nil
}

func (c *memoryClient) ContainerStats(ctx context.Context, id string) (types.StatsJSON, error) {
	if err := c.begin(ctx, "ContainerStats", id); err != nil {
		return types.StatsJSON{}, err
	}
	defer c.cluster.mu.Unlock()

	stats, ok := c.cluster.stats[c.address][id]
	if !ok {
		return types.StatsJSON{}, fmt.Errorf("%w: no such container: %s", cluster.ErrNotFound, id)
	}

	return stats, nil
}

func (c *memoryClient) Close() error {
	return nil
}
