package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/falmar/swarmman/internal/cluster"
)

var _ SwarmRepository = (*Memory)(nil)
var _ NodeRepository = (*Memory)(nil)

// Memory keeps swarms and nodes in process memory with the same uniqueness
// rules as the SQL backends.
type Memory struct {
	mu sync.RWMutex

	swarms map[int64]cluster.Swarm
	nodes  map[int64]cluster.Node

	lastSwarmID int64
	lastNodeID  int64
}

func NewMemory() *Memory {
	return &Memory{
		swarms: make(map[int64]cluster.Swarm),
		nodes:  make(map[int64]cluster.Node),
	}
}

func (m *Memory) CreateSwarm(ctx context.Context, s *cluster.Swarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.swarms {
		if existing.Name == s.Name {
			return fmt.Errorf("%w: swarm %q", cluster.ErrAlreadyExists, s.Name)
		}
	}

	m.lastSwarmID++
	s.ID = m.lastSwarmID
	m.swarms[s.ID] = *s

	return nil
}

func (m *Memory) GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.swarms[id]
	if !ok {
		return cluster.Swarm{}, fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, id)
	}

	return s, nil
}

func (m *Memory) GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.swarms {
		if s.Name == name {
			return s, nil
		}
	}

	return cluster.Swarm{}, fmt.Errorf("%w: swarm %q", cluster.ErrNotFound, name)
}

func (m *Memory) ListSwarms(ctx context.Context) ([]cluster.Swarm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	swarms := make([]cluster.Swarm, 0, len(m.swarms))
	for _, s := range m.swarms {
		swarms = append(swarms, s)
	}
	sort.Slice(swarms, func(i, j int) bool { return swarms[i].ID < swarms[j].ID })

	return swarms, nil
}

func (m *Memory) UpdateSwarm(ctx context.Context, s *cluster.Swarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.swarms[s.ID]; !ok {
		return fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, s.ID)
	}

	for id, existing := range m.swarms {
		if id != s.ID && existing.Name == s.Name {
			return fmt.Errorf("%w: swarm %q", cluster.ErrAlreadyExists, s.Name)
		}
	}

	m.swarms[s.ID] = *s

	return nil
}

func (m *Memory) DeleteSwarm(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.swarms[id]; !ok {
		return fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, id)
	}

	for nid, n := range m.nodes {
		if n.SwarmID != nil && *n.SwarmID == id {
			n.SwarmID = nil
			n.Role = cluster.RoleUnassigned
			m.nodes[nid] = n
		}
	}
	delete(m.swarms, id)

	return nil
}

func (m *Memory) CreateNodes(ctx context.Context, nodes []*cluster.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if err := n.RequireAddress(); err != nil {
			return err
		}
		if _, ok := seen[n.Address]; ok || m.addressTaken(n.Address, 0) {
			return fmt.Errorf("%w: node address %s", cluster.ErrAlreadyExists, n.Address)
		}
		seen[n.Address] = struct{}{}

		if n.SwarmID != nil {
			if _, ok := m.swarms[*n.SwarmID]; !ok {
				return fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, *n.SwarmID)
			}
		}
	}

	for _, n := range nodes {
		m.lastNodeID++
		n.ID = m.lastNodeID
		m.nodes[n.ID] = copyNode(*n)
	}

	return nil
}

func (m *Memory) GetNode(ctx context.Context, id int64) (cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return cluster.Node{}, fmt.Errorf("%w: node %d", cluster.ErrNotFound, id)
	}

	return copyNode(n), nil
}

func (m *Memory) GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.nodes {
		if n.Address == address {
			return copyNode(n), nil
		}
	}

	return cluster.Node{}, fmt.Errorf("%w: node address %s", cluster.ErrNotFound, address)
}

func (m *Memory) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	return m.listNodes(func(cluster.Node) bool { return true }), nil
}

func (m *Memory) ListNodesBySwarm(ctx context.Context, swarmID int64) ([]cluster.Node, error) {
	return m.listNodes(func(n cluster.Node) bool {
		return n.SwarmID != nil && *n.SwarmID == swarmID
	}), nil
}

func (m *Memory) UpdateNode(ctx context.Context, node *cluster.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[node.ID]; !ok {
		return fmt.Errorf("%w: node %d", cluster.ErrNotFound, node.ID)
	}
	if err := node.RequireAddress(); err != nil {
		return err
	}
	if m.addressTaken(node.Address, node.ID) {
		return fmt.Errorf("%w: node address %s", cluster.ErrAlreadyExists, node.Address)
	}
	if node.SwarmID != nil {
		if _, ok := m.swarms[*node.SwarmID]; !ok {
			return fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, *node.SwarmID)
		}
	}

	m.nodes[node.ID] = copyNode(*node)

	return nil
}

func (m *Memory) listNodes(keep func(cluster.Node) bool) []cluster.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]cluster.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if keep(n) {
			nodes = append(nodes, copyNode(n))
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}

func (m *Memory) addressTaken(address string, except int64) bool {
	for id, n := range m.nodes {
		if id != except && n.Address == address {
			return true
		}
	}

	return false
}

// copyNode detaches the SwarmID pointer from the caller's value.
func copyNode(n cluster.Node) cluster.Node {
	if n.SwarmID != nil {
		id := *n.SwarmID
		n.SwarmID = &id
	}

	return n
}
