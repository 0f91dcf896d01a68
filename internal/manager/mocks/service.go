package mocks

import (
	"context"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/falmar/swarmman/internal/utilization"
	"github.com/falmar/swarmman/internal/view"
	"github.com/stretchr/testify/mock"
)

var _ manager.Service = (*MockService)(nil)

// MockService is a mock implementation of the manager.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateSwarm(ctx context.Context, name string) (cluster.Swarm, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(cluster.Swarm), args.Error(1)
}

func (m *MockService) GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(cluster.Swarm), args.Error(1)
}

func (m *MockService) GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(cluster.Swarm), args.Error(1)
}

func (m *MockService) ListSwarms(ctx context.Context) ([]cluster.Swarm, error) {
	args := m.Called(ctx)
	return args.Get(0).([]cluster.Swarm), args.Error(1)
}

func (m *MockService) DeleteSwarm(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockService) DiscoverNodes(ctx context.Context, address string) ([]cluster.Node, error) {
	args := m.Called(ctx, address)
	return args.Get(0).([]cluster.Node), args.Error(1)
}

func (m *MockService) AddExistingNodes(ctx context.Context, swarmID int64, address string) ([]cluster.Node, error) {
	args := m.Called(ctx, swarmID, address)
	return args.Get(0).([]cluster.Node), args.Error(1)
}

func (m *MockService) ListNodes(ctx context.Context, swarmID int64) ([]cluster.Node, error) {
	args := m.Called(ctx, swarmID)
	return args.Get(0).([]cluster.Node), args.Error(1)
}

func (m *MockService) ListAllNodes(ctx context.Context) ([]cluster.Node, error) {
	args := m.Called(ctx)
	return args.Get(0).([]cluster.Node), args.Error(1)
}

func (m *MockService) GetNode(ctx context.Context, id int64) (cluster.Node, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) AssignNode(ctx context.Context, nodeID, swarmID int64) (cluster.Node, error) {
	args := m.Called(ctx, nodeID, swarmID)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) Promote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(cluster.Node), args.Get(1).(cluster.Outcome), args.Error(2)
}

func (m *MockService) Demote(ctx context.Context, nodeID int64) (cluster.Node, cluster.Outcome, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(cluster.Node), args.Get(1).(cluster.Outcome), args.Error(2)
}

func (m *MockService) Leave(ctx context.Context, nodeID int64) (cluster.Node, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) UpdateAvailability(ctx context.Context, nodeID int64, availability string) (cluster.Node, error) {
	args := m.Called(ctx, nodeID, availability)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) SyncNode(ctx context.Context, nodeID int64) (cluster.Node, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(cluster.Node), args.Error(1)
}

func (m *MockService) NodeUtilization(ctx context.Context, nodeID int64) (utilization.Report, error) {
	args := m.Called(ctx, nodeID)
	return args.Get(0).(utilization.Report), args.Error(1)
}

func (m *MockService) SwarmView(ctx context.Context, swarmID int64) (view.Snapshot, error) {
	args := m.Called(ctx, swarmID)
	return args.Get(0).(view.Snapshot), args.Error(1)
}

func (m *MockService) ServiceDetail(ctx context.Context, swarmID int64, ref string) (cluster.Service, error) {
	args := m.Called(ctx, swarmID, ref)
	return args.Get(0).(cluster.Service), args.Error(1)
}

func (m *MockService) ScaleService(ctx context.Context, swarmID int64, ref string, replicas int64) (cluster.Service, error) {
	args := m.Called(ctx, swarmID, ref, replicas)
	return args.Get(0).(cluster.Service), args.Error(1)
}
