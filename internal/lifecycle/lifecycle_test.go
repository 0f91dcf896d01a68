package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
	"github.com/falmar/swarmman/internal/lifecycle"
	"github.com/falmar/swarmman/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cluster *engine.MemoryCluster
	store   *store.Memory
	ctrl    *lifecycle.Controller

	managers []cluster.Node
	worker   cluster.Node
}

func liveNode(id, hostname, addr string, role swarm.NodeRole) swarm.Node {
	n := swarm.Node{
		ID:   id,
		Meta: swarm.Meta{Version: swarm.Version{Index: 10}},
		Spec: swarm.NodeSpec{
			Role:         role,
			Availability: swarm.NodeAvailabilityActive,
		},
		Description: swarm.NodeDescription{
			Hostname: hostname,
			Platform: swarm.Platform{Architecture: "x86_64", OS: "linux"},
			Resources: swarm.Resources{
				NanoCPUs:    4_000_000_000,
				MemoryBytes: 8_200_000_000,
			},
			Engine: swarm.EngineDescription{EngineVersion: "24.0.2"},
		},
		Status: swarm.NodeStatus{State: swarm.NodeStateReady, Addr: addr},
	}
	if role == swarm.NodeRoleManager {
		n.ManagerStatus = &swarm.ManagerStatus{Reachability: swarm.ReachabilityReachable, Addr: addr + ":2377"}
	}

	return n
}

func newFixture(t *testing.T, forceLeave bool) *fixture {
	t.Helper()
	ctx := context.Background()

	mc := engine.NewMemoryCluster()
	mc.AddNode(liveNode("id-m1", "m1", "10.0.0.1", swarm.NodeRoleManager))
	mc.AddNode(liveNode("id-m2", "m2", "10.0.0.2", swarm.NodeRoleManager))
	mc.AddNode(liveNode("id-m3", "m3", "10.0.0.3", swarm.NodeRoleManager))
	mc.AddNode(liveNode("id-w1", "w1", "10.0.0.4", swarm.NodeRoleWorker))

	st := store.NewMemory()
	s := cluster.Swarm{Name: "prod"}
	require.NoError(t, st.CreateSwarm(ctx, &s))

	nodes := []*cluster.Node{
		{Hostname: "m1", Address: "10.0.0.1", Port: 2375, Role: cluster.RoleManager, SwarmID: &s.ID, ClusterNodeID: "id-m1", VersionIndex: 10},
		{Hostname: "m2", Address: "10.0.0.2", Port: 2375, Role: cluster.RoleManager, SwarmID: &s.ID, ClusterNodeID: "id-m2", VersionIndex: 10},
		{Hostname: "m3", Address: "10.0.0.3", Port: 2375, Role: cluster.RoleManager, SwarmID: &s.ID, ClusterNodeID: "id-m3", VersionIndex: 10},
		{Hostname: "w1", Address: "10.0.0.4", Port: 2375, Role: cluster.RoleWorker, SwarmID: &s.ID, ClusterNodeID: "id-w1", VersionIndex: 10},
	}
	require.NoError(t, st.CreateNodes(ctx, nodes))

	ctrl := lifecycle.New(&lifecycle.Config{
		Nodes:      st,
		Selector:   failover.NewSelector(&failover.Config{Dialer: mc}),
		ForceLeave: forceLeave,
	})

	return &fixture{
		cluster:  mc,
		store:    st,
		ctrl:     ctrl,
		managers: []cluster.Node{*nodes[0], *nodes[1], *nodes[2]},
		worker:   *nodes[3],
	}
}

func (f *fixture) stored(t *testing.T, id int64) cluster.Node {
	t.Helper()

	n, err := f.store.GetNode(context.Background(), id)
	require.NoError(t, err)

	return n
}

func TestPromote_AlreadyManager(t *testing.T) {
	f := newFixture(t, false)

	node, outcome, err := f.ctrl.Promote(context.Background(), f.managers[0])

	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeAlreadyInState, outcome)
	assert.Equal(t, f.managers[0], node)
	assert.Empty(t, f.cluster.Calls())
}

func TestPromote_Worker(t *testing.T) {
	f := newFixture(t, false)

	node, outcome, err := f.ctrl.Promote(context.Background(), f.worker)

	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeUpdated, outcome)
	assert.Equal(t, cluster.RoleManager, node.Role)
	assert.Equal(t, uint64(11), node.VersionIndex)

	updates := f.cluster.CallsTo("NodeUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, "10.0.0.1:2375", updates[0].Address)

	live, ok := f.cluster.Node("w1")
	require.True(t, ok)
	assert.Equal(t, swarm.NodeRoleManager, live.Spec.Role)
	assert.Equal(t, swarm.NodeAvailabilityActive, live.Spec.Availability)

	assert.Equal(t, cluster.RoleManager, f.stored(t, f.worker.ID).Role)

	again, outcome, err := f.ctrl.Promote(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeAlreadyInState, outcome)
	assert.Equal(t, node, again)
	assert.Len(t, f.cluster.CallsTo("NodeUpdate"), 1)
}

func TestPromoteDemote_RoundTrip(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	promoted, _, err := f.ctrl.Promote(ctx, f.worker)
	require.NoError(t, err)

	demoted, outcome, err := f.ctrl.Demote(ctx, promoted)
	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeUpdated, outcome)
	assert.Equal(t, cluster.RoleWorker, demoted.Role)
	assert.Equal(t, uint64(12), demoted.VersionIndex)
	assert.Equal(t, cluster.RoleWorker, f.stored(t, f.worker.ID).Role)

	live, _ := f.cluster.Node("w1")
	assert.Equal(t, swarm.NodeRoleWorker, live.Spec.Role)
	assert.Nil(t, live.ManagerStatus)
}

func TestDemote_AlreadyWorker(t *testing.T) {
	f := newFixture(t, false)

	_, outcome, err := f.ctrl.Demote(context.Background(), f.worker)

	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeAlreadyInState, outcome)
	assert.Empty(t, f.cluster.Calls())
}

func TestPromote_Failover(t *testing.T) {
	f := newFixture(t, false)
	f.cluster.Fail("10.0.0.1:2375", errors.New("connection refused"))
	f.cluster.Fail("10.0.0.2:2375", errors.New("i/o timeout"))

	node, outcome, err := f.ctrl.Promote(context.Background(), f.worker)

	require.NoError(t, err)
	assert.Equal(t, cluster.OutcomeUpdated, outcome)
	assert.Equal(t, cluster.RoleManager, node.Role)

	updates := f.cluster.CallsTo("NodeUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, "10.0.0.3:2375", updates[0].Address)
}

func TestPromote_AllUnreachable(t *testing.T) {
	f := newFixture(t, false)
	for _, m := range f.managers {
		f.cluster.Fail(m.Endpoint(), errors.New("connection refused"))
	}

	node, _, err := f.ctrl.Promote(context.Background(), f.worker)

	require.ErrorIs(t, err, cluster.ErrClusterUnreachable)
	assert.True(t, cluster.IsRetryable(err))
	assert.Equal(t, cluster.RoleWorker, node.Role)
	assert.Equal(t, cluster.RoleWorker, f.stored(t, f.worker.ID).Role)
}

func TestPromote_Rejected(t *testing.T) {
	f := newFixture(t, false)
	f.cluster.Fail("10.0.0.1:2375", cluster.ErrConflictRejected)

	_, _, err := f.ctrl.Promote(context.Background(), f.worker)

	require.ErrorIs(t, err, cluster.ErrConflictRejected)
	assert.False(t, cluster.IsRetryable(err))
	assert.Empty(t, f.cluster.CallsTo("NodeUpdate"))

	for _, c := range f.cluster.Calls() {
		assert.Equal(t, "10.0.0.1:2375", c.Address)
	}
	assert.Equal(t, cluster.RoleWorker, f.stored(t, f.worker.ID).Role)
}

func TestPromote_NotInSwarm(t *testing.T) {
	f := newFixture(t, false)
	loose := f.worker
	loose.SwarmID = nil
	loose.Role = cluster.RoleUnassigned

	_, _, err := f.ctrl.Promote(context.Background(), loose)

	assert.ErrorIs(t, err, cluster.ErrValidation)
	assert.Empty(t, f.cluster.Calls())
}

func TestPromote_FallbackManager(t *testing.T) {
	f := newFixture(t, false)
	for _, m := range f.managers {
		f.cluster.Fail(m.Endpoint(), errors.New("connection refused"))
	}

	ctrl := lifecycle.New(&lifecycle.Config{
		Nodes: f.store,
		Selector: failover.NewSelector(&failover.Config{
			Dialer:   f.cluster,
			Fallback: "192.168.1.50:2375",
		}),
	})

	node, _, err := ctrl.Promote(context.Background(), f.worker)

	require.NoError(t, err)
	assert.Equal(t, cluster.RoleManager, node.Role)
	updates := f.cluster.CallsTo("NodeUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, "192.168.1.50:2375", updates[0].Address)
}

func TestLeave(t *testing.T) {
	f := newFixture(t, false)

	node, err := f.ctrl.Leave(context.Background(), f.worker)

	require.NoError(t, err)
	assert.Nil(t, node.SwarmID)
	assert.Equal(t, cluster.RoleUnassigned, node.Role)

	calls := f.cluster.CallsTo("SwarmLeave")
	require.Len(t, calls, 1)
	assert.Equal(t, "10.0.0.4:2375", calls[0].Address)

	stored := f.stored(t, f.worker.ID)
	assert.Nil(t, stored.SwarmID)
	assert.Equal(t, cluster.RoleUnassigned, stored.Role)

	_, ok := f.cluster.Node("w1")
	assert.False(t, ok)
}

func TestLeave_ManagerNeedsForce(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.ctrl.Leave(context.Background(), f.managers[0])
	require.ErrorIs(t, err, cluster.ErrConflictRejected)
	assert.Equal(t, cluster.RoleManager, f.stored(t, f.managers[0].ID).Role)

	forced := newFixture(t, true)
	node, err := forced.ctrl.Leave(context.Background(), forced.managers[0])
	require.NoError(t, err)
	assert.Equal(t, cluster.RoleUnassigned, node.Role)
}

func TestLeave_Unreachable(t *testing.T) {
	f := newFixture(t, false)
	f.cluster.Fail("10.0.0.4:2375", errors.New("no route to host"))

	_, err := f.ctrl.Leave(context.Background(), f.worker)

	require.ErrorIs(t, err, cluster.ErrClusterUnreachable)
	stored := f.stored(t, f.worker.ID)
	require.NotNil(t, stored.SwarmID)
	assert.Equal(t, cluster.RoleWorker, stored.Role)

	for _, c := range f.cluster.Calls() {
		assert.Equal(t, "10.0.0.4:2375", c.Address)
	}
}

func TestUpdateAvailability(t *testing.T) {
	cases := []struct {
		desc  string
		value string
		err   error
	}{
		{desc: "drain", value: "drain"},
		{desc: "pause", value: "pause"},
		{desc: "active", value: "active"},
		{desc: "invalid", value: "invalid", err: cluster.ErrValidation},
		{desc: "missing", value: "", err: cluster.ErrValidation},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			f := newFixture(t, false)

			node, err := f.ctrl.UpdateAvailability(context.Background(), f.worker, c.value)
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				assert.Empty(t, f.cluster.Calls())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, cluster.Availability(c.value), node.Availability)
			assert.Equal(t, uint64(11), node.VersionIndex)

			live, _ := f.cluster.Node("w1")
			assert.Equal(t, swarm.NodeAvailability(c.value), live.Spec.Availability)
			assert.Equal(t, swarm.NodeRoleWorker, live.Spec.Role)
		})
	}
}

func TestUpdateAvailability_AllUnreachable(t *testing.T) {
	f := newFixture(t, false)
	for _, m := range f.managers {
		f.cluster.Fail(m.Endpoint(), errors.New("connection refused"))
	}

	_, err := f.ctrl.UpdateAvailability(context.Background(), f.worker, "drain")

	assert.ErrorIs(t, err, cluster.ErrClusterUnreachable)
}

func TestSync(t *testing.T) {
	f := newFixture(t, false)
	f.cluster.Fail("10.0.0.1:2375", errors.New("connection refused"))

	stale := f.worker
	stale.Role = cluster.RoleManager
	stale.ClusterNodeID = ""

	node, err := f.ctrl.Sync(context.Background(), stale)

	require.NoError(t, err)
	assert.Equal(t, cluster.RoleWorker, node.Role)
	assert.Equal(t, "id-w1", node.ClusterNodeID)
	assert.Equal(t, "x86_64", node.Architecture)
	assert.Equal(t, "linux", node.OS)
	assert.InDelta(t, 8.2, node.MemoryGB, 1e-9)
	assert.InDelta(t, 4.0, node.CPUCount, 1e-9)
	assert.Equal(t, "24.0.2", node.EngineVersion)
	assert.Equal(t, cluster.AvailabilityActive, node.Availability)
	assert.Equal(t, uint64(10), node.VersionIndex)

	assert.Equal(t, node, f.stored(t, f.worker.ID))
	assert.Len(t, f.cluster.CallsTo("NodeInspect"), 2)
}

func TestSync_NotFound(t *testing.T) {
	f := newFixture(t, false)
	ghost := f.worker
	ghost.ClusterNodeID = "missing"

	_, err := f.ctrl.Sync(context.Background(), ghost)

	require.ErrorIs(t, err, cluster.ErrNotFound)
	assert.NotErrorIs(t, err, cluster.ErrClusterUnreachable)
	assert.Len(t, f.cluster.CallsTo("NodeInspect"), 3)
	assert.Equal(t, f.worker, f.stored(t, f.worker.ID))
}
