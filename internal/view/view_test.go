package view_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
	"github.com/falmar/swarmman/internal/store"
	"github.com/falmar/swarmman/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replicated(id, name, image string, replicas uint64, ports ...swarm.PortConfig) swarm.Service {
	return swarm.Service{
		ID:   id,
		Meta: swarm.Meta{Version: swarm.Version{Index: 5}},
		Spec: swarm.ServiceSpec{
			Annotations: swarm.Annotations{Name: name},
			TaskTemplate: swarm.TaskSpec{
				ContainerSpec: &swarm.ContainerSpec{Image: image},
			},
			Mode: swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}},
		},
		Endpoint: swarm.Endpoint{Ports: ports},
	}
}

func tasks(mc *engine.MemoryCluster, serviceID string, states ...swarm.TaskState) {
	for i, s := range states {
		mc.AddTask(swarm.Task{
			ID:           serviceID + "-task-" + string(rune('a'+i)),
			ServiceID:    serviceID,
			DesiredState: swarm.TaskStateRunning,
			Status:       swarm.TaskStatus{State: s},
		})
	}
}

type fixture struct {
	cluster *engine.MemoryCluster
	view    *view.View
	swarm   cluster.Swarm
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	s := cluster.Swarm{Name: "prod"}
	require.NoError(t, st.CreateSwarm(ctx, &s))

	other := cluster.Swarm{Name: "staging"}
	require.NoError(t, st.CreateSwarm(ctx, &other))

	require.NoError(t, st.CreateNodes(ctx, []*cluster.Node{
		{Hostname: "m1", Address: "10.0.0.1", Port: 2375, Role: cluster.RoleManager, SwarmID: &s.ID},
		{Hostname: "m2", Address: "10.0.0.2", Port: 2375, Role: cluster.RoleManager, SwarmID: &s.ID},
		{Hostname: "w1", Address: "10.0.0.3", Port: 2375, Role: cluster.RoleWorker, SwarmID: &s.ID},
		{Hostname: "w2", Address: "10.0.0.4", Port: 2375, Role: cluster.RoleWorker, SwarmID: &s.ID},
		{Hostname: "w3", Address: "10.0.0.5", Port: 2375, Role: cluster.RoleWorker, SwarmID: &s.ID},
		{Hostname: "s1", Address: "10.0.1.1", Port: 2375, Role: cluster.RoleManager, SwarmID: &other.ID},
		{Hostname: "loose", Address: "10.0.2.1", Port: 2375, Role: cluster.RoleUnassigned},
	}))

	mc := engine.NewMemoryCluster()

	mc.AddService(replicated("svc-paused", "paused", "nginx:1.25@sha256:abcdef", 0))
	mc.AddService(replicated("svc-degraded", "degraded", "redis:7", 4,
		swarm.PortConfig{TargetPort: 6379, PublishedPort: 16379},
		swarm.PortConfig{TargetPort: 8080, PublishedPort: 18080},
	))
	tasks(mc, "svc-degraded", swarm.TaskStateRunning, swarm.TaskStateRunning, swarm.TaskStateFailed, swarm.TaskStatePending)

	mc.AddService(replicated("svc-error", "broken", "app:2", 3))
	tasks(mc, "svc-error", swarm.TaskStateRejected, swarm.TaskStateFailed)

	mc.AddService(replicated("svc-running", "web", "web:3", 2, swarm.PortConfig{TargetPort: 80, PublishedPort: 8080}))
	tasks(mc, "svc-running", swarm.TaskStateRunning, swarm.TaskStateRunning, swarm.TaskStateShutdown)

	mc.AddService(swarm.Service{
		ID: "svc-global",
		Spec: swarm.ServiceSpec{
			Annotations:  swarm.Annotations{Name: "agent"},
			TaskTemplate: swarm.TaskSpec{ContainerSpec: &swarm.ContainerSpec{Image: "agent:1"}},
			Mode:         swarm.ServiceMode{Global: &swarm.GlobalService{}},
		},
		ServiceStatus: &swarm.ServiceStatus{DesiredTasks: 5, RunningTasks: 5},
	})
	tasks(mc, "svc-global", swarm.TaskStateRunning, swarm.TaskStateRunning, swarm.TaskStateRunning)

	v := view.New(&view.Config{
		Nodes:    st,
		Selector: failover.NewSelector(&failover.Config{Dialer: mc}),
	})

	return &fixture{cluster: mc, view: v, swarm: s}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)

	snap, err := f.view.Snapshot(context.Background(), f.swarm)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.NodeCount)
	assert.Equal(t, 2, snap.ManagerCount)
	assert.Equal(t, 3, snap.WorkerCount)
	assert.LessOrEqual(t, snap.ManagerCount+snap.WorkerCount, snap.NodeCount)

	require.Len(t, snap.Services, 5)
	byName := make(map[string]cluster.Service)
	for _, s := range snap.Services {
		assert.Equal(t, f.swarm.ID, s.SwarmID)
		byName[s.Name] = s
	}

	assert.Equal(t, cluster.ServicePaused, byName["paused"].Status)
	assert.Equal(t, "nginx:1.25", byName["paused"].Image)

	degraded := byName["degraded"]
	assert.Equal(t, cluster.ServiceDegraded, degraded.Status)
	assert.Equal(t, uint64(4), degraded.Replicas)
	assert.Equal(t, uint64(2), degraded.RunningTasks)
	assert.Equal(t, uint32(6379), degraded.TargetPort)
	assert.Equal(t, uint32(16379), degraded.PublishedPort)

	assert.Equal(t, cluster.ServiceError, byName["broken"].Status)
	assert.Zero(t, byName["broken"].RunningTasks)

	assert.Equal(t, cluster.ServiceRunning, byName["web"].Status)
	assert.Equal(t, uint64(2), byName["web"].RunningTasks)

	global := byName["agent"]
	assert.Equal(t, uint64(5), global.Replicas)
	assert.Equal(t, uint64(3), global.RunningTasks)
	assert.Equal(t, cluster.ServiceDegraded, global.Status)

	assert.Len(t, f.cluster.CallsTo("ServiceList"), 1)
	assert.Len(t, f.cluster.CallsTo("TaskList"), 5)
}

func TestSnapshot_ServicesUnreachable(t *testing.T) {
	f := newFixture(t)
	f.cluster.Fail("10.0.0.1:2375", errors.New("connection refused"))
	f.cluster.Fail("10.0.0.2:2375", errors.New("connection refused"))

	snap, err := f.view.Snapshot(context.Background(), f.swarm)

	require.ErrorIs(t, err, cluster.ErrClusterUnreachable)
	assert.Equal(t, 5, snap.NodeCount)
	assert.Equal(t, 2, snap.ManagerCount)
	assert.Nil(t, snap.Services)
}

func TestSnapshot_FailoverToSecondManager(t *testing.T) {
	f := newFixture(t)
	f.cluster.Fail("10.0.0.1:2375", errors.New("i/o timeout"))

	snap, err := f.view.Snapshot(context.Background(), f.swarm)

	require.NoError(t, err)
	assert.Len(t, snap.Services, 5)
	for _, c := range f.cluster.CallsTo("TaskList") {
		assert.Equal(t, "10.0.0.2:2375", c.Address)
	}
}

func TestServiceDetail(t *testing.T) {
	f := newFixture(t)

	byName, err := f.view.ServiceDetail(context.Background(), f.swarm, "web")
	require.NoError(t, err)
	assert.Equal(t, "svc-running", byName.ID)
	assert.Equal(t, cluster.ServiceRunning, byName.Status)

	_, err = f.view.ServiceDetail(context.Background(), f.swarm, "nope")
	assert.ErrorIs(t, err, cluster.ErrNotFound)
}

func TestScale(t *testing.T) {
	f := newFixture(t)

	svc, err := f.view.Scale(context.Background(), f.swarm, "svc-degraded", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), svc.Replicas)
	assert.Equal(t, cluster.ServiceRunning, svc.Status)

	live, ok := f.cluster.Service("svc-degraded")
	require.True(t, ok)
	assert.Equal(t, uint64(2), *live.Spec.Mode.Replicated.Replicas)
	assert.Equal(t, uint64(6), live.Version.Index)
	assert.Equal(t, "redis:7", live.Spec.TaskTemplate.ContainerSpec.Image)
}

func TestScale_Errors(t *testing.T) {
	cases := []struct {
		desc     string
		ref      string
		err      error
		inspects int
	}{
		{desc: "unknown service asks every manager", ref: "missing", err: cluster.ErrNotFound, inspects: 2},
		{desc: "global service", ref: "agent", err: cluster.ErrValidation, inspects: 1},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.view.Scale(context.Background(), f.swarm, c.ref, 3)

			require.ErrorIs(t, err, c.err)
			assert.Empty(t, f.cluster.CallsTo("ServiceUpdate"))
			assert.Len(t, f.cluster.CallsTo("ServiceInspect"), c.inspects)
		})
	}
}

func TestScale_Unreachable(t *testing.T) {
	f := newFixture(t)
	f.cluster.Fail("10.0.0.1:2375", errors.New("connection refused"))
	f.cluster.Fail("10.0.0.2:2375", errors.New("connection refused"))

	_, err := f.view.Scale(context.Background(), f.swarm, "svc-running", 3)

	assert.ErrorIs(t, err, cluster.ErrClusterUnreachable)
}
