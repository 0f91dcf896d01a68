package engine_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/mockengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(mc *engine.MemoryCluster) {
	replicas := uint64(2)
	mc.AddNode(swarm.Node{
		ID:   "id-m1",
		Meta: swarm.Meta{Version: swarm.Version{Index: 7}},
		Spec: swarm.NodeSpec{Role: swarm.NodeRoleManager, Availability: swarm.NodeAvailabilityActive},
		Description: swarm.NodeDescription{
			Hostname: "m1",
			Platform: swarm.Platform{Architecture: "x86_64", OS: "linux"},
		},
		Status:        swarm.NodeStatus{State: swarm.NodeStateReady, Addr: "10.0.0.1"},
		ManagerStatus: &swarm.ManagerStatus{Leader: true, Addr: "10.0.0.1:2377"},
	})
	mc.AddNode(swarm.Node{
		ID:          "id-w1",
		Meta:        swarm.Meta{Version: swarm.Version{Index: 7}},
		Spec:        swarm.NodeSpec{Role: swarm.NodeRoleWorker, Availability: swarm.NodeAvailabilityActive},
		Description: swarm.NodeDescription{Hostname: "w1"},
		Status:      swarm.NodeStatus{State: swarm.NodeStateReady, Addr: "127.0.0.1"},
	})
	mc.AddService(swarm.Service{
		ID:   "svc-web",
		Meta: swarm.Meta{Version: swarm.Version{Index: 3}},
		Spec: swarm.ServiceSpec{
			Annotations:  swarm.Annotations{Name: "web"},
			TaskTemplate: swarm.TaskSpec{ContainerSpec: &swarm.ContainerSpec{Image: "web:1"}},
			Mode:         swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}},
		},
	})
	mc.AddTask(swarm.Task{ID: "t1", ServiceID: "svc-web", Status: swarm.TaskStatus{State: swarm.TaskStateRunning}})
	mc.AddTask(swarm.Task{ID: "t2", ServiceID: "other", Status: swarm.TaskStatus{State: swarm.TaskStateRunning}})
	mc.SetJoinTokens(swarm.JoinTokens{Manager: "SWMTKN-m", Worker: "SWMTKN-w"})
}

func newDockerClient(t *testing.T) (*engine.MemoryCluster, engine.Client, string) {
	t.Helper()

	mc := engine.NewMemoryCluster()
	seed(mc)

	srv := httptest.NewServer(mockengine.NewHandler(mc, nil))
	t.Cleanup(srv.Close)

	address := srv.Listener.Addr().String()
	dialer := engine.NewDockerDialer(&engine.Config{Timeout: 5 * time.Second, APIVersion: "1.43"})

	c, err := dialer.Dial(address)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return mc, c, address
}

func TestDockerClient_Nodes(t *testing.T) {
	mc, c, _ := newDockerClient(t)
	ctx := context.Background()

	nodes, err := c.NodeList(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "m1", nodes[0].Description.Hostname)

	w1, err := c.NodeInspect(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "id-w1", w1.ID)

	spec := w1.Spec
	spec.Availability = swarm.NodeAvailabilityDrain
	require.NoError(t, c.NodeUpdate(ctx, w1.ID, w1.Version, spec))

	live, ok := mc.Node("id-w1")
	require.True(t, ok)
	assert.Equal(t, swarm.NodeAvailabilityDrain, live.Spec.Availability)
	assert.Equal(t, uint64(8), live.Version.Index)

	err = c.NodeUpdate(ctx, w1.ID, w1.Version, spec)
	assert.ErrorIs(t, err, cluster.ErrConflictRejected, "stale version")

	_, err = c.NodeInspect(ctx, "missing")
	assert.ErrorIs(t, err, cluster.ErrNotFound)
}

func TestDockerClient_Swarm(t *testing.T) {
	mc, c, _ := newDockerClient(t)
	ctx := context.Background()

	sw, err := c.SwarmInspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SWMTKN-w", sw.JoinTokens.Worker)

	// the endpoint is 127.0.0.1, which is w1
	require.NoError(t, c.SwarmLeave(ctx, false))

	_, ok := mc.Node("id-w1")
	assert.False(t, ok)

	err = c.SwarmLeave(ctx, false)
	assert.ErrorIs(t, err, cluster.ErrConflictRejected)
}

func TestDockerClient_Services(t *testing.T) {
	mc, c, _ := newDockerClient(t)
	ctx := context.Background()

	services, err := c.ServiceList(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)

	svc, err := c.ServiceInspect(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "svc-web", svc.ID)

	tasks, err := c.TaskList(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)

	replicas := uint64(5)
	spec := svc.Spec
	spec.Mode = swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}}
	require.NoError(t, c.ServiceUpdate(ctx, svc.ID, svc.Version, spec))

	live, ok := mc.Service("svc-web")
	require.True(t, ok)
	assert.Equal(t, uint64(5), *live.Spec.Mode.Replicated.Replicas)

	_, err = c.ServiceInspect(ctx, "missing")
	assert.ErrorIs(t, err, cluster.ErrNotFound)
}

func TestDockerClient_Containers(t *testing.T) {
	mc, c, address := newDockerClient(t)
	ctx := context.Background()

	var stats types.StatsJSON
	stats.CPUStats.CPUUsage.TotalUsage = 400
	stats.PreCPUStats.CPUUsage.TotalUsage = 200
	stats.CPUStats.SystemUsage = 2000
	stats.PreCPUStats.SystemUsage = 1000
	stats.CPUStats.OnlineCPUs = 2
	stats.MemoryStats.Usage = 512
	stats.MemoryStats.Limit = 1024

	mc.AddContainer(address, types.Container{ID: "c1", Names: []string{"/web.1"}}, stats)

	containers, err := c.ContainerList(ctx)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "/web.1", containers[0].Names[0])

	got, err := c.ContainerStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(400), got.CPUStats.CPUUsage.TotalUsage)
	assert.Equal(t, uint32(2), got.CPUStats.OnlineCPUs)
	assert.Equal(t, uint64(1024), got.MemoryStats.Limit)
}

func TestDockerClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(mockengine.NewHandler(engine.NewMemoryCluster(), nil))
	address := srv.Listener.Addr().String()
	srv.Close()

	c, err := engine.NewDockerDialer(engine.DefaultConfig()).Dial(address)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NodeList(context.Background())
	assert.ErrorIs(t, err, cluster.ErrClusterUnreachable)
}

func TestDockerClient_InjectedFailure(t *testing.T) {
	mc, c, address := newDockerClient(t)
	mc.Fail(address, cluster.ErrClusterUnreachable)

	_, err := c.NodeList(context.Background())
	assert.ErrorIs(t, err, cluster.ErrClusterUnreachable)
}
