package mockd

import (
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/engine"
)

// Seed loads a three node swarm on loopback addresses: one manager on
// 127.0.0.1 and workers on 127.0.0.2 and 127.0.0.3, all answering on port.
func Seed(mc *engine.MemoryCluster, port string) {
	mc.SetJoinTokens(swarm.JoinTokens{
		Manager: "SWMTKN-1-mockd-manager",
		Worker:  "SWMTKN-1-mockd-worker",
	})

	nodes := []struct {
		id, hostname, addr string
		role               swarm.NodeRole
	}{
		{"mockd-m1", "manager-1", "127.0.0.1", swarm.NodeRoleManager},
		{"mockd-w1", "worker-1", "127.0.0.2", swarm.NodeRoleWorker},
		{"mockd-w2", "worker-2", "127.0.0.3", swarm.NodeRoleWorker},
	}

	for i, n := range nodes {
		node := swarm.Node{
			ID:   n.id,
			Meta: swarm.Meta{Version: swarm.Version{Index: uint64(10 + i)}},
			Spec: swarm.NodeSpec{
				Role:         n.role,
				Availability: swarm.NodeAvailabilityActive,
			},
			Description: swarm.NodeDescription{
				Hostname: n.hostname,
				Platform: swarm.Platform{Architecture: "x86_64", OS: "linux"},
				Resources: swarm.Resources{
					NanoCPUs:    2e9,
					MemoryBytes: 4e9,
				},
				Engine: swarm.EngineDescription{EngineVersion: "24.0.2"},
			},
			Status: swarm.NodeStatus{State: swarm.NodeStateReady, Addr: n.addr},
		}
		if n.role == swarm.NodeRoleManager {
			node.ManagerStatus = &swarm.ManagerStatus{
				Leader:       true,
				Reachability: swarm.ReachabilityReachable,
				Addr:         n.addr + ":2377",
			}
		}
		mc.AddNode(node)
	}

	replicas := uint64(2)
	mc.AddService(swarm.Service{
		ID:   "mockd-web",
		Meta: swarm.Meta{Version: swarm.Version{Index: 20}},
		Spec: swarm.ServiceSpec{
			Annotations: swarm.Annotations{Name: "web"},
			TaskTemplate: swarm.TaskSpec{
				ContainerSpec: &swarm.ContainerSpec{Image: "nginx:1.25"},
			},
			Mode: swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}},
		},
	})

	for i, nodeID := range []string{"mockd-w1", "mockd-w2"} {
		mc.AddTask(swarm.Task{
			ID:           fmt.Sprintf("mockd-web-task-%d", i+1),
			ServiceID:    "mockd-web",
			NodeID:       nodeID,
			Slot:         i + 1,
			DesiredState: swarm.TaskStateRunning,
			Status:       swarm.TaskStatus{State: swarm.TaskStateRunning},
		})
	}

	for i, addr := range []string{"127.0.0.2", "127.0.0.3"} {
		var stats types.StatsJSON
		stats.CPUStats.CPUUsage.TotalUsage = 400_000_000
		stats.CPUStats.SystemUsage = 20_000_000_000
		stats.CPUStats.OnlineCPUs = 2
		stats.PreCPUStats.CPUUsage.TotalUsage = 200_000_000
		stats.PreCPUStats.SystemUsage = 10_000_000_000
		stats.MemoryStats.Usage = uint64(150+50*i) << 20
		stats.MemoryStats.Limit = 4e9
		stats.MemoryStats.Stats = map[string]uint64{"cache": 20 << 20}

		mc.AddContainer(addr+":"+port, types.Container{
			ID:    fmt.Sprintf("mockd-web-%d", i+1),
			Names: []string{fmt.Sprintf("/web.%d", i+1)},
			Image: "nginx:1.25",
			State: "running",
		}, stats)
	}
}
