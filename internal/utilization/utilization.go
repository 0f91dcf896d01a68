package utilization

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
)

type Policy struct {
	// SubtractCache removes reclaimable page cache from used memory.
	SubtractCache bool
	// MemoryUnsupportedArchitectures lists architectures whose memory
	// counters are not reported, e.g. "armv7l".
	MemoryUnsupportedArchitectures []string
}

type Config struct {
	Selector *failover.Selector
	Policy   Policy
}

// Report holds both shapes computed from the same samples.
type Report struct {
	Node       cluster.Utilization            `json:"node"`
	Containers []cluster.ContainerUtilization `json:"containers"`
}

type Aggregator struct {
	selector *failover.Selector
	policy   Policy
}

func New(cfg *Config) *Aggregator {
	return &Aggregator{
		selector: cfg.Selector,
		policy:   cfg.Policy,
	}
}

// Report samples every running container on the node's own endpoint, one
// stats call per container. Any failure discards the whole report.
func (a *Aggregator) Report(ctx context.Context, node cluster.Node) (Report, error) {
	memorySupported := a.memorySupported(node.Architecture)

	var samples []cluster.ContainerUtilization
	err := a.selector.Direct(ctx, node.Endpoint(), func(ctx context.Context, client engine.Client) error {
		containers, err := client.ContainerList(ctx)
		if err != nil {
			return err
		}

		samples = make([]cluster.ContainerUtilization, 0, len(containers))
		for _, c := range containers {
			stats, err := client.ContainerStats(ctx, c.ID)
			if err != nil {
				return err
			}

			u := cluster.Utilization{
				CPU:             round2(CPUPercent(stats)),
				MemorySupported: memorySupported,
			}
			if memorySupported {
				u.Memory = round2(MemoryPercent(stats, a.policy.SubtractCache))
			}

			samples = append(samples, cluster.ContainerUtilization{Name: containerName(c), Utilization: u})
		}

		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("failed to sample node %s: %w", node.Hostname, err)
	}

	total := cluster.Utilization{MemorySupported: memorySupported}
	for _, s := range samples {
		total.CPU += s.CPU
		total.Memory += s.Memory
	}
	total.CPU = round2(total.CPU)
	total.Memory = round2(total.Memory)

	return Report{Node: total, Containers: samples}, nil
}

func (a *Aggregator) memorySupported(arch string) bool {
	for _, unsupported := range a.policy.MemoryUnsupportedArchitectures {
		if strings.EqualFold(unsupported, arch) {
			return false
		}
	}

	return true
}

// CPUPercent is the container's share of host CPU time between the two
// samples carried by one stats response, scaled by the online CPU count.
func CPUPercent(stats types.StatsJSON) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	cpus := float64(stats.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}

	return cpuDelta / systemDelta * cpus * 100
}

// MemoryPercent is used memory over the memory limit. cgroup v1 reports the
// page cache as "cache", cgroup v2 as "inactive_file".
func MemoryPercent(stats types.StatsJSON, subtractCache bool) float64 {
	limit := float64(stats.MemoryStats.Limit)
	if limit == 0 {
		return 0
	}

	used := stats.MemoryStats.Usage
	if subtractCache {
		cache, ok := stats.MemoryStats.Stats["cache"]
		if !ok {
			cache = stats.MemoryStats.Stats["inactive_file"]
		}

		if cache < used {
			used -= cache
		} else {
			used = 0
		}
	}

	return float64(used) / limit * 100
}

func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) > 12 {
		return c.ID[:12]
	}

	return c.ID
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
