package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/failover"
)

type NodeLister interface {
	ListNodesBySwarm(ctx context.Context, swarmID int64) ([]cluster.Node, error)
}

type Config struct {
	Nodes    NodeLister
	Selector *failover.Selector
}

type Snapshot struct {
	Swarm        cluster.Swarm     `json:"swarm"`
	NodeCount    int               `json:"node_count"`
	ManagerCount int               `json:"manager_count"`
	WorkerCount  int               `json:"worker_count"`
	Services     []cluster.Service `json:"services"`
}

type View struct {
	nodes    NodeLister
	selector *failover.Selector
}

func New(cfg *Config) *View {
	return &View{
		nodes:    cfg.Nodes,
		selector: cfg.Selector,
	}
}

// Snapshot counts the swarm's nodes and lists its services with health. When
// the services cannot be fetched the counts are still returned along with
// the error.
func (v *View) Snapshot(ctx context.Context, s cluster.Swarm) (Snapshot, error) {
	nodes, err := v.nodes.ListNodesBySwarm(ctx, s.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list swarm nodes: %w", err)
	}

	snap := Snapshot{Swarm: s, NodeCount: len(nodes)}
	for _, n := range nodes {
		switch n.Role {
		case cluster.RoleManager:
			snap.ManagerCount++
		case cluster.RoleWorker:
			snap.WorkerCount++
		}
	}

	_, err = v.selector.Do(ctx, v.selector.Candidates(nodes), func(ctx context.Context, client engine.Client) error {
		list, err := client.ServiceList(ctx)
		if err != nil {
			return err
		}

		services := make([]cluster.Service, 0, len(list))
		for _, svc := range list {
			tasks, err := client.TaskList(ctx, svc.ID)
			if err != nil {
				return err
			}

			services = append(services, toService(s.ID, svc, tasks))
		}
		snap.Services = services

		return nil
	})
	if err != nil {
		return snap, fmt.Errorf("failed to list services of swarm %s: %w", s.Name, err)
	}

	return snap, nil
}

// ServiceDetail looks a service up by id or name.
func (v *View) ServiceDetail(ctx context.Context, s cluster.Swarm, ref string) (cluster.Service, error) {
	endpoints, err := v.candidates(ctx, s)
	if err != nil {
		return cluster.Service{}, err
	}

	var service cluster.Service
	_, err = v.selector.Do(ctx, endpoints, func(ctx context.Context, client engine.Client) error {
		svc, err := client.ServiceInspect(ctx, ref)
		if err != nil {
			return err
		}

		tasks, err := client.TaskList(ctx, svc.ID)
		if err != nil {
			return err
		}

		service = toService(s.ID, svc, tasks)

		return nil
	})
	if err != nil {
		return cluster.Service{}, fmt.Errorf("failed to inspect service %s: %w", ref, err)
	}

	return service, nil
}

// Scale sets the desired replica count of a replicated service.
func (v *View) Scale(ctx context.Context, s cluster.Swarm, ref string, replicas uint64) (cluster.Service, error) {
	endpoints, err := v.candidates(ctx, s)
	if err != nil {
		return cluster.Service{}, err
	}

	var service cluster.Service
	_, err = v.selector.Do(ctx, endpoints, func(ctx context.Context, client engine.Client) error {
		svc, err := client.ServiceInspect(ctx, ref)
		if err != nil {
			return err
		}

		if svc.Spec.Mode.Replicated == nil {
			return fmt.Errorf("%w: service %s is not replicated", cluster.ErrValidation, svc.Spec.Name)
		}

		spec := svc.Spec
		spec.Mode.Replicated = &swarm.ReplicatedService{Replicas: &replicas}

		if err := client.ServiceUpdate(ctx, svc.ID, svc.Version, spec); err != nil {
			return err
		}

		tasks, err := client.TaskList(ctx, svc.ID)
		if err != nil {
			return err
		}

		svc.Spec = spec
		service = toService(s.ID, svc, tasks)

		return nil
	})
	if err != nil {
		return cluster.Service{}, fmt.Errorf("failed to scale service %s: %w", ref, err)
	}

	return service, nil
}

func (v *View) candidates(ctx context.Context, s cluster.Swarm) ([]string, error) {
	nodes, err := v.nodes.ListNodesBySwarm(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list swarm nodes: %w", err)
	}

	return v.selector.Candidates(nodes), nil
}

func toService(swarmID int64, svc swarm.Service, tasks []swarm.Task) cluster.Service {
	var running uint64
	for _, t := range tasks {
		if t.Status.State == swarm.TaskStateRunning {
			running++
		}
	}

	desired := desiredTasks(svc, tasks)

	service := cluster.Service{
		ID:           svc.ID,
		Name:         svc.Spec.Name,
		SwarmID:      swarmID,
		Replicas:     desired,
		RunningTasks: running,
		Status:       cluster.ClassifyService(desired, running),
	}

	if cs := svc.Spec.TaskTemplate.ContainerSpec; cs != nil {
		service.Image, _, _ = strings.Cut(cs.Image, "@")
	}

	ports := svc.Endpoint.Ports
	if len(ports) == 0 && svc.Spec.EndpointSpec != nil {
		ports = svc.Spec.EndpointSpec.Ports
	}
	if len(ports) > 0 {
		service.TargetPort = ports[0].TargetPort
		service.PublishedPort = ports[0].PublishedPort
	}

	return service
}

func desiredTasks(svc swarm.Service, tasks []swarm.Task) uint64 {
	if r := svc.Spec.Mode.Replicated; r != nil && r.Replicas != nil {
		return *r.Replicas
	}

	if svc.ServiceStatus != nil {
		return svc.ServiceStatus.DesiredTasks
	}

	// Global services without a status report: one desired task per node
	// the scheduler is keeping alive.
	var desired uint64
	for _, t := range tasks {
		if t.DesiredState == swarm.TaskStateRunning {
			desired++
		}
	}

	return desired
}
