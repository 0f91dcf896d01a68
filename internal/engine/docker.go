package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/falmar/swarmman/internal/cluster"
)

var _ Dialer = (*dockerDialer)(nil)
var _ Client = (*dockerClient)(nil)

func NewDockerDialer(cfg *Config) Dialer {
	return &dockerDialer{cfg: *cfg}
}

type dockerDialer struct {
	cfg Config
}

func (d *dockerDialer) Dial(address string) (Client, error) {
	opts := []client.Opt{
		client.WithHost("tcp://" + address),
		client.WithTimeout(d.cfg.Timeout),
	}
	if d.cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(d.cfg.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create docker client for %s: %w", cluster.ErrClusterUnreachable, address, err)
	}

	return &dockerClient{cli: cli}, nil
}

type dockerClient struct {
	cli *client.Client
}

func (d *dockerClient) NodeList(ctx context.Context) ([]swarm.Node, error) {
	nodes, err := d.cli.NodeList(ctx, types.NodeListOptions{
		Filters: filters.NewArgs(filters.Arg("membership", "accepted")),
	})
	if err != nil {
		return nil, classify(err)
	}

	return nodes, nil
}

func (d *dockerClient) NodeInspect(ctx context.Context, ref string) (swarm.Node, error) {
	node, _, err := d.cli.NodeInspectWithRaw(ctx, ref)
	if err != nil {
		return swarm.Node{}, classify(err)
	}

	return node, nil
}

func (d *dockerClient) NodeUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.NodeSpec) error {
	return classify(d.cli.NodeUpdate(ctx, id, version, spec))
}

func (d *dockerClient) SwarmInspect(ctx context.Context) (swarm.Swarm, error) {
	sw, err := d.cli.SwarmInspect(ctx)
	if err != nil {
		return swarm.Swarm{}, classify(err)
	}

	return sw, nil
}

func (d *dockerClient) SwarmLeave(ctx context.Context, force bool) error {
	return classify(d.cli.SwarmLeave(ctx, force))
}

func (d *dockerClient) ServiceList(ctx context.Context) ([]swarm.Service, error) {
	services, err := d.cli.ServiceList(ctx, types.ServiceListOptions{Status: true})
	if err != nil {
		return nil, classify(err)
	}

	return services, nil
}

func (d *dockerClient) ServiceInspect(ctx context.Context, id string) (swarm.Service, error) {
	service, _, err := d.cli.ServiceInspectWithRaw(ctx, id, types.ServiceInspectOptions{})
	if err != nil {
		return swarm.Service{}, classify(err)
	}

	return service, nil
}

func (d *dockerClient) ServiceUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.ServiceSpec) error {
	_, err := d.cli.ServiceUpdate(ctx, id, version, spec, types.ServiceUpdateOptions{})

	return classify(err)
}

func (d *dockerClient) TaskList(ctx context.Context, serviceID string) ([]swarm.Task, error) {
	tasks, err := d.cli.TaskList(ctx, types.TaskListOptions{
		Filters: filters.NewArgs(filters.Arg("service", serviceID)),
	})
	if err != nil {
		return nil, classify(err)
	}

	return tasks, nil
}

func (d *dockerClient) ContainerList(ctx context.Context) ([]types.Container, error) {
	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, classify(err)
	}

	return containers, nil
}

// ContainerStats takes a single non-streaming sample. The response carries
// both the current and the preceding cumulative counters.
func (d *dockerClient) ContainerStats(ctx context.Context, id string) (types.StatsJSON, error) {
	res, err := d.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return types.StatsJSON{}, classify(err)
	}
	defer res.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		return types.StatsJSON{}, fmt.Errorf("%w: failed to decode stats for %s: %w", cluster.ErrClusterUnreachable, id, err)
	}

	return stats, nil
}

func (d *dockerClient) Close() error {
	return d.cli.Close()
}

// classify maps docker SDK errors onto the cluster error taxonomy. Anything
// that is not an explicit rejection by the control plane counts as the
// endpoint being unreachable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", cluster.ErrNotFound, err)
	case errdefs.IsInvalidParameter(err),
		errdefs.IsConflict(err),
		errdefs.IsForbidden(err),
		errdefs.IsUnauthorized(err),
		strings.Contains(err.Error(), "update out of sequence"):
		return fmt.Errorf("%w: %w", cluster.ErrConflictRejected, err)
	}

	return fmt.Errorf("%w: %w", cluster.ErrClusterUnreachable, err)
}
