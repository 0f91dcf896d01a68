package engine

import (
	"context"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
)

// Client is the subset of the cluster management API the controllers drive.
// A Client talks to exactly one endpoint and must be closed by the caller.
type Client interface {
	NodeList(ctx context.Context) ([]swarm.Node, error)
	NodeInspect(ctx context.Context, ref string) (swarm.Node, error)
	NodeUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.NodeSpec) error

	SwarmInspect(ctx context.Context) (swarm.Swarm, error)
	SwarmLeave(ctx context.Context, force bool) error

	ServiceList(ctx context.Context) ([]swarm.Service, error)
	ServiceInspect(ctx context.Context, id string) (swarm.Service, error)
	ServiceUpdate(ctx context.Context, id string, version swarm.Version, spec swarm.ServiceSpec) error
	TaskList(ctx context.Context, serviceID string) ([]swarm.Task, error)

	ContainerList(ctx context.Context) ([]types.Container, error)
	ContainerStats(ctx context.Context, id string) (types.StatsJSON, error)

	Close() error
}

// Dialer opens a Client for an "address:port" endpoint.
type Dialer interface {
	Dial(address string) (Client, error)
}

type Config struct {
	Timeout    time.Duration
	APIVersion string
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		APIVersion: "1.43",
	}
}
