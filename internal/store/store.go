package store

import (
	"context"
	"fmt"
	"io"

	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/store/sqlstore"
)

type SwarmRepository interface {
	CreateSwarm(ctx context.Context, s *cluster.Swarm) error
	GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error)
	GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error)
	ListSwarms(ctx context.Context) ([]cluster.Swarm, error)
	UpdateSwarm(ctx context.Context, s *cluster.Swarm) error
	// DeleteSwarm removes the swarm and detaches its nodes; nodes are kept.
	DeleteSwarm(ctx context.Context, id int64) error
}

type NodeRepository interface {
	// CreateNodes stores all nodes or none of them.
	CreateNodes(ctx context.Context, nodes []*cluster.Node) error
	GetNode(ctx context.Context, id int64) (cluster.Node, error)
	GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error)
	ListNodes(ctx context.Context) ([]cluster.Node, error)
	// ListNodesBySwarm returns the swarm's nodes in id order.
	ListNodesBySwarm(ctx context.Context, swarmID int64) ([]cluster.Node, error)
	UpdateNode(ctx context.Context, node *cluster.Node) error
}

type Config struct {
	Type        string
	SQLitePath  string
	PostgresDSN string
}

type Repositories struct {
	Swarms SwarmRepository
	Nodes  NodeRepository
	// Closer is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg *Config) (*Repositories, error) {
	switch cfg.Type {
	case "sqlite":
		db, err := sqlstore.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return fromDatabase(db), nil
	case "postgres":
		db, err := sqlstore.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		return fromDatabase(db), nil
	case "memory":
		m := NewMemory()

		return &Repositories{Swarms: m, Nodes: m}, nil
	}

	return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
}

func fromDatabase(db *sqlstore.Database) *Repositories {
	return &Repositories{
		Swarms: sqlstore.NewSwarmRepository(db),
		Nodes:  sqlstore.NewNodeRepository(db),
		Closer: db,
	}
}
