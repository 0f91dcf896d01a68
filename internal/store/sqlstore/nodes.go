package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/falmar/swarmman/internal/cluster"
)

type NodeRepository struct {
	db *Database
}

func NewNodeRepository(db *Database) *NodeRepository {
	return &NodeRepository{db: db}
}

type dbNode struct {
	ID            int64   `db:"id"`
	Hostname      string  `db:"hostname"`
	Address       string  `db:"address"`
	Port          int     `db:"port"`
	Role          string  `db:"role"`
	SwarmID       *int64  `db:"swarm_id"`
	ClusterNodeID string  `db:"cluster_node_id"`
	Architecture  string  `db:"architecture"`
	OS            string  `db:"os"`
	MemoryGB      float64 `db:"memory_gb"`
	CPUCount      float64 `db:"cpu_count"`
	EngineVersion string  `db:"engine_version"`
	Availability  string  `db:"availability"`
	VersionIndex  int64   `db:"version_index"`
}

func (d dbNode) toNode() cluster.Node {
	return cluster.Node{
		ID:            d.ID,
		Hostname:      d.Hostname,
		Address:       d.Address,
		Port:          d.Port,
		Role:          cluster.Role(d.Role),
		SwarmID:       d.SwarmID,
		ClusterNodeID: d.ClusterNodeID,
		Architecture:  d.Architecture,
		OS:            d.OS,
		MemoryGB:      d.MemoryGB,
		CPUCount:      d.CPUCount,
		EngineVersion: d.EngineVersion,
		Availability:  cluster.Availability(d.Availability),
		VersionIndex:  uint64(d.VersionIndex),
	}
}

const nodeColumns = `id, hostname, address, port, role, swarm_id, cluster_node_id, architecture,
	os, memory_gb, cpu_count, engine_version, availability, version_index`

func (r *NodeRepository) CreateNodes(ctx context.Context, nodes []*cluster.Node) error {
	for _, n := range nodes {
		if err := n.RequireAddress(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO nodes (hostname, address, port, role, swarm_id, cluster_node_id,
		architecture, os, memory_gb, cpu_count, engine_version, availability, version_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		err := tx.QueryRowxContext(ctx, query,
			n.Hostname, n.Address, n.Port, string(n.Role), n.SwarmID, n.ClusterNodeID,
			n.Architecture, n.OS, n.MemoryGB, n.CPUCount, n.EngineVersion, string(n.Availability),
			int64(n.VersionIndex),
		).Scan(&ids[i])
		if err != nil {
			return writeError(err, n)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	for i, n := range nodes {
		n.ID = ids[i]
	}

	return nil
}

func (r *NodeRepository) GetNode(ctx context.Context, id int64) (cluster.Node, error) {
	return r.get(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
}

func (r *NodeRepository) GetNodeByAddress(ctx context.Context, address string) (cluster.Node, error) {
	return r.get(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE address = ?`, address)
}

func (r *NodeRepository) get(ctx context.Context, query string, arg any) (cluster.Node, error) {
	var row dbNode
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cluster.Node{}, fmt.Errorf("%w: node %v", cluster.ErrNotFound, arg)
		}

		return cluster.Node{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return row.toNode(), nil
}

func (r *NodeRepository) ListNodes(ctx context.Context) ([]cluster.Node, error) {
	return r.list(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY id`)
}

func (r *NodeRepository) ListNodesBySwarm(ctx context.Context, swarmID int64) ([]cluster.Node, error) {
	return r.list(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE swarm_id = ? ORDER BY id`, swarmID)
}

func (r *NodeRepository) list(ctx context.Context, query string, args ...any) ([]cluster.Node, error) {
	var rows []dbNode
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	nodes := make([]cluster.Node, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, row.toNode())
	}

	return nodes, nil
}

func (r *NodeRepository) UpdateNode(ctx context.Context, n *cluster.Node) error {
	if err := n.RequireAddress(); err != nil {
		return err
	}

	query := r.db.Rebind(`UPDATE nodes SET hostname = ?, address = ?, port = ?, role = ?, swarm_id = ?,
		cluster_node_id = ?, architecture = ?, os = ?, memory_gb = ?, cpu_count = ?,
		engine_version = ?, availability = ?, version_index = ?
		WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query,
		n.Hostname, n.Address, n.Port, string(n.Role), n.SwarmID,
		n.ClusterNodeID, n.Architecture, n.OS, n.MemoryGB, n.CPUCount,
		n.EngineVersion, string(n.Availability), int64(n.VersionIndex),
		n.ID,
	)
	if err != nil {
		return writeError(err, n)
	}

	return requireAffected(res, "node", n.ID)
}

func writeError(err error, n *cluster.Node) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: node address %s", cluster.ErrAlreadyExists, n.Address)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: swarm %d", cluster.ErrNotFound, *n.SwarmID)
	}

	return fmt.Errorf("%w: %w", ErrDBQuery, err)
}
