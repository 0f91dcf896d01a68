package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/falmar/swarmman/internal/cluster"
)

type SwarmRepository struct {
	db *Database
}

func NewSwarmRepository(db *Database) *SwarmRepository {
	return &SwarmRepository{db: db}
}

type dbSwarm struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	ManagerToken string `db:"manager_token"`
	WorkerToken  string `db:"worker_token"`
}

func (d dbSwarm) toSwarm() cluster.Swarm {
	return cluster.Swarm{
		ID:           d.ID,
		Name:         d.Name,
		ManagerToken: d.ManagerToken,
		WorkerToken:  d.WorkerToken,
	}
}

const swarmColumns = `id, name, manager_token, worker_token`

func (r *SwarmRepository) CreateSwarm(ctx context.Context, s *cluster.Swarm) error {
	query := r.db.Rebind(`INSERT INTO swarms (name, manager_token, worker_token) VALUES (?, ?, ?) RETURNING id`)

	if err := r.db.QueryRowxContext(ctx, query, s.Name, s.ManagerToken, s.WorkerToken).Scan(&s.ID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: swarm %q", cluster.ErrAlreadyExists, s.Name)
		}

		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return nil
}

func (r *SwarmRepository) GetSwarm(ctx context.Context, id int64) (cluster.Swarm, error) {
	return r.get(ctx, `SELECT `+swarmColumns+` FROM swarms WHERE id = ?`, id)
}

func (r *SwarmRepository) GetSwarmByName(ctx context.Context, name string) (cluster.Swarm, error) {
	return r.get(ctx, `SELECT `+swarmColumns+` FROM swarms WHERE name = ?`, name)
}

func (r *SwarmRepository) get(ctx context.Context, query string, arg any) (cluster.Swarm, error) {
	var row dbSwarm
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cluster.Swarm{}, fmt.Errorf("%w: swarm %v", cluster.ErrNotFound, arg)
		}

		return cluster.Swarm{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return row.toSwarm(), nil
}

func (r *SwarmRepository) ListSwarms(ctx context.Context) ([]cluster.Swarm, error) {
	var rows []dbSwarm
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+swarmColumns+` FROM swarms ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	swarms := make([]cluster.Swarm, 0, len(rows))
	for _, row := range rows {
		swarms = append(swarms, row.toSwarm())
	}

	return swarms, nil
}

func (r *SwarmRepository) UpdateSwarm(ctx context.Context, s *cluster.Swarm) error {
	query := r.db.Rebind(`UPDATE swarms SET name = ?, manager_token = ?, worker_token = ? WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, query, s.Name, s.ManagerToken, s.WorkerToken, s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: swarm %q", cluster.ErrAlreadyExists, s.Name)
		}

		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return requireAffected(res, "swarm", s.ID)
}

func (r *SwarmRepository) DeleteSwarm(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer tx.Rollback()

	detach := tx.Rebind(`UPDATE nodes SET swarm_id = NULL, role = ? WHERE swarm_id = ?`)
	if _, err := tx.ExecContext(ctx, detach, string(cluster.RoleUnassigned), id); err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM swarms WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if err := requireAffected(res, "swarm", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return nil
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", cluster.ErrNotFound, kind, id)
	}

	return nil
}
