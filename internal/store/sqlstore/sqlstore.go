package sqlstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
)

// Database is a migrated connection to either sqlite or postgres.
type Database struct {
	*sqlx.DB
}

func NewSQLite(path string) (*Database, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	database := &Database{DB: db}
	if err := database.migrate("sqlite3", sqliteMigrations); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func NewPostgres(dsn string) (*Database, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}
	if err := database.migrate("postgres", postgresMigrations); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func (db *Database) migrate(dialect string, source *migrate.MemoryMigrationSource) error {
	if _, err := migrate.Exec(db.DB.DB, dialect, source, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}

var sqliteMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_create_swarms_nodes",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS swarms (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					manager_token TEXT NOT NULL DEFAULT '',
					worker_token TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS nodes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					hostname TEXT NOT NULL,
					address TEXT NOT NULL UNIQUE,
					port INTEGER NOT NULL,
					role TEXT NOT NULL,
					swarm_id INTEGER REFERENCES swarms(id) ON DELETE SET NULL,
					cluster_node_id TEXT NOT NULL DEFAULT '',
					architecture TEXT NOT NULL DEFAULT '',
					os TEXT NOT NULL DEFAULT '',
					memory_gb REAL NOT NULL DEFAULT 0,
					cpu_count REAL NOT NULL DEFAULT 0,
					engine_version TEXT NOT NULL DEFAULT '',
					availability TEXT NOT NULL DEFAULT '',
					version_index INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_nodes_swarm_id ON nodes(swarm_id)`,
			},
			Down: []string{
				`DROP INDEX IF EXISTS idx_nodes_swarm_id`,
				`DROP TABLE IF EXISTS nodes`,
				`DROP TABLE IF EXISTS swarms`,
			},
		},
	},
}

var postgresMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_create_swarms_nodes",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS swarms (
					id BIGSERIAL PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					manager_token TEXT NOT NULL DEFAULT '',
					worker_token TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE TABLE IF NOT EXISTS nodes (
					id BIGSERIAL PRIMARY KEY,
					hostname TEXT NOT NULL,
					address TEXT NOT NULL UNIQUE,
					port INTEGER NOT NULL,
					role TEXT NOT NULL,
					swarm_id BIGINT REFERENCES swarms(id) ON DELETE SET NULL,
					cluster_node_id TEXT NOT NULL DEFAULT '',
					architecture TEXT NOT NULL DEFAULT '',
					os TEXT NOT NULL DEFAULT '',
					memory_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
					cpu_count DOUBLE PRECISION NOT NULL DEFAULT 0,
					engine_version TEXT NOT NULL DEFAULT '',
					availability TEXT NOT NULL DEFAULT '',
					version_index BIGINT NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_nodes_swarm_id ON nodes(swarm_id)`,
			},
			Down: []string{
				`DROP INDEX IF EXISTS idx_nodes_swarm_id`,
				`DROP TABLE IF EXISTS nodes`,
				`DROP TABLE IF EXISTS swarms`,
			},
		},
	},
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}

	return false
}
