package repository

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

const postgresManifestTable = `
	CREATE TABLE IF NOT EXISTS illustration_manifest (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		url        TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		run_id     TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresManifestRepository implements ManifestRepository for PostgreSQL
type PostgresManifestRepository struct {
	sqlManifestRepository
}

// NewPostgresManifestRepository creates a new PostgreSQL manifest repository
func NewPostgresManifestRepository(db *sql.DB) *PostgresManifestRepository {
	return &PostgresManifestRepository{sqlManifestRepository{
		db: db,
		dialect: dialect{
			name:        "postgres",
			createTable: postgresManifestTable,
			positional:  true,
		},
		now: time.Now,
	}}
}

// OpenPostgres opens a pooled connection for dsn
func OpenPostgres(dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	return db, nil
}
