package repository

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteManifestTable = `
	CREATE TABLE IF NOT EXISTS illustration_manifest (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		url        TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		run_id     TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)
`

// SQLiteManifestRepository implements ManifestRepository on a local
// SQLite file
type SQLiteManifestRepository struct {
	sqlManifestRepository
}

// OpenSQLite opens the SQLite database at path. A single connection keeps
// writes serialised.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteManifestRepository creates a new SQLite manifest repository
func NewSQLiteManifestRepository(db *sql.DB) *SQLiteManifestRepository {
	return &SQLiteManifestRepository{sqlManifestRepository{
		db: db,
		dialect: dialect{
			name:        "sqlite",
			createTable: sqliteManifestTable,
		},
		now: time.Now,
	}}
}
