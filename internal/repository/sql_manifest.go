package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/basel-ax/illustrator/internal/domain"
)

// sqlManifestRepository implements ManifestRepository on database/sql.
// Queries are written with ? placeholders and rebound per dialect.
type sqlManifestRepository struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

type dialect struct {
	name        string
	createTable string
	positional  bool
}

func (r *sqlManifestRepository) rebind(query string) string {
	if !r.dialect.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Migrate creates the manifest table when it does not exist
func (r *sqlManifestRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.createTable); err != nil {
		return fmt.Errorf("failed to create %s manifest table: %w", r.dialect.name, err)
	}
	return nil
}

// Get retrieves the record for an illustration
func (r *sqlManifestRepository) Get(ctx context.Context, id string) (*domain.ManifestRecord, error) {
	query := r.rebind(`
		SELECT id, status, url, error, run_id, updated_at
		FROM illustration_manifest
		WHERE id = ?
	`)

	var rec domain.ManifestRecord
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&status,
		&rec.URL,
		&rec.Error,
		&rec.RunID,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)

	return &rec, nil
}

// List retrieves every record ordered by id
func (r *sqlManifestRepository) List(ctx context.Context) ([]domain.ManifestRecord, error) {
	query := `
		SELECT id, status, url, error, run_id, updated_at
		FROM illustration_manifest
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ManifestRecord
	for rows.Next() {
		var rec domain.ManifestRecord
		var status string
		if err := rows.Scan(&rec.ID, &status, &rec.URL, &rec.Error, &rec.RunID, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = domain.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Succeeded retrieves the ids whose last attempt succeeded
func (r *sqlManifestRepository) Succeeded(ctx context.Context) (map[string]struct{}, error) {
	query := r.rebind(`
		SELECT id
		FROM illustration_manifest
		WHERE status = ?
	`)

	rows, err := r.db.QueryContext(ctx, query, string(domain.StatusSucceeded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UpdateStatus updates the status of an illustration
func (r *sqlManifestRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, runID string) error {
	query := r.rebind(`
		INSERT INTO illustration_manifest (id, status, run_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, run_id = excluded.run_id, updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query, id, string(status), runID, r.now().UTC())
	return err
}

// MarkSucceeded stores the public URL and clears any previous error
func (r *sqlManifestRepository) MarkSucceeded(ctx context.Context, id, url, runID string) error {
	query := r.rebind(`
		INSERT INTO illustration_manifest (id, status, url, error, run_id, updated_at)
		VALUES (?, ?, ?, '', ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, url = excluded.url, error = '',
			run_id = excluded.run_id, updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query, id, string(domain.StatusSucceeded), url, runID, r.now().UTC())
	return err
}

// MarkFailed stores the error message of the last attempt
func (r *sqlManifestRepository) MarkFailed(ctx context.Context, id, message, runID string) error {
	query := r.rebind(`
		INSERT INTO illustration_manifest (id, status, error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, error = excluded.error,
			run_id = excluded.run_id, updated_at = excluded.updated_at
	`)

	_, err := r.db.ExecContext(ctx, query, id, string(domain.StatusFailed), message, runID, r.now().UTC())
	return err
}

// Close closes the database handle
func (r *sqlManifestRepository) Close() error {
	return r.db.Close()
}
