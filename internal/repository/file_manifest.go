package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basel-ax/illustrator/internal/domain"
)

type manifestDocument struct {
	Records []domain.ManifestRecord `yaml:"records"`
}

// FileManifestRepository keeps the manifest in a YAML file. Every write
// rewrites the file atomically (temp file, fsync, rename).
type FileManifestRepository struct {
	mu      sync.Mutex
	path    string
	records map[string]domain.ManifestRecord
	now     func() time.Time
}

// NewFileManifestRepository loads the manifest at path. A missing file is
// an empty manifest.
func NewFileManifestRepository(path string) (*FileManifestRepository, error) {
	r := &FileManifestRepository{
		path:    path,
		records: make(map[string]domain.ManifestRecord),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var doc manifestDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	for _, rec := range doc.Records {
		r.records[rec.ID] = rec
	}
	return r, nil
}

// Get returns a copy of the record for id, or nil when there is none
func (r *FileManifestRepository) Get(_ context.Context, id string) (*domain.ManifestRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// List returns all records ordered by id
func (r *FileManifestRepository) List(_ context.Context) ([]domain.ManifestRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedLocked(), nil
}

// Succeeded returns the ids whose last recorded status is succeeded
func (r *FileManifestRepository) Succeeded(_ context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[string]struct{})
	for id, rec := range r.records {
		if rec.Status == domain.StatusSucceeded {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// UpdateStatus records a transition and rewrites the file
func (r *FileManifestRepository) UpdateStatus(_ context.Context, id string, status domain.Status, runID string) error {
	return r.update(id, func(rec *domain.ManifestRecord) {
		rec.Status = status
		rec.RunID = runID
	})
}

// MarkSucceeded stores the public URL and clears any previous error
func (r *FileManifestRepository) MarkSucceeded(_ context.Context, id, url, runID string) error {
	return r.update(id, func(rec *domain.ManifestRecord) {
		rec.Status = domain.StatusSucceeded
		rec.URL = url
		rec.Error = ""
		rec.RunID = runID
	})
}

// MarkFailed stores the error message of the last attempt
func (r *FileManifestRepository) MarkFailed(_ context.Context, id, message, runID string) error {
	return r.update(id, func(rec *domain.ManifestRecord) {
		rec.Status = domain.StatusFailed
		rec.Error = message
		rec.RunID = runID
	})
}

// Close is a no-op; every write is already on disk
func (r *FileManifestRepository) Close() error {
	return nil
}

func (r *FileManifestRepository) update(id string, mutate func(*domain.ManifestRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.records[id]
	rec := prev
	rec.ID = id
	mutate(&rec)
	rec.UpdatedAt = r.now().UTC()
	r.records[id] = rec

	if err := r.persistLocked(); err != nil {
		if existed {
			r.records[id] = prev
		} else {
			delete(r.records, id)
		}
		return err
	}
	return nil
}

func (r *FileManifestRepository) sortedLocked() []domain.ManifestRecord {
	out := make([]domain.ManifestRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *FileManifestRepository) persistLocked() error {
	data, err := yaml.Marshal(manifestDocument{Records: r.sortedLocked()})
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// NopManifestRepository discards all state. Used when persistence is off.
type NopManifestRepository struct{}

// Get always reports an unknown id
func (NopManifestRepository) Get(context.Context, string) (*domain.ManifestRecord, error) {
	return nil, nil
}

// List returns no records
func (NopManifestRepository) List(context.Context) ([]domain.ManifestRecord, error) {
	return nil, nil
}

// Succeeded returns an empty set
func (NopManifestRepository) Succeeded(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

// UpdateStatus discards the transition
func (NopManifestRepository) UpdateStatus(context.Context, string, domain.Status, string) error {
	return nil
}

// MarkSucceeded discards the result
func (NopManifestRepository) MarkSucceeded(context.Context, string, string, string) error {
	return nil
}

// MarkFailed discards the result
func (NopManifestRepository) MarkFailed(context.Context, string, string, string) error {
	return nil
}

// Close does nothing
func (NopManifestRepository) Close() error {
	return nil
}

var (
	_ ManifestRepository = (*FileManifestRepository)(nil)
	_ ManifestRepository = (*PostgresManifestRepository)(nil)
	_ ManifestRepository = (*SQLiteManifestRepository)(nil)
	_ ManifestRepository = NopManifestRepository{}
)
