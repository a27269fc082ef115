package repository

import (
	"context"

	"github.com/basel-ax/illustrator/internal/domain"
)

// ManifestRepository persists per-illustration state across runs
type ManifestRepository interface {
	// Get returns the record for id, or nil when it has never been seen
	Get(ctx context.Context, id string) (*domain.ManifestRecord, error)
	// List returns all records ordered by id
	List(ctx context.Context) ([]domain.ManifestRecord, error)
	// Succeeded returns the ids whose last recorded status is succeeded
	Succeeded(ctx context.Context) (map[string]struct{}, error)
	// UpdateStatus records a non-terminal transition
	UpdateStatus(ctx context.Context, id string, status domain.Status, runID string) error
	// MarkSucceeded records a successful upload and its public URL
	MarkSucceeded(ctx context.Context, id, url, runID string) error
	// MarkFailed records a failed attempt and its error message
	MarkFailed(ctx context.Context, id, message, runID string) error
	Close() error
}
