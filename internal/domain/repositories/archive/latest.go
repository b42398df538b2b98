package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// LatestRepository stores one pointer row per identity
type LatestRepository interface {
	// Get returns the pointer or nil when absent
	Get(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error)

	// MergeMax atomically replaces the pointer when p.Version is >= the stored version,
	// or inserts it when absent. applied is false when a newer version is already stored.
	MergeMax(ctx context.Context, p *models.LatestPointer) (applied bool, err error)

	// Put unconditionally replaces the pointer
	Put(ctx context.Context, p *models.LatestPointer) error

	// Delete removes the pointer if present
	Delete(ctx context.Context, identity uuid.UUID) error

	// List returns all pointers ordered by identity
	List(ctx context.Context, limit, offset int) ([]*models.LatestPointer, error)
}
