package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// DocumentRepository defines data access operations for document revisions
type DocumentRepository interface {
	// Create inserts a revision and assigns its ID.
	// Returns a ConflictError when (identity, version) already exists.
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a revision by ID
	GetByID(ctx context.Context, id int64) (*models.Document, error)

	// GetByIdentityVersion retrieves the revision of an identity at an exact version
	GetByIdentityVersion(ctx context.Context, identity uuid.UUID, version models.Version) (*models.Document, error)

	// ListByIdentity returns every revision of an identity ordered by version ascending
	ListByIdentity(ctx context.Context, identity uuid.UUID) ([]*models.Document, error)

	// MaxVersion returns the highest version of an identity in any state.
	// ok is false when the identity has no revisions.
	MaxVersion(ctx context.Context, identity uuid.UUID) (version models.Version, ok bool, err error)

	// UpdateState changes a revision's state and returns the previous state.
	UpdateState(ctx context.Context, id int64, state models.State) (models.State, error)

	// Import inserts a revision keeping its ID. inserted is false when the
	// ID or (identity, version) already exists.
	Import(ctx context.Context, doc *models.Document) (inserted bool, err error)
}
