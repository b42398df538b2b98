package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// QueryService is the read interface
type QueryService interface {
	// ResolveLatest returns the latest pointer or ErrNotFound
	ResolveLatest(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error)

	// RenderTree returns the nested table of contents of a collection revision
	RenderTree(ctx context.Context, rootDocumentID int64) (*models.TreeView, error)

	GetDocument(ctx context.Context, id int64) (*models.Document, error)

	ListRevisions(ctx context.Context, identity uuid.UUID) ([]*models.Document, error)
}
