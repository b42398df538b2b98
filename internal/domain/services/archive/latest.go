package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// LatestMaintainer keeps the latest pointer of each identity correct
type LatestMaintainer interface {
	// DocumentChanged must be called after a revision is inserted or its state changes.
	// Reports whether the pointer now references doc.
	DocumentChanged(ctx context.Context, doc *models.Document) (bool, error)

	// Recompute rebuilds the pointer of an identity from its revisions
	Recompute(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error)
}
