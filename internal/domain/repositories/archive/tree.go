package archive

import (
	"context"

	models "archive/internal/domain/models/archive"
)

// TreeRepository defines data access operations for containment trees.
// Nodes are append-only; only ingestion may set a node's title or document.
type TreeRepository interface {
	// InsertNode inserts a node and assigns its ID.
	// Returns a ConflictError when child_order is taken among the siblings.
	InsertNode(ctx context.Context, node *models.TreeNode) error

	// GetNode retrieves a node by ID
	GetNode(ctx context.Context, id int64) (*models.TreeNode, error)

	// UpdateNodeTitle sets a node's title, and its document when documentID is non-nil
	UpdateNodeTitle(ctx context.Context, id int64, title string, documentID *int64) error

	// FindRootNodes returns the root nodes of a document's trees of the given flavour
	FindRootNodes(ctx context.Context, documentID int64, collated bool) ([]*models.TreeNode, error)

	// Subtree returns the root and all its descendants ordered by (parent, child_order).
	// Walks stop at nodes already visited.
	Subtree(ctx context.Context, rootNodeID int64) ([]*models.TreeNode, error)

	// FindContainingRoots returns the latest (Current/Fallback) collection revisions whose
	// non-collated tree contains a node referencing documentID. The document's own tree is excluded.
	FindContainingRoots(ctx context.Context, documentID int64) ([]*models.Document, error)

	// Import inserts a node keeping its ID. inserted is false when the ID already exists.
	Import(ctx context.Context, node *models.TreeNode) (inserted bool, err error)
}
