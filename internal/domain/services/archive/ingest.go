package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// IngestService is the tree-building interface used by description parsers
type IngestService interface {
	InsertTreeNode(ctx context.Context, req *InsertNodeRequest) (*models.TreeNode, error)

	// UpdateNodeTitle sets a node's display title. With a document the node is
	// (re)bound to it; without one the title only changes when the node is anonymous
	// or its document's own title differs.
	UpdateNodeTitle(ctx context.Context, nodeID int64, title string, documentID *int64) error

	ResolveAndUpsertSubcollection(ctx context.Context, title string, parentIdentity uuid.UUID, parentVersion models.Version) (*models.Document, error)

	// BuildTree ingests a nested description under a collection revision in one transaction
	BuildTree(ctx context.Context, req *BuildTreeRequest) (*models.TreeNode, error)
}

// InsertNodeRequest positions a node
type InsertNodeRequest struct {
	ParentID   *int64 `json:"parent_id"`
	DocumentID *int64 `json:"document_id"`
	ChildOrder int    `json:"child_order"`
	Title      string `json:"title"`
	Collated   bool   `json:"collated"`
}

// BuildTreeRequest ingests the tree of one collection revision
type BuildTreeRequest struct {
	CollectionID int64             `json:"collection_id"`
	Children     []models.NodeSpec `json:"children"`
	Collated     bool              `json:"collated"`
}
