package archive

import (
	"time"

	"github.com/google/uuid"
)

// TreeNode is one position in a containment tree. Nodes are append-only.
type TreeNode struct {
	ID         int64     `json:"id" yaml:"id"`
	ParentID   *int64    `json:"parent_id" yaml:"parent_id"`     // NULL = tree root
	DocumentID *int64    `json:"document_id" yaml:"document_id"` // NULL = anonymous position
	Title      string    `json:"title" yaml:"title"`
	ChildOrder int       `json:"child_order" yaml:"child_order"`
	Collated   bool      `json:"collated" yaml:"collated"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// IsRoot reports whether the node starts a tree.
func (n *TreeNode) IsRoot() bool {
	return n.ParentID == nil
}

// TreeView is the externalized table of contents of a collection.
type TreeView struct {
	NodeID          int64       `json:"node_id"`
	DocumentID      *int64      `json:"document_id,omitempty"`
	Identity        *uuid.UUID  `json:"identity,omitempty"`
	Kind            Kind        `json:"kind,omitempty"`
	Title           string      `json:"title"`
	RenderedVersion string      `json:"rendered_version,omitempty"`
	Children        []*TreeView `json:"children"`
}

// NodeSpec describes a tree to ingest. A node without a DocumentID but with
// children becomes a subcollection.
type NodeSpec struct {
	Title      string     `json:"title" yaml:"title"`
	DocumentID *int64     `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	Children   []NodeSpec `json:"children,omitempty" yaml:"children,omitempty"`
}
