package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
)

// TreeRepository implements archiveRepo.TreeRepository
type TreeRepository struct {
	store *Store
}

// NewTreeRepository creates a tree repository
func NewTreeRepository(store *Store) archiveRepo.TreeRepository {
	return &TreeRepository{store: store}
}

func cloneNode(n *models.TreeNode) *models.TreeNode {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	if n.DocumentID != nil {
		d := *n.DocumentID
		c.DocumentID = &d
	}
	return &c
}

func (r *TreeRepository) InsertNode(ctx context.Context, node *models.TreeNode) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNode(node); err != nil {
		return err
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	s.nextNodeID++
	node.ID = s.nextNodeID
	s.insertNode(ctx, cloneNode(node))
	return nil
}

func (r *TreeRepository) Import(ctx context.Context, node *models.TreeNode) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.ID]; ok {
		return false, nil
	}
	if err := s.checkNode(node); err != nil {
		return false, err
	}
	if node.ID > s.nextNodeID {
		s.nextNodeID = node.ID
	}
	s.insertNode(ctx, cloneNode(node))
	return true, nil
}

// checkNode enforces the foreign keys and sibling order uniqueness. Callers hold s.mu.
func (s *Store) checkNode(node *models.TreeNode) error {
	if node.DocumentID != nil {
		if _, ok := s.documents[*node.DocumentID]; !ok {
			return fmt.Errorf("tree node references document %d: %w", *node.DocumentID, domain.ErrOrphanReference)
		}
	}
	if node.ParentID == nil {
		return nil
	}
	if _, ok := s.nodes[*node.ParentID]; !ok {
		return fmt.Errorf("tree node references parent %d: %w", *node.ParentID, domain.ErrOrphanReference)
	}
	for _, id := range s.children[*node.ParentID] {
		if s.nodes[id].ChildOrder == node.ChildOrder {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("child order %d already used under node %d", node.ChildOrder, *node.ParentID),
				ResourceType: "tree_node",
				ResourceID:   strconv.FormatInt(id, 10),
			}
		}
	}
	return nil
}

// insertNode stores node and its indexes. Callers hold s.mu.
func (s *Store) insertNode(ctx context.Context, node *models.TreeNode) {
	s.nodes[node.ID] = node
	if node.ParentID != nil {
		s.children[*node.ParentID] = append(s.children[*node.ParentID], node.ID)
	}
	if node.DocumentID != nil {
		s.byDocument[*node.DocumentID] = append(s.byDocument[*node.DocumentID], node.ID)
	}
	s.journal(ctx, func() {
		delete(s.nodes, node.ID)
		if node.ParentID != nil {
			s.children[*node.ParentID] = without(s.children[*node.ParentID], node.ID)
		}
		if node.DocumentID != nil {
			s.byDocument[*node.DocumentID] = without(s.byDocument[*node.DocumentID], node.ID)
		}
	})
}

func without(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (r *TreeRepository) GetNode(ctx context.Context, id int64) (*models.TreeNode, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("tree node %d: %w", id, domain.ErrNotFound)
	}
	return cloneNode(n), nil
}

func (r *TreeRepository) UpdateNodeTitle(ctx context.Context, id int64, title string, documentID *int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("tree node %d: %w", id, domain.ErrNotFound)
	}
	if documentID != nil {
		if _, ok := s.documents[*documentID]; !ok {
			return fmt.Errorf("tree node references document %d: %w", *documentID, domain.ErrOrphanReference)
		}
	}

	prevTitle, prevDoc := n.Title, n.DocumentID
	n.Title = title
	if documentID != nil {
		if prevDoc != nil {
			s.byDocument[*prevDoc] = without(s.byDocument[*prevDoc], id)
		}
		d := *documentID
		n.DocumentID = &d
		s.byDocument[d] = append(s.byDocument[d], id)
	}
	rebound := documentID != nil
	s.journal(ctx, func() {
		if rebound {
			s.byDocument[*n.DocumentID] = without(s.byDocument[*n.DocumentID], id)
			if prevDoc != nil {
				s.byDocument[*prevDoc] = append(s.byDocument[*prevDoc], id)
			}
		}
		n.Title, n.DocumentID = prevTitle, prevDoc
	})
	return nil
}

func (r *TreeRepository) FindRootNodes(ctx context.Context, documentID int64, collated bool) ([]*models.TreeNode, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots []*models.TreeNode
	for _, id := range s.byDocument[documentID] {
		n := s.nodes[id]
		if n.ParentID == nil && n.Collated == collated {
			roots = append(roots, cloneNode(n))
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return roots, nil
}

func (r *TreeRepository) Subtree(ctx context.Context, rootNodeID int64) ([]*models.TreeNode, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.nodes[rootNodeID]
	if !ok {
		return nil, fmt.Errorf("tree node %d: %w", rootNodeID, domain.ErrNotFound)
	}

	out := []*models.TreeNode{cloneNode(root)}
	visited := map[int64]bool{rootNodeID: true}
	queue := []int64{rootNodeID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		kids := append([]int64(nil), s.children[parent]...)
		sort.Slice(kids, func(i, j int) bool {
			return s.nodes[kids[i]].ChildOrder < s.nodes[kids[j]].ChildOrder
		})
		for _, id := range kids {
			if visited[id] {
				continue
			}
			visited[id] = true
			out = append(out, cloneNode(s.nodes[id]))
			queue = append(queue, id)
		}
	}
	return out, nil
}

func (r *TreeRepository) FindContainingRoots(ctx context.Context, documentID int64) ([]*models.Document, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var roots []*models.Document
	for _, start := range s.byDocument[documentID] {
		root := s.walkToRoot(start)
		if root == nil || root.Collated || root.DocumentID == nil || *root.DocumentID == documentID {
			continue
		}
		if seen[*root.DocumentID] {
			continue
		}
		seen[*root.DocumentID] = true

		doc := s.documents[*root.DocumentID]
		if doc == nil || doc.Kind != models.KindCollection {
			continue
		}
		if p := s.latest[doc.Identity]; p == nil || p.DocumentID != doc.ID {
			continue
		}
		roots = append(roots, doc.Clone())
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return roots, nil
}

// walkToRoot follows parent links from a node. Returns nil on a cycle. Callers hold s.mu.
func (s *Store) walkToRoot(id int64) *models.TreeNode {
	visited := make(map[int64]bool)
	n := s.nodes[id]
	for n != nil && n.ParentID != nil {
		if visited[n.ID] {
			return nil
		}
		visited[n.ID] = true
		n = s.nodes[*n.ParentID]
	}
	return n
}
