package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"github.com/google/uuid"
)

// queryService implements the QueryService interface
type queryService struct {
	docRepo    archiveRepo.DocumentRepository
	treeRepo   archiveRepo.TreeRepository
	latestRepo archiveRepo.LatestRepository
	logger     *slog.Logger
}

func (s *queryService) ResolveLatest(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error) {
	p, err := s.latestRepo.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("get latest pointer: %w", err)
	}
	if p == nil {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("no current revision of %s", identity)}
	}
	return p, nil
}

func (s *queryService) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	return s.docRepo.GetByID(ctx, id)
}

func (s *queryService) ListRevisions(ctx context.Context, identity uuid.UUID) ([]*models.Document, error) {
	docs, err := s.docRepo.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("identity %s not found", identity)}
	}
	return docs, nil
}

// RenderTree builds the view in three passes like the loader: fetch the nodes,
// resolve their documents, then link children to parents in child order.
func (s *queryService) RenderTree(ctx context.Context, rootDocumentID int64) (*models.TreeView, error) {
	rootDoc, err := s.docRepo.GetByID(ctx, rootDocumentID)
	if err != nil {
		return nil, err
	}
	roots, err := s.treeRepo.FindRootNodes(ctx, rootDocumentID, false)
	if err != nil {
		return nil, fmt.Errorf("find tree root: %w", err)
	}
	switch {
	case len(roots) == 0:
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("collection %s has no tree", rootDoc.Ident())}
	case len(roots) > 1:
		return nil, fmt.Errorf("%w: collection %s has %d root nodes", domain.ErrAmbiguousRoot, rootDoc.Ident(), len(roots))
	}

	nodes, err := s.treeRepo.Subtree(ctx, roots[0].ID)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	docs := map[int64]*models.Document{rootDoc.ID: rootDoc}
	views := make(map[int64]*models.TreeView, len(nodes))
	for _, n := range nodes {
		view := &models.TreeView{NodeID: n.ID, Title: n.Title, Children: []*models.TreeView{}}
		if n.DocumentID != nil {
			doc, ok := docs[*n.DocumentID]
			if !ok {
				doc, err = s.docRepo.GetByID(ctx, *n.DocumentID)
				if errors.Is(err, domain.ErrNotFound) {
					s.logger.Error("tree node references missing document", "node_id", n.ID, "document_id", *n.DocumentID)
					return nil, fmt.Errorf("node %d document %d: %w", n.ID, *n.DocumentID, domain.ErrOrphanReference)
				}
				if err != nil {
					return nil, fmt.Errorf("node %d document %d: %w", n.ID, *n.DocumentID, err)
				}
				docs[doc.ID] = doc
			}
			identity := doc.Identity
			view.DocumentID = &doc.ID
			view.Identity = &identity
			view.Kind = doc.Kind
			view.RenderedVersion = doc.Version.String()
			if view.Title == "" {
				view.Title = doc.Title
			}
		}
		views[n.ID] = view
	}

	// Subtree returns parents before children, each sibling group in child order.
	for _, n := range nodes {
		if n.ParentID == nil {
			continue
		}
		if parent, ok := views[*n.ParentID]; ok {
			parent.Children = append(parent.Children, views[n.ID])
		}
	}
	return views[roots[0].ID], nil
}
