package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"archive/internal/config"
	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// ingestService implements the IngestService interface
type ingestService struct {
	docRepo    archiveRepo.DocumentRepository
	treeRepo   archiveRepo.TreeRepository
	txManager  repositories.TransactionManager
	identities *identityResolver
	logger     *slog.Logger
}

func (s *ingestService) InsertTreeNode(ctx context.Context, req *archiveSvc.InsertNodeRequest) (*models.TreeNode, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ChildOrder, validation.Min(0)),
		validation.Field(&req.Title, validation.Length(0, config.MaxTitleLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	node := &models.TreeNode{
		ParentID:   req.ParentID,
		DocumentID: req.DocumentID,
		Title:      req.Title,
		ChildOrder: req.ChildOrder,
		Collated:   req.Collated,
	}
	if err := s.treeRepo.InsertNode(ctx, node); err != nil {
		if errors.Is(err, domain.ErrOrphanReference) {
			s.logger.Error("tree node insert references missing row",
				"parent_id", req.ParentID,
				"document_id", req.DocumentID,
				"error", err,
			)
		}
		return nil, fmt.Errorf("insert tree node: %w", err)
	}
	return node, nil
}

func (s *ingestService) UpdateNodeTitle(ctx context.Context, nodeID int64, title string, documentID *int64) error {
	if err := validation.Validate(title, validation.Length(0, config.MaxTitleLength)); err != nil {
		return fmt.Errorf("%w: title %v", domain.ErrValidation, err)
	}

	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		node, err := s.treeRepo.GetNode(txCtx, nodeID)
		if err != nil {
			return err
		}
		if documentID != nil {
			return s.treeRepo.UpdateNodeTitle(txCtx, nodeID, title, documentID)
		}
		if node.DocumentID != nil {
			doc, err := s.docRepo.GetByID(txCtx, *node.DocumentID)
			if err != nil {
				return err
			}
			// A title equal to the document's own is not stored at the position.
			if doc.Title == title {
				return nil
			}
		}
		return s.treeRepo.UpdateNodeTitle(txCtx, nodeID, title, nil)
	})
}

func (s *ingestService) ResolveAndUpsertSubcollection(ctx context.Context, title string, parentIdentity uuid.UUID, parentVersion models.Version) (*models.Document, error) {
	return s.identities.ResolveSubcollection(ctx, parentIdentity, title, parentVersion)
}

func (s *ingestService) BuildTree(ctx context.Context, req *archiveSvc.BuildTreeRequest) (*models.TreeNode, error) {
	var root *models.TreeNode
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		collection, err := s.docRepo.GetByID(txCtx, req.CollectionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("collection %d: %w", req.CollectionID, domain.ErrOrphanReference)
			}
			return err
		}
		if collection.Kind != models.KindCollection {
			return fmt.Errorf("%w: document %d is a %s, not a Collection", domain.ErrValidation, collection.ID, collection.Kind)
		}

		existing, err := s.treeRepo.FindRootNodes(txCtx, collection.ID, req.Collated)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("collection %s already has a tree", collection.Ident()),
				ResourceType: "tree_node",
				ResourceID:   fmt.Sprint(existing[0].ID),
			}
		}

		root = &models.TreeNode{DocumentID: &collection.ID, Title: collection.Title, Collated: req.Collated}
		if err := s.treeRepo.InsertNode(txCtx, root); err != nil {
			return fmt.Errorf("insert tree root: %w", err)
		}

		b := &treeBuilder{ingestService: s, collection: collection, scope: NewTitleScope(), collated: req.Collated}
		return b.build(txCtx, root.ID, req.Children, 1)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tree ingested", "collection_id", req.CollectionID, "root_node_id", root.ID, "collated", req.Collated)
	return root, nil
}

// treeBuilder writes one tree. Subcollections at every depth are addressed
// under the collection itself, so a subcollection title is unique per tree.
type treeBuilder struct {
	*ingestService
	collection *models.Document
	scope      archiveSvc.TitleScope
	collated   bool
}

func (b *treeBuilder) build(ctx context.Context, parentID int64, specs []models.NodeSpec, depth int) error {
	if depth > config.MaxTreeDepth {
		return fmt.Errorf("%w: tree deeper than %d levels", domain.ErrValidation, config.MaxTreeDepth)
	}

	for i, spec := range specs {
		node := &models.TreeNode{
			ParentID:   &parentID,
			DocumentID: spec.DocumentID,
			Title:      spec.Title,
			ChildOrder: i,
			Collated:   b.collated,
		}

		if spec.DocumentID == nil && len(spec.Children) > 0 {
			if err := b.scope.Claim(b.collection.Identity, spec.Title); err != nil {
				return err
			}
			sub, err := b.identities.resolve(ctx, b.collection, spec.Title)
			if err != nil {
				return err
			}
			node.DocumentID = &sub.ID
		}

		if err := b.treeRepo.InsertNode(ctx, node); err != nil {
			return fmt.Errorf("insert node %q: %w", spec.Title, err)
		}
		if len(spec.Children) > 0 {
			if err := b.build(ctx, node.ID, spec.Children, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
