package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// dumpService implements the DumpService interface
type dumpService struct {
	docRepo     archiveRepo.DocumentRepository
	controlRepo archiveRepo.ControlRepository
	treeRepo    archiveRepo.TreeRepository
	txManager   repositories.TransactionManager
	writer      *revisionWriter
	logger      *slog.Logger
}

func (s *dumpService) Export(ctx context.Context, rootDocumentID int64) (*models.Bundle, error) {
	root, err := s.docRepo.GetByID(ctx, rootDocumentID)
	if err != nil {
		return nil, err
	}
	bundle := &models.Bundle{Root: root.Ident()}

	docs := map[int64]bool{}
	addDoc := func(d *models.Document) {
		if !docs[d.ID] {
			docs[d.ID] = true
			bundle.Documents = append(bundle.Documents, d)
		}
	}
	addDoc(root)

	for _, collated := range []bool{false, true} {
		roots, err := s.treeRepo.FindRootNodes(ctx, root.ID, collated)
		if err != nil {
			return nil, fmt.Errorf("find tree roots: %w", err)
		}
		for _, r := range roots {
			nodes, err := s.treeRepo.Subtree(ctx, r.ID)
			if err != nil {
				return nil, fmt.Errorf("load tree: %w", err)
			}
			for _, n := range nodes {
				bundle.Nodes = append(bundle.Nodes, n)
				if n.DocumentID == nil || docs[*n.DocumentID] {
					continue
				}
				doc, err := s.docRepo.GetByID(ctx, *n.DocumentID)
				if err != nil {
					return nil, fmt.Errorf("node %d document: %w", n.ID, err)
				}
				addDoc(doc)
			}
		}
	}

	identities := map[uuid.UUID]bool{}
	for _, d := range bundle.Documents {
		if identities[d.Identity] {
			continue
		}
		identities[d.Identity] = true
		control, err := s.controlRepo.GetControl(ctx, d.Identity)
		if err != nil {
			return nil, fmt.Errorf("document control %s: %w", d.Identity, err)
		}
		bundle.Controls = append(bundle.Controls, *control)
		acl, err := s.controlRepo.ListACL(ctx, d.Identity)
		if err != nil {
			return nil, fmt.Errorf("document acl %s: %w", d.Identity, err)
		}
		bundle.ACL = append(bundle.ACL, acl...)
	}

	s.logger.Info("collection exported",
		"root", bundle.Root,
		"documents", len(bundle.Documents),
		"nodes", len(bundle.Nodes),
	)
	return bundle, nil
}

// Restore keeps primary identifiers. Rows that already exist are skipped, so
// restoring the same bundle twice is a no-op. Bundle nodes must list parents first.
func (s *dumpService) Restore(ctx context.Context, bundle *models.Bundle) (*archiveSvc.RestoreResult, error) {
	result := &archiveSvc.RestoreResult{}
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		for i := range bundle.Controls {
			if _, err := s.controlRepo.EnsureControl(txCtx, &bundle.Controls[i]); err != nil {
				return fmt.Errorf("restore document control: %w", err)
			}
		}
		for _, entry := range bundle.ACL {
			if err := s.controlRepo.GrantACL(txCtx, entry); err != nil {
				return fmt.Errorf("restore acl: %w", err)
			}
		}

		var inserted []*models.Document
		for _, doc := range bundle.Documents {
			if err := doc.Version.ValidateFor(doc.Kind); err != nil {
				return fmt.Errorf("restore document %d: %w", doc.ID, err)
			}
			ok, err := s.docRepo.Import(txCtx, doc)
			if err != nil {
				return fmt.Errorf("restore document %d: %w", doc.ID, err)
			}
			if !ok {
				result.Skipped++
				continue
			}
			result.Documents++
			inserted = append(inserted, doc)
		}

		for _, node := range bundle.Nodes {
			ok, err := s.treeRepo.Import(txCtx, node)
			if err != nil {
				return fmt.Errorf("restore tree node %d: %w", node.ID, err)
			}
			if !ok {
				result.Skipped++
				continue
			}
			result.Nodes++
		}

		// Latest pointers are derived rows; rebuild them from the inserted revisions.
		for _, doc := range inserted {
			if _, err := s.writer.changed(txCtx, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collection restored",
		"root", bundle.Root,
		"documents", result.Documents,
		"nodes", result.Nodes,
		"skipped", result.Skipped,
	)
	return result, nil
}

// WriteBundle encodes a bundle as YAML.
func WriteBundle(w io.Writer, bundle *models.Bundle) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(bundle); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return enc.Close()
}

// ReadBundle decodes a YAML bundle.
func ReadBundle(r io.Reader) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := yaml.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &bundle, nil
}
