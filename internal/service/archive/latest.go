package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"

	"github.com/google/uuid"
)

// latestMaintainer implements the LatestMaintainer interface.
// Every pointer write happens under the identity's ScopeLatest lock and goes
// through an atomic merge-max, so concurrent writers converge on the maximum version.
type latestMaintainer struct {
	docRepo    archiveRepo.DocumentRepository
	latestRepo archiveRepo.LatestRepository
	locker     repositories.IdentityLocker
	logger     *slog.Logger
}

// NewLatestMaintainer creates a latest pointer maintainer
func NewLatestMaintainer(
	docRepo archiveRepo.DocumentRepository,
	latestRepo archiveRepo.LatestRepository,
	locker repositories.IdentityLocker,
	logger *slog.Logger,
) archiveSvc.LatestMaintainer {
	return &latestMaintainer{
		docRepo:    docRepo,
		latestRepo: latestRepo,
		locker:     locker,
		logger:     logger,
	}
}

func (m *latestMaintainer) DocumentChanged(ctx context.Context, doc *models.Document) (bool, error) {
	var isLatest bool
	err := m.locker.WithLock(ctx, repositories.ScopeLatest, doc.Identity, func(ctx context.Context) error {
		if doc.State.Eligible() {
			err := m.promote(ctx, doc)
			if errors.Is(err, domain.ErrStaleWrite) {
				m.logger.Debug("latest pointer kept newer revision",
					"identity", doc.Identity,
					"document_id", doc.ID,
					"version", doc.Version.String(),
				)
				metrics.LatestUpdates.WithLabelValues("stale").Inc()
				return nil
			}
			if err != nil {
				return err
			}
			isLatest = true
			return nil
		}

		current, err := m.latestRepo.Get(ctx, doc.Identity)
		if err != nil {
			return fmt.Errorf("get latest pointer: %w", err)
		}
		if current == nil || current.DocumentID != doc.ID {
			metrics.LatestUpdates.WithLabelValues("unchanged").Inc()
			return nil
		}
		_, err = m.recompute(ctx, doc.Identity)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("maintain latest pointer of %s: %w", doc.Identity, err)
	}
	return isLatest, nil
}

// promote merges doc into the pointer. Returns ErrStaleWrite when a newer version is stored.
func (m *latestMaintainer) promote(ctx context.Context, doc *models.Document) error {
	applied, err := m.latestRepo.MergeMax(ctx, models.PointerFor(doc))
	if err != nil {
		return fmt.Errorf("merge latest pointer: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: %s", domain.ErrStaleWrite, doc.Ident())
	}
	metrics.LatestUpdates.WithLabelValues("applied").Inc()
	return nil
}

func (m *latestMaintainer) Recompute(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error) {
	var p *models.LatestPointer
	err := m.locker.WithLock(ctx, repositories.ScopeLatest, identity, func(ctx context.Context) error {
		var err error
		p, err = m.recompute(ctx, identity)
		return err
	})
	return p, err
}

// recompute picks the maximum eligible revision. Version order decides; state only filters.
func (m *latestMaintainer) recompute(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error) {
	docs, err := m.docRepo.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}

	var best *models.Document
	for _, d := range docs {
		if d.State.Eligible() && (best == nil || best.Version.Less(d.Version)) {
			best = d
		}
	}

	if best == nil {
		if err := m.latestRepo.Delete(ctx, identity); err != nil {
			return nil, fmt.Errorf("delete latest pointer: %w", err)
		}
		metrics.LatestUpdates.WithLabelValues("deleted").Inc()
		m.logger.Info("latest pointer removed", "identity", identity)
		return nil, nil
	}

	p := models.PointerFor(best)
	if err := m.latestRepo.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("put latest pointer: %w", err)
	}
	metrics.LatestUpdates.WithLabelValues("recomputed").Inc()
	m.logger.Info("latest pointer recomputed",
		"identity", identity,
		"document_id", best.ID,
		"version", best.Version.String(),
	)
	return p, nil
}
