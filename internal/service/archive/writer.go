package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"
)

// revisionWriter is the single write path for revisions. Every insert and
// state change maintains the latest pointer and appends an outbox event in the
// caller's transaction.
type revisionWriter struct {
	docRepo     archiveRepo.DocumentRepository
	controlRepo archiveRepo.ControlRepository
	eventRepo   archiveRepo.EventRepository
	latest      archiveSvc.LatestMaintainer
	now         func() time.Time
	logger      *slog.Logger
}

// insert stores doc and reports whether it became the latest revision of its identity.
func (w *revisionWriter) insert(ctx context.Context, doc *models.Document) (bool, error) {
	if err := doc.Version.ValidateFor(doc.Kind); err != nil {
		return false, err
	}
	if doc.RevisedAt.IsZero() {
		doc.RevisedAt = w.now().UTC()
	}
	if err := w.docRepo.Create(ctx, doc); err != nil {
		return false, fmt.Errorf("create revision %s: %w", doc.Ident(), err)
	}
	if _, err := w.controlRepo.EnsureControl(ctx, &models.DocumentControl{
		Identity: doc.Identity,
		License:  doc.License,
	}); err != nil {
		return false, fmt.Errorf("ensure document control: %w", err)
	}
	metrics.Publications.WithLabelValues(string(doc.Kind)).Inc()
	return w.changed(ctx, doc)
}

// changed runs the latest maintainer and records the publication event.
func (w *revisionWriter) changed(ctx context.Context, doc *models.Document) (bool, error) {
	isLatest, err := w.latest.DocumentChanged(ctx, doc)
	if err != nil {
		return false, err
	}
	if err := w.eventRepo.Append(ctx, models.EventFor(doc, w.now())); err != nil {
		return false, fmt.Errorf("append publication event: %w", err)
	}
	w.logger.Debug("revision written",
		"document_id", doc.ID,
		"identity", doc.Identity,
		"version", doc.Version.String(),
		"state", doc.State,
		"latest", isLatest,
	)
	return isLatest, nil
}
