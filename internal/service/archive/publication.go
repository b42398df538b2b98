package archive

import (
	"context"
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

// RepublishMode selects what happens after a revision replaces the latest one.
type RepublishMode string

const (
	RepublishSync  RepublishMode = "sync"
	RepublishAsync RepublishMode = "async"
	RepublishOff   RepublishMode = "off"
)

// publicationService implements the PublicationService interface
type publicationService struct {
	docRepo     archiveRepo.DocumentRepository
	latestRepo  archiveRepo.LatestRepository
	txManager   repositories.TransactionManager
	locker      repositories.IdentityLocker
	versions    archiveSvc.VersionResolver
	writer      *revisionWriter
	republisher archiveSvc.Republisher
	queue       archiveSvc.RepublishQueue
	mode        RepublishMode
	logger      *slog.Logger
}

func (s *publicationService) Publish(ctx context.Context, req *archiveSvc.PublishRequest) (*archiveSvc.PublishResult, error) {
	if req.State == "" {
		req.State = models.StateCurrent
	}
	if req.Bump == "" {
		req.Bump = archiveSvc.BumpMajor
	}
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Kind, validation.Required,
			validation.In(models.KindModule, models.KindCollection).Error("must be Module or Collection")),
		validation.Field(&req.Title, validation.Required, validation.Length(1, config.MaxTitleLength)),
		validation.Field(&req.State, validation.In(
			models.StateQueued, models.StateProcessing, models.StateCurrent,
			models.StateFallback, models.StateSuperseded, models.StateError,
		)),
		validation.Field(&req.Bump, validation.In(archiveSvc.BumpMajor, archiveSvc.BumpMinor)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if req.Version != nil {
		if err := req.Version.ValidateFor(req.Kind); err != nil {
			return nil, err
		}
	}

	identity := uuid.New()
	if req.Identity != nil {
		identity = *req.Identity
	}

	result := &archiveSvc.PublishResult{}
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return s.locker.WithLock(txCtx, repositories.ScopeRevision, identity, func(txCtx context.Context) error {
			previous, err := s.latestRepo.Get(txCtx, identity)
			if err != nil {
				return fmt.Errorf("get latest pointer: %w", err)
			}

			var version models.Version
			if req.Version != nil {
				version = *req.Version
			} else if version, err = s.versions.NextVersion(txCtx, identity, req.Kind, req.Bump); err != nil {
				return err
			}

			doc := &models.Document{
				Identity:  identity,
				Version:   version,
				Kind:      req.Kind,
				State:     req.State,
				Title:     req.Title,
				License:   req.License,
				Language:  req.Language,
				Authors:   req.Authors,
				Keywords:  req.Keywords,
				Submitter: req.Submitter,
				SubmitLog: req.SubmitLog,
			}
			if err := s.firstCreated(txCtx, doc); err != nil {
				return err
			}
			isLatest, err := s.writer.insert(txCtx, doc)
			if err != nil {
				return err
			}

			result.Document = doc
			result.Latest = isLatest
			if isLatest && previous != nil && previous.DocumentID != doc.ID {
				replaced := previous.DocumentID
				result.Replaced = &replaced
			}
			return s.enqueue(txCtx, result, req.Submitter, req.SubmitLog)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document published",
		"document_id", result.Document.ID,
		"identity", result.Document.Identity,
		"kind", result.Document.Kind,
		"version", result.Document.Version.String(),
		"latest", result.Latest,
	)

	s.afterReplace(ctx, result, req.Submitter, req.SubmitLog)
	return result, nil
}

// firstCreated carries the identity's original creation time onto a new revision.
func (s *publicationService) firstCreated(ctx context.Context, doc *models.Document) error {
	revisions, err := s.docRepo.ListByIdentity(ctx, doc.Identity)
	if err != nil {
		return fmt.Errorf("list revisions: %w", err)
	}
	if len(revisions) > 0 {
		doc.CreatedAt = revisions[0].CreatedAt
	}
	return nil
}

func (s *publicationService) SetState(ctx context.Context, documentID int64, state models.State) (*archiveSvc.PublishResult, error) {
	if _, err := models.ParseState(string(state)); err != nil {
		return nil, err
	}

	result := &archiveSvc.PublishResult{}
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		doc, err := s.docRepo.GetByID(txCtx, documentID)
		if err != nil {
			return err
		}
		return s.locker.WithLock(txCtx, repositories.ScopeRevision, doc.Identity, func(txCtx context.Context) error {
			previous, err := s.latestRepo.Get(txCtx, doc.Identity)
			if err != nil {
				return fmt.Errorf("get latest pointer: %w", err)
			}
			if _, err := s.docRepo.UpdateState(txCtx, doc.ID, state); err != nil {
				return err
			}
			doc.State = state

			isLatest, err := s.writer.changed(txCtx, doc)
			if err != nil {
				return err
			}
			result.Document = doc
			result.Latest = isLatest
			if isLatest && previous != nil && previous.DocumentID != doc.ID {
				replaced := previous.DocumentID
				result.Replaced = &replaced
			}
			return s.enqueue(txCtx, result, doc.Submitter, "")
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document state changed",
		"document_id", documentID,
		"identity", result.Document.Identity,
		"state", state,
		"latest", result.Latest,
	)

	s.afterReplace(ctx, result, result.Document.Submitter, "")
	return result, nil
}

// republishRequest describes the republication a replacement calls for, or nil.
func republishRequest(result *archiveSvc.PublishResult, submitter, submitLog string) *archiveSvc.RepublishRequest {
	if result.Replaced == nil || result.Document.Kind == models.KindSubCollection {
		return nil
	}
	return &archiveSvc.RepublishRequest{
		OldDocumentID: *result.Replaced,
		NewDocumentID: result.Document.ID,
		Submitter:     submitter,
		SubmitLog:     submitLog,
	}
}

// enqueue persists the republish job with the write that calls for it, so a
// committed replacement always has its job.
func (s *publicationService) enqueue(ctx context.Context, result *archiveSvc.PublishResult, submitter, submitLog string) error {
	if s.mode != RepublishAsync {
		return nil
	}
	req := republishRequest(result, submitter, submitLog)
	if req == nil {
		return nil
	}
	if err := s.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("enqueue republish: %w", err)
	}
	return nil
}

// afterReplace runs once the write has committed. In sync mode it republishes
// the collections containing the replaced revision; failures are reported, not
// returned. In async mode it wakes the workers.
func (s *publicationService) afterReplace(ctx context.Context, result *archiveSvc.PublishResult, submitter, submitLog string) {
	req := republishRequest(result, submitter, submitLog)
	if req == nil {
		return
	}

	switch s.mode {
	case RepublishSync:
		republished, err := s.republisher.Republish(ctx, req)
		if err != nil {
			s.logger.Warn("republish after publication incomplete",
				"document_id", result.Document.ID,
				"replaced", *result.Replaced,
				"error", err,
			)
		}
		result.Republish = republished
	case RepublishAsync:
		s.queue.Notify()
	}
}
