package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// DeriveIdentity is the content address of a subcollection: a name-based
// SHA-1 UUID (version 5) with the parent identity as namespace and the raw
// title bytes as name. Titles are not normalized.
func DeriveIdentity(parent uuid.UUID, title string) uuid.UUID {
	return uuid.NewSHA1(parent, []byte(title))
}

// identityResolver implements the IdentityResolver interface
type identityResolver struct {
	docRepo     archiveRepo.DocumentRepository
	controlRepo archiveRepo.ControlRepository
	locker      repositories.IdentityLocker
	txManager   repositories.TransactionManager
	writer      *revisionWriter
	logger      *slog.Logger
}

func (r *identityResolver) DeriveIdentity(parent uuid.UUID, title string) uuid.UUID {
	return DeriveIdentity(parent, title)
}

func (r *identityResolver) ResolveSubcollection(ctx context.Context, parentIdentity uuid.UUID, title string, version models.Version) (*models.Document, error) {
	var doc *models.Document
	err := r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		parent, err := r.docRepo.GetByIdentityVersion(txCtx, parentIdentity, version)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("subcollection parent %s@%s: %w", parentIdentity, version, domain.ErrOrphanReference)
			}
			return err
		}
		doc, err = r.resolve(txCtx, parent, title)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// resolve finds or creates the subcollection titled title under parent, at the
// parent's version. parent may be a Collection or a SubCollection. The caller's
// transaction makes the insert atomic with the surrounding tree writes.
func (r *identityResolver) resolve(ctx context.Context, parent *models.Document, title string) (*models.Document, error) {
	if !parent.Kind.IsComposite() {
		return nil, fmt.Errorf("%w: subcollection parent %s is a %s", domain.ErrValidation, parent.Ident(), parent.Kind)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: subcollection title is required", domain.ErrValidation)
	}

	candidate := DeriveIdentity(parent.Identity, title)
	var doc *models.Document
	err := r.locker.WithLock(ctx, repositories.ScopeRevision, candidate, func(ctx context.Context) error {
		existing, err := r.docRepo.GetByIdentityVersion(ctx, candidate, parent.Version)
		if err == nil {
			metrics.Subcollections.WithLabelValues("existing").Inc()
			doc = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("find subcollection: %w", err)
		}

		revisions, err := r.docRepo.ListByIdentity(ctx, candidate)
		if err != nil {
			return fmt.Errorf("list subcollection revisions: %w", err)
		}

		if len(revisions) > 0 {
			doc = subcollectionRevision(revisions[len(revisions)-1], parent, title)
			if _, err := r.writer.insert(ctx, doc); err != nil {
				return r.retryExisting(ctx, err, candidate, parent.Version, &doc)
			}
			metrics.Subcollections.WithLabelValues("revision").Inc()
			r.logger.Debug("subcollection revision created",
				"identity", candidate,
				"title", title,
				"version", doc.Version.String(),
			)
			return nil
		}

		doc = newSubcollection(candidate, parent, title)
		if _, err := r.controlRepo.EnsureControl(ctx, &models.DocumentControl{
			Identity: candidate,
			License:  parent.License,
		}); err != nil {
			return fmt.Errorf("create subcollection control: %w", err)
		}
		if err := r.controlRepo.CopyACL(ctx, parent.Identity, candidate); err != nil {
			return fmt.Errorf("copy subcollection acl: %w", err)
		}
		if _, err := r.writer.insert(ctx, doc); err != nil {
			return r.retryExisting(ctx, err, candidate, parent.Version, &doc)
		}
		metrics.Subcollections.WithLabelValues("created").Inc()
		r.logger.Debug("subcollection created",
			"identity", candidate,
			"parent", parent.Identity,
			"title", title,
			"version", doc.Version.String(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// retryExisting turns a lost insert race into the winner's row.
func (r *identityResolver) retryExisting(ctx context.Context, insertErr error, identity uuid.UUID, version models.Version, out **models.Document) error {
	if !errors.Is(insertErr, domain.ErrConflict) {
		return insertErr
	}
	existing, err := r.docRepo.GetByIdentityVersion(ctx, identity, version)
	if err != nil {
		return insertErr
	}
	*out = existing
	return nil
}

// subcollectionRevision carries the prior revision's license and audit fields forward.
func subcollectionRevision(prior, parent *models.Document, title string) *models.Document {
	return &models.Document{
		Identity:  prior.Identity,
		Version:   parent.Version,
		Kind:      models.KindSubCollection,
		State:     parent.State,
		Title:     title,
		License:   prior.License,
		Language:  prior.Language,
		Authors:   append([]string(nil), prior.Authors...),
		Keywords:  append([]string(nil), prior.Keywords...),
		Submitter: parent.Submitter,
		SubmitLog: parent.SubmitLog,
		CreatedAt: prior.CreatedAt,
		RevisedAt: parent.RevisedAt,
	}
}

// newSubcollection takes its descriptive fields from the enclosing collection.
func newSubcollection(identity uuid.UUID, parent *models.Document, title string) *models.Document {
	return &models.Document{
		Identity:  identity,
		Version:   parent.Version,
		Kind:      models.KindSubCollection,
		State:     parent.State,
		Title:     title,
		License:   parent.License,
		Language:  parent.Language,
		Authors:   append([]string(nil), parent.Authors...),
		Submitter: parent.Submitter,
		SubmitLog: parent.SubmitLog,
		CreatedAt: parent.RevisedAt,
		RevisedAt: parent.RevisedAt,
	}
}

// titleScope implements TitleScope for one tree walk.
type titleScope struct {
	mu      sync.Mutex
	claimed map[uuid.UUID]map[string]string // namespace -> NFC title -> raw title
}

// NewTitleScope returns an empty scope. Use one scope per ingested or cloned tree.
func NewTitleScope() archiveSvc.TitleScope {
	return &titleScope{claimed: make(map[uuid.UUID]map[string]string)}
}

// Claim rejects a title already claimed under namespace, byte-equal or canonically
// equivalent. Byte-equal titles would collapse two positions into one identity;
// NFC-equal titles would render identically yet derive different identities.
func (s *titleScope) Claim(namespace uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	titles := s.claimed[namespace]
	if titles == nil {
		titles = make(map[string]string)
		s.claimed[namespace] = titles
	}
	key := norm.NFC.String(title)
	if prior, ok := titles[key]; ok {
		if prior == title {
			return fmt.Errorf("%w: %q appears twice under %s", domain.ErrAmbiguousTitle, title, namespace)
		}
		return fmt.Errorf("%w: %q and %q differ only in Unicode normalization under %s",
			domain.ErrAmbiguousTitle, prior, title, namespace)
	}
	titles[key] = title
	return nil
}
