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

	"github.com/google/uuid"
)

// DocumentRepository implements archiveRepo.DocumentRepository
type DocumentRepository struct {
	store *Store
}

// NewDocumentRepository creates a document repository
func NewDocumentRepository(store *Store) archiveRepo.DocumentRepository {
	return &DocumentRepository{store: store}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findVersion(doc.Identity, doc.Version); existing != nil {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("document %s already exists", doc.Ident()),
			ResourceType: "document",
			ResourceID:   strconv.FormatInt(existing.ID, 10),
		}
	}

	now := time.Now().UTC()
	if doc.RevisedAt.IsZero() {
		doc.RevisedAt = now
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.RevisedAt
	}
	s.nextDocumentID++
	doc.ID = s.nextDocumentID
	s.insertDocument(ctx, doc.Clone())
	return nil
}

func (r *DocumentRepository) Import(ctx context.Context, doc *models.Document) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return false, nil
	}
	if s.findVersion(doc.Identity, doc.Version) != nil {
		return false, nil
	}
	if doc.ID > s.nextDocumentID {
		s.nextDocumentID = doc.ID
	}
	s.insertDocument(ctx, doc.Clone())
	return true, nil
}

// insertDocument stores doc. Callers hold s.mu.
func (s *Store) insertDocument(ctx context.Context, doc *models.Document) {
	s.documents[doc.ID] = doc
	s.byIdentity[doc.Identity] = append(s.byIdentity[doc.Identity], doc.ID)
	s.journal(ctx, func() {
		delete(s.documents, doc.ID)
		ids := s.byIdentity[doc.Identity]
		for i, id := range ids {
			if id == doc.ID {
				s.byIdentity[doc.Identity] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
		if len(s.byIdentity[doc.Identity]) == 0 {
			delete(s.byIdentity, doc.Identity)
		}
	})
}

// findVersion returns the stored revision of identity at version. Callers hold s.mu.
func (s *Store) findVersion(identity uuid.UUID, version models.Version) *models.Document {
	for _, id := range s.byIdentity[identity] {
		if d := s.documents[id]; d.Version == version {
			return d
		}
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (r *DocumentRepository) GetByIdentityVersion(ctx context.Context, identity uuid.UUID, version models.Version) (*models.Document, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.findVersion(identity, version)
	if doc == nil {
		return nil, fmt.Errorf("document %s@%s: %w", identity, version, domain.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (r *DocumentRepository) ListByIdentity(ctx context.Context, identity uuid.UUID) ([]*models.Document, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.byIdentity[identity]))
	for _, id := range s.byIdentity[identity] {
		docs = append(docs, s.documents[id].Clone())
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Version.Less(docs[j].Version)
	})
	return docs, nil
}

func (r *DocumentRepository) MaxVersion(ctx context.Context, identity uuid.UUID) (models.Version, bool, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max models.Version
	found := false
	for _, id := range s.byIdentity[identity] {
		if v := s.documents[id].Version; !found || max.Less(v) {
			max = v
			found = true
		}
	}
	return max, found, nil
}

func (r *DocumentRepository) UpdateState(ctx context.Context, id int64, state models.State) (models.State, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return "", fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	previous := doc.State
	doc.State = state
	s.journal(ctx, func() { doc.State = previous })
	return previous, nil
}
