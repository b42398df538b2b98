package memory

import (
	"context"
	"sort"
	"time"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"github.com/google/uuid"
)

// LatestRepository implements archiveRepo.LatestRepository
type LatestRepository struct {
	store *Store
}

// NewLatestRepository creates a latest pointer repository
func NewLatestRepository(store *Store) archiveRepo.LatestRepository {
	return &LatestRepository{store: store}
}

func (r *LatestRepository) Get(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error) {
	p := r.store.pointer(ctx, identity)
	if p == nil {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (r *LatestRepository) MergeMax(ctx context.Context, p *models.LatestPointer) (bool, error) {
	if cur := r.store.pointer(ctx, p.Identity); cur != nil && p.Version.Less(cur.Version) {
		return false, nil
	}
	r.store.writePointer(ctx, p.Identity, p)
	return true, nil
}

func (r *LatestRepository) Put(ctx context.Context, p *models.LatestPointer) error {
	r.store.writePointer(ctx, p.Identity, p)
	return nil
}

func (r *LatestRepository) Delete(ctx context.Context, identity uuid.UUID) error {
	r.store.writePointer(ctx, identity, nil)
	return nil
}

// pointer returns the pointer as seen by ctx: the transaction's own write if
// any, the committed row otherwise.
func (s *Store) pointer(ctx context.Context, identity uuid.UUID) *models.LatestPointer {
	if t := txFrom(ctx); t != nil {
		t.mu.Lock()
		p, ok := t.pointers[identity]
		t.mu.Unlock()
		if ok {
			return p
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[identity]
}

// writePointer stores p, or deletes the row when p is nil. Inside a
// transaction the write is buffered until commit.
func (s *Store) writePointer(ctx context.Context, identity uuid.UUID, p *models.LatestPointer) {
	var row *models.LatestPointer
	if p != nil {
		copied := *p
		if copied.UpdatedAt.IsZero() {
			copied.UpdatedAt = time.Now().UTC()
		}
		row = &copied
	}

	if t := txFrom(ctx); t != nil {
		t.mu.Lock()
		if t.pointers == nil {
			t.pointers = make(map[uuid.UUID]*models.LatestPointer)
		}
		t.pointers[identity] = row
		t.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if row == nil {
		delete(s.latest, identity)
		return
	}
	s.latest[identity] = row
}

// List returns committed pointers ordered by identity.
func (r *LatestRepository) List(ctx context.Context, limit, offset int) ([]*models.LatestPointer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.LatestPointer, 0, len(s.latest))
	for _, p := range s.latest {
		out := *p
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Identity.String() < all[j].Identity.String()
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
