package memory

import (
	"context"
	"fmt"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"github.com/google/uuid"
)

// ControlRepository implements archiveRepo.ControlRepository
type ControlRepository struct {
	store *Store
}

// NewControlRepository creates a control repository
func NewControlRepository(store *Store) archiveRepo.ControlRepository {
	return &ControlRepository{store: store}
}

func (r *ControlRepository) EnsureControl(ctx context.Context, control *models.DocumentControl) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.controls[control.Identity]; ok {
		return false, nil
	}
	c := *control
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.controls[c.Identity] = &c
	s.journal(ctx, func() { delete(s.controls, c.Identity) })
	return true, nil
}

func (r *ControlRepository) GetControl(ctx context.Context, identity uuid.UUID) (*models.DocumentControl, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.controls[identity]
	if !ok {
		return nil, fmt.Errorf("document control %s: %w", identity, domain.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (r *ControlRepository) CopyACL(ctx context.Context, from, to uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.acl[from] {
		s.grant(ctx, models.ACLEntry{Identity: to, UserID: e.UserID, Permission: e.Permission})
	}
	return nil
}

func (r *ControlRepository) GrantACL(ctx context.Context, entry models.ACLEntry) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.controls[entry.Identity]; !ok {
		return fmt.Errorf("grant on %s: %w", entry.Identity, domain.ErrOrphanReference)
	}
	s.grant(ctx, entry)
	return nil
}

// grant adds an entry unless present. Callers hold s.mu.
func (s *Store) grant(ctx context.Context, entry models.ACLEntry) {
	for _, e := range s.acl[entry.Identity] {
		if e == entry {
			return
		}
	}
	s.acl[entry.Identity] = append(s.acl[entry.Identity], entry)
	s.journal(ctx, func() {
		entries := s.acl[entry.Identity]
		for i, e := range entries {
			if e == entry {
				s.acl[entry.Identity] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	})
}

func (r *ControlRepository) ListACL(ctx context.Context, identity uuid.UUID) ([]models.ACLEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.ACLEntry(nil), s.acl[identity]...), nil
}
