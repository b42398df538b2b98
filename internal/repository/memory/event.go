package memory

import (
	"context"
	"time"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
)

// EventRepository implements archiveRepo.EventRepository
type EventRepository struct {
	store *Store
}

// NewEventRepository creates an outbox repository
func NewEventRepository(store *Store) archiveRepo.EventRepository {
	return &EventRepository{store: store}
}

func (r *EventRepository) Append(ctx context.Context, event *models.PublicationEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	event.ID = s.nextEventID
	row := *event
	s.events = append(s.events, &row)
	s.journal(ctx, func() {
		for i, e := range s.events {
			if e.ID == row.ID {
				s.events = append(s.events[:i:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *EventRepository) ListPending(ctx context.Context, limit int) ([]*models.PublicationEvent, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PublicationEvent
	for _, e := range s.events {
		if e.DeliveredAt != nil {
			continue
		}
		row := *e
		out = append(out, &row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *EventRepository) MarkDelivered(ctx context.Context, ids []int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, e := range s.events {
		if want[e.ID] && e.DeliveredAt == nil {
			at := now
			e.DeliveredAt = &at
		}
	}
	return nil
}
