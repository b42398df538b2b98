package events

import (
	"context"
	"sync"

	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"
)

// DedupSink drops events this process already delivered. It covers the window
// where a batch reached the sink but could not be marked delivered.
// Only the most recent capacity keys are remembered.
type DedupSink struct {
	next     archiveSvc.EventSink
	capacity int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewDedupSink wraps next with a bounded memory of delivered events
func NewDedupSink(next archiveSvc.EventSink, capacity int) *DedupSink {
	if capacity < 1 {
		capacity = 10000
	}
	return &DedupSink{
		next:     next,
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (s *DedupSink) Send(ctx context.Context, batch []*models.PublicationEvent) error {
	fresh := s.filter(batch)
	if len(fresh) == 0 {
		return nil
	}
	if err := s.next.Send(ctx, fresh); err != nil {
		return err
	}
	s.remember(fresh)
	return nil
}

func (s *DedupSink) filter(batch []*models.PublicationEvent) []*models.PublicationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.PublicationEvent, 0, len(batch))
	for _, e := range batch {
		if _, ok := s.seen[e.DedupKey()]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *DedupSink) remember(batch []*models.PublicationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch {
		key := e.DedupKey()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.order = append(s.order, key)
	}
	for len(s.order) > s.capacity {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
}
