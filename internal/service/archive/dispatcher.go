package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"
)

// EventDispatcher drains the publication outbox into a sink.
// Events are marked delivered only after the sink accepts them, so a crash
// between the two steps redelivers them.
type EventDispatcher struct {
	eventRepo archiveRepo.EventRepository
	sink      archiveSvc.EventSink
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

// NewEventDispatcher creates a dispatcher
func NewEventDispatcher(eventRepo archiveRepo.EventRepository, sink archiveSvc.EventSink, batchSize int, interval time.Duration, logger *slog.Logger) *EventDispatcher {
	if batchSize < 1 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &EventDispatcher{
		eventRepo: eventRepo,
		sink:      sink,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled.
func (d *EventDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				d.logger.Warn("event dispatch failed", "error", err)
				break
			}
			if n < d.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch and returns how many events it sent.
func (d *EventDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.eventRepo.ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := d.sink.Send(ctx, events); err != nil {
		metrics.EventsDelivered.WithLabelValues("failed").Add(float64(len(events)))
		return 0, fmt.Errorf("send events: %w", err)
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := d.eventRepo.MarkDelivered(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark events delivered: %w", err)
	}
	metrics.EventsDelivered.WithLabelValues("delivered").Add(float64(len(events)))
	d.logger.Debug("events dispatched", "count", len(events), "last_id", events[len(events)-1].ID)
	return len(events), nil
}
