package archive

import (
	"context"

	models "archive/internal/domain/models/archive"
)

// EventRepository is the transactional outbox of publication events
type EventRepository interface {
	// Append records an event in the caller's transaction
	Append(ctx context.Context, event *models.PublicationEvent) error

	// ListPending returns undelivered events oldest first
	ListPending(ctx context.Context, limit int) ([]*models.PublicationEvent, error)

	// MarkDelivered stamps events as delivered
	MarkDelivered(ctx context.Context, ids []int64) error
}
