package archive

import (
	"context"

	models "archive/internal/domain/models/archive"
)

// EventSink receives publication events from the outbox
type EventSink interface {
	Send(ctx context.Context, events []*models.PublicationEvent) error
}
