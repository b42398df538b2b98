package events

import (
	"context"
	"log/slog"

	models "archive/internal/domain/models/archive"
)

// LogSink writes events to the logger. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, batch []*models.PublicationEvent) error {
	for _, e := range batch {
		s.logger.Info("publication event",
			"document_id", e.DocumentID,
			"identity", e.Identity,
			"version", e.RenderedVersion,
			"state", e.State,
			"timestamp", e.Timestamp,
		)
	}
	return nil
}
