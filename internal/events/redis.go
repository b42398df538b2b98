package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	models "archive/internal/domain/models/archive"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis from a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStreamSink appends publication events to a Redis stream.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisStreamSink creates a stream sink. maxLen caps the stream approximately; 0 leaves it unbounded.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Send writes the batch in one pipeline. A failed batch is retried whole by the
// dispatcher, so consumers see duplicates and dedupe on the "dedup" field.
func (s *RedisStreamSink) Send(ctx context.Context, batch []*models.PublicationEvent) error {
	pipe := s.client.Pipeline()
	for _, e := range batch {
		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: streamValues(e),
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	s.logger.Debug("events appended to stream", "stream", s.stream, "count", len(batch))
	return nil
}

func streamValues(e *models.PublicationEvent) map[string]any {
	return map[string]any{
		"document_id": strconv.FormatInt(e.DocumentID, 10),
		"identity":    e.Identity.String(),
		"version":     e.RenderedVersion,
		"state":       string(e.State),
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"dedup":       e.DedupKey(),
	}
}
