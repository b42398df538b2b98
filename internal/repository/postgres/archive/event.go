package archive

import (
	"context"
	"fmt"
	"log/slog"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"archive/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventRepository implements the EventRepository outbox
type PostgresEventRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewEventRepository creates a new outbox repository
func NewEventRepository(config *postgres.RepositoryConfig) archiveRepo.EventRepository {
	return &PostgresEventRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append records an event in the caller's transaction
func (r *PostgresEventRepository) Append(ctx context.Context, event *models.PublicationEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (document_id, identity, rendered_version, state, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, r.tables.Events)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		event.DocumentID,
		event.Identity,
		event.RenderedVersion,
		string(event.State),
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append publication event: %w", err)
	}
	return nil
}

// ListPending returns undelivered events oldest first
func (r *PostgresEventRepository) ListPending(ctx context.Context, limit int) ([]*models.PublicationEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, identity, rendered_version, state, occurred_at
		FROM %s
		WHERE delivered_at IS NULL
		ORDER BY id
		LIMIT $1
	`, r.tables.Events)

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []*models.PublicationEvent
	for rows.Next() {
		var e models.PublicationEvent
		var state string
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Identity, &e.RenderedVersion, &state, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan publication event: %w", err)
		}
		e.State = models.State(state)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publication events: %w", err)
	}
	return events, nil
}

// MarkDelivered stamps events as delivered
func (r *PostgresEventRepository) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s SET delivered_at = NOW()
		WHERE id = ANY($1) AND delivered_at IS NULL
	`, r.tables.Events)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("mark events delivered: %w", err)
	}
	return nil
}
