package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"archive/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const latestColumns = `identity, document_id, major, minor, kind, state, title, updated_at`

// PostgresLatestRepository implements the LatestRepository interface
type PostgresLatestRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewLatestRepository creates a new latest pointer repository
func NewLatestRepository(config *postgres.RepositoryConfig) archiveRepo.LatestRepository {
	return &PostgresLatestRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Get returns the pointer of an identity, or nil
func (r *PostgresLatestRepository) Get(ctx context.Context, identity uuid.UUID) (*models.LatestPointer, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE identity = $1`, latestColumns, r.tables.LatestDocuments)

	executor := postgres.GetExecutor(ctx, r.pool)
	p, err := scanPointer(executor.QueryRow(ctx, query, identity))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest pointer: %w", err)
	}
	return p, nil
}

// MergeMax upserts the pointer in one statement. The DO UPDATE guard compares
// versions against the row as locked by the upsert, so a lower version never wins.
func (r *PostgresLatestRepository) MergeMax(ctx context.Context, p *models.LatestPointer) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s AS l (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			major = EXCLUDED.major,
			minor = EXCLUDED.minor,
			kind = EXCLUDED.kind,
			state = EXCLUDED.state,
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at
		WHERE (EXCLUDED.major, COALESCE(EXCLUDED.minor, 0)) >= (l.major, COALESCE(l.minor, 0))
	`, r.tables.LatestDocuments, latestColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, pointerArgs(p)...)
	if err != nil {
		return false, fmt.Errorf("merge latest pointer %s: %w", p.Identity, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Put replaces the pointer unconditionally
func (r *PostgresLatestRepository) Put(ctx context.Context, p *models.LatestPointer) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			major = EXCLUDED.major,
			minor = EXCLUDED.minor,
			kind = EXCLUDED.kind,
			state = EXCLUDED.state,
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at
	`, r.tables.LatestDocuments, latestColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, pointerArgs(p)...); err != nil {
		return fmt.Errorf("put latest pointer %s: %w", p.Identity, err)
	}
	return nil
}

// Delete removes the pointer of an identity
func (r *PostgresLatestRepository) Delete(ctx context.Context, identity uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE identity = $1`, r.tables.LatestDocuments)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, identity); err != nil {
		return fmt.Errorf("delete latest pointer: %w", err)
	}
	return nil
}

// List pages through pointers by identity. A non-positive limit returns everything.
func (r *PostgresLatestRepository) List(ctx context.Context, limit, offset int) ([]*models.LatestPointer, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		ORDER BY identity
		LIMIT $1 OFFSET $2
	`, latestColumns, r.tables.LatestDocuments)

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("list latest pointers: %w", err)
	}
	defer rows.Close()

	var pointers []*models.LatestPointer
	for rows.Next() {
		p, err := scanPointer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan latest pointer: %w", err)
		}
		pointers = append(pointers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest pointers: %w", err)
	}
	return pointers, nil
}

func pointerArgs(p *models.LatestPointer) []any {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return []any{
		p.Identity,
		p.DocumentID,
		p.Version.Major,
		p.Version.MinorPtr(),
		string(p.Kind),
		string(p.State),
		p.Title,
		updatedAt,
	}
}

func scanPointer(row pgx.Row) (*models.LatestPointer, error) {
	var p models.LatestPointer
	var major int
	var minor *int
	var kind, state string
	err := row.Scan(&p.Identity, &p.DocumentID, &major, &minor, &kind, &state, &p.Title, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Version = models.VersionFrom(major, minor)
	p.Kind = models.Kind(kind)
	p.State = models.State(state)
	return &p, nil
}
