package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"archive/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresControlRepository implements the ControlRepository interface
type PostgresControlRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewControlRepository creates a new control repository
func NewControlRepository(config *postgres.RepositoryConfig) archiveRepo.ControlRepository {
	return &PostgresControlRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// EnsureControl creates the control record when missing
func (r *PostgresControlRepository) EnsureControl(ctx context.Context, control *models.DocumentControl) (bool, error) {
	if control.CreatedAt.IsZero() {
		control.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (identity, license, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO NOTHING
	`, r.tables.DocumentControls)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, control.Identity, control.License, control.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("ensure control %s: %w", control.Identity, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetControl retrieves the control record of an identity
func (r *PostgresControlRepository) GetControl(ctx context.Context, identity uuid.UUID) (*models.DocumentControl, error) {
	query := fmt.Sprintf(`SELECT identity, license, created_at FROM %s WHERE identity = $1`, r.tables.DocumentControls)

	var control models.DocumentControl
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, identity).Scan(&control.Identity, &control.License, &control.CreatedAt)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("control %s: %w", identity, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get control: %w", err)
	}
	return &control, nil
}

// CopyACL copies every grant of one identity to another
func (r *PostgresControlRepository) CopyACL(ctx context.Context, from, to uuid.UUID) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (identity, user_id, permission)
		SELECT $2, user_id, permission FROM %s WHERE identity = $1
		ON CONFLICT DO NOTHING
	`, r.tables.DocumentACL, r.tables.DocumentACL)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, from, to); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("copy acl to %s: %w", to, domain.ErrOrphanReference)
		}
		return fmt.Errorf("copy acl: %w", err)
	}
	return nil
}

// ListACL lists the grants of an identity
func (r *PostgresControlRepository) ListACL(ctx context.Context, identity uuid.UUID) ([]models.ACLEntry, error) {
	query := fmt.Sprintf(`
		SELECT identity, user_id, permission FROM %s
		WHERE identity = $1
		ORDER BY user_id, permission
	`, r.tables.DocumentACL)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("list acl: %w", err)
	}
	defer rows.Close()

	var entries []models.ACLEntry
	for rows.Next() {
		var e models.ACLEntry
		if err := rows.Scan(&e.Identity, &e.UserID, &e.Permission); err != nil {
			return nil, fmt.Errorf("scan acl entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acl: %w", err)
	}
	return entries, nil
}

// GrantACL adds a grant, ignoring duplicates
func (r *PostgresControlRepository) GrantACL(ctx context.Context, entry models.ACLEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (identity, user_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, r.tables.DocumentACL)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, entry.Identity, entry.UserID, entry.Permission); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("grant on %s: %w", entry.Identity, domain.ErrOrphanReference)
		}
		return fmt.Errorf("grant acl: %w", err)
	}
	return nil
}
