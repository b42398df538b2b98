package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	"archive/internal/domain/repositories"
	archiveRepo "archive/internal/domain/repositories/archive"

	"archive/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, identity, major, minor, kind, state, title, license, language,
	authors, keywords, submitter, submit_log, created_at, revised_at`

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *postgres.RepositoryConfig) archiveRepo.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a revision. A duplicate (identity, version) does not abort the
// surrounding transaction: ON CONFLICT DO NOTHING returns no row instead.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.RevisedAt.IsZero() {
		doc.RevisedAt = now
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.RevisedAt
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (identity, major, minor, kind, state, title, license, language,
			authors, keywords, submitter, submit_log, created_at, revised_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, insertArgs(doc)...).Scan(&doc.ID)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return r.conflict(ctx, doc)
		}
		if postgres.IsPgCheckError(err) {
			return fmt.Errorf("document %s: %w", doc.Ident(), domain.ErrInvalidVersionKind)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *PostgresDocumentRepository) conflict(ctx context.Context, doc *models.Document) error {
	resourceID := ""
	if existing, err := r.GetByIdentityVersion(ctx, doc.Identity, doc.Version); err == nil {
		resourceID = strconv.FormatInt(existing.ID, 10)
	}
	return &domain.ConflictError{
		Message:      fmt.Sprintf("document %s already exists", doc.Ident()),
		ResourceType: "document",
		ResourceID:   resourceID,
	}
}

// Import inserts a revision with its original ID and advances the id sequence past it
func (r *PostgresDocumentRepository) Import(ctx context.Context, doc *models.Document) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, identity, major, minor, kind, state, title, license, language,
			authors, keywords, submitter, submit_log, created_at, revised_at)
		VALUES ($15, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, append(insertArgs(doc), doc.ID)...)
	if err != nil {
		return false, fmt.Errorf("import document %d: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := syncSequence(ctx, executor, r.tables.Documents); err != nil {
		return false, err
	}
	return true, nil
}

func insertArgs(doc *models.Document) []any {
	return []any{
		doc.Identity,
		doc.Version.Major,
		doc.Version.MinorPtr(),
		string(doc.Kind),
		string(doc.State),
		doc.Title,
		doc.License,
		doc.Language,
		nonNil(doc.Authors),
		nonNil(doc.Keywords),
		doc.Submitter,
		doc.SubmitLog,
		doc.CreatedAt,
		doc.RevisedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetByID retrieves a revision by ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetByIdentityVersion retrieves the revision of an identity at an exact version
func (r *PostgresDocumentRepository) GetByIdentityVersion(ctx context.Context, identity uuid.UUID, version models.Version) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE identity = $1 AND major = $2 AND COALESCE(minor, 0) = $3
	`, documentColumns, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	doc, err := scanDocument(executor.QueryRow(ctx, query, identity, version.Major, version.Minor))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s@%s: %w", identity, version, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document by version: %w", err)
	}
	return doc, nil
}

// ListByIdentity returns every revision of an identity, oldest version first
func (r *PostgresDocumentRepository) ListByIdentity(ctx context.Context, identity uuid.UUID) ([]*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE identity = $1
		ORDER BY major, COALESCE(minor, 0)
	`, documentColumns, r.tables.Documents)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return docs, nil
}

// MaxVersion returns the highest version of an identity in any state
func (r *PostgresDocumentRepository) MaxVersion(ctx context.Context, identity uuid.UUID) (models.Version, bool, error) {
	query := fmt.Sprintf(`
		SELECT major, minor FROM %s
		WHERE identity = $1
		ORDER BY major DESC, COALESCE(minor, 0) DESC
		LIMIT 1
	`, r.tables.Documents)

	var major int
	var minor *int
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, identity).Scan(&major, &minor)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return models.ZeroVersion, false, nil
		}
		return models.ZeroVersion, false, fmt.Errorf("max version: %w", err)
	}
	return models.VersionFrom(major, minor), true, nil
}

// UpdateState changes a revision's state and returns the one it replaced.
// The row lock taken by the subselect's FOR UPDATE makes the read and write atomic.
func (r *PostgresDocumentRepository) UpdateState(ctx context.Context, id int64, state models.State) (models.State, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s d
		SET state = $2
		FROM (SELECT id, state FROM %[1]s WHERE id = $1 FOR UPDATE) prev
		WHERE d.id = prev.id
		RETURNING prev.state
	`, r.tables.Documents)

	var previous string
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id, string(state)).Scan(&previous)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return "", fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
		}
		return "", fmt.Errorf("update document state: %w", err)
	}
	return models.State(previous), nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var major int
	var minor *int
	var kind, state string
	err := row.Scan(
		&doc.ID,
		&doc.Identity,
		&major,
		&minor,
		&kind,
		&state,
		&doc.Title,
		&doc.License,
		&doc.Language,
		&doc.Authors,
		&doc.Keywords,
		&doc.Submitter,
		&doc.SubmitLog,
		&doc.CreatedAt,
		&doc.RevisedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Version = models.VersionFrom(major, minor)
	doc.Kind = models.Kind(kind)
	doc.State = models.State(state)
	return &doc, nil
}

// syncSequence moves a table's id sequence past imported rows
func syncSequence(ctx context.Context, executor repositories.DBTX, table string) error {
	query := fmt.Sprintf(`
		SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))
	`, table)
	if _, err := executor.Exec(ctx, query); err != nil {
		return fmt.Errorf("sync %s id sequence: %w", table, err)
	}
	return nil
}
