package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"

	"archive/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const nodeColumns = `id, parent_id, document_id, title, child_order, collated, created_at`

// PostgresTreeRepository implements the TreeRepository interface
type PostgresTreeRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewTreeRepository creates a new tree repository
func NewTreeRepository(config *postgres.RepositoryConfig) archiveRepo.TreeRepository {
	return &PostgresTreeRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// InsertNode inserts a node. A taken child_order yields a ConflictError
// without aborting the surrounding transaction.
func (r *PostgresTreeRepository) InsertNode(ctx context.Context, node *models.TreeNode) error {
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (parent_id, document_id, title, child_order, collated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, r.tables.TreeNodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		node.ParentID,
		node.DocumentID,
		node.Title,
		node.ChildOrder,
		node.Collated,
		node.CreatedAt,
	).Scan(&node.ID)
	if err != nil {
		switch {
		case postgres.IsPgNoRowsError(err):
			return &domain.ConflictError{
				Message:      fmt.Sprintf("child order %d already used under node %s", node.ChildOrder, formatID(node.ParentID)),
				ResourceType: "tree_node",
				ResourceID:   formatID(node.ParentID),
			}
		case postgres.IsPgForeignKeyError(err):
			return fmt.Errorf("insert tree node %q: %w", node.Title, domain.ErrOrphanReference)
		}
		return fmt.Errorf("insert tree node: %w", err)
	}
	return nil
}

// Import inserts a node keeping its original ID
func (r *PostgresTreeRepository) Import(ctx context.Context, node *models.TreeNode) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, parent_id, document_id, title, child_order, collated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`, r.tables.TreeNodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		node.ID,
		node.ParentID,
		node.DocumentID,
		node.Title,
		node.ChildOrder,
		node.Collated,
		node.CreatedAt,
	)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return false, fmt.Errorf("import tree node %d: %w", node.ID, domain.ErrOrphanReference)
		}
		return false, fmt.Errorf("import tree node %d: %w", node.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := syncSequence(ctx, executor, r.tables.TreeNodes); err != nil {
		return false, err
	}
	return true, nil
}

// GetNode retrieves a node by ID
func (r *PostgresTreeRepository) GetNode(ctx context.Context, id int64) (*models.TreeNode, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, nodeColumns, r.tables.TreeNodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	node, err := scanNode(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("tree node %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tree node: %w", err)
	}
	return node, nil
}

// UpdateNodeTitle sets a node's title, and rebinds its document when documentID is set
func (r *PostgresTreeRepository) UpdateNodeTitle(ctx context.Context, id int64, title string, documentID *int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, document_id = COALESCE($3, document_id)
		WHERE id = $1
	`, r.tables.TreeNodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, title, documentID)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("tree node %d references document %s: %w", id, formatID(documentID), domain.ErrOrphanReference)
		}
		return fmt.Errorf("update tree node title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tree node %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// FindRootNodes returns the parentless nodes bound to a document
func (r *PostgresTreeRepository) FindRootNodes(ctx context.Context, documentID int64, collated bool) ([]*models.TreeNode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE document_id = $1 AND parent_id IS NULL AND collated = $2
		ORDER BY id
	`, nodeColumns, r.tables.TreeNodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID, collated)
	if err != nil {
		return nil, fmt.Errorf("find root nodes: %w", err)
	}
	return collectNodes(rows)
}

// Subtree walks down from a root node. Rows come back by depth, then parent, then
// child order, so every parent precedes its children. The path array stops cycles.
func (r *PostgresTreeRepository) Subtree(ctx context.Context, rootNodeID int64) ([]*models.TreeNode, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE sub AS (
			SELECT %[2]s, 0 AS depth, ARRAY[id] AS path
			FROM %[1]s
			WHERE id = $1
			UNION ALL
			SELECT c.id, c.parent_id, c.document_id, c.title, c.child_order, c.collated, c.created_at,
				s.depth + 1, s.path || c.id
			FROM %[1]s c
			JOIN sub s ON c.parent_id = s.id
			WHERE NOT c.id = ANY(s.path)
		)
		SELECT %[2]s FROM sub
		ORDER BY depth, parent_id NULLS FIRST, child_order
	`, r.tables.TreeNodes, nodeColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, rootNodeID)
	if err != nil {
		return nil, fmt.Errorf("load subtree: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("tree node %d: %w", rootNodeID, domain.ErrNotFound)
	}
	return nodes, nil
}

// FindContainingRoots walks up from every node bound to the document and keeps
// the roots whose collection revision is the latest of its identity.
func (r *PostgresTreeRepository) FindContainingRoots(ctx context.Context, documentID int64) ([]*models.Document, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE up AS (
			SELECT n.id, n.parent_id, n.document_id, n.collated, ARRAY[n.id] AS path
			FROM %[1]s n
			WHERE n.document_id = $1
			UNION ALL
			SELECT p.id, p.parent_id, p.document_id, p.collated, u.path || p.id
			FROM %[1]s p
			JOIN up u ON p.id = u.parent_id
			WHERE NOT p.id = ANY(u.path)
		),
		roots AS (
			SELECT DISTINCT document_id
			FROM up
			WHERE parent_id IS NULL AND NOT collated AND document_id IS NOT NULL AND document_id <> $1
		)
		SELECT %[4]s
		FROM roots
		JOIN %[2]s d ON d.id = roots.document_id
		JOIN %[3]s l ON l.identity = d.identity AND l.document_id = d.id
		WHERE d.kind = $2
		ORDER BY d.id
	`, r.tables.TreeNodes, r.tables.Documents, r.tables.LatestDocuments, qualifiedDocumentColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, documentID, string(models.KindCollection))
	if err != nil {
		return nil, fmt.Errorf("find containing roots: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan containing root: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containing roots: %w", err)
	}
	return docs, nil
}

const qualifiedDocumentColumns = `d.id, d.identity, d.major, d.minor, d.kind, d.state, d.title, d.license, d.language,
	d.authors, d.keywords, d.submitter, d.submit_log, d.created_at, d.revised_at`

func collectNodes(rows pgx.Rows) ([]*models.TreeNode, error) {
	defer rows.Close()

	var nodes []*models.TreeNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tree node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree nodes: %w", err)
	}
	return nodes, nil
}

func scanNode(row pgx.Row) (*models.TreeNode, error) {
	var node models.TreeNode
	err := row.Scan(
		&node.ID,
		&node.ParentID,
		&node.DocumentID,
		&node.Title,
		&node.ChildOrder,
		&node.Collated,
		&node.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func formatID(id *int64) string {
	if id == nil {
		return "<root>"
	}
	return strconv.FormatInt(*id, 10)
}
