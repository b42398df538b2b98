package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"archive/internal/domain/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Prefix           string
	Documents        string
	DocumentControls string
	DocumentACL      string
	TreeNodes        string
	LatestDocuments  string
	Events           string
	RepublishJobs    string
	SchemaMigrations string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Prefix:           prefix,
		Documents:        fmt.Sprintf("%sdocuments", prefix),
		DocumentControls: fmt.Sprintf("%sdocument_controls", prefix),
		DocumentACL:      fmt.Sprintf("%sdocument_acl", prefix),
		TreeNodes:        fmt.Sprintf("%stree_nodes", prefix),
		LatestDocuments:  fmt.Sprintf("%slatest_documents", prefix),
		Events:           fmt.Sprintf("%spublication_events", prefix),
		RepublishJobs:    fmt.Sprintf("%srepublish_jobs", prefix),
		SchemaMigrations: fmt.Sprintf("%sschema_migrations", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// Port 6543 is treated as a PgBouncer transaction pooler, which cannot hold
// prepared statements across transactions. For it the pool switches to
// QueryExecModeCacheDescribe (extended protocol, cached descriptions, no named
// statements) unless the connection string already sets default_query_exec_mode.
//
// Table prefixes are interpolated into the SQL text before it reaches the
// server, so each prefix gets its own statement cache entries.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction carried by ctx, or the pool when there is none.
// Repositories use it so they join a surrounding transaction automatically.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
