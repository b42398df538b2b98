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

// PostgresJobRepository implements the persisted republish queue
type PostgresJobRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewJobRepository creates a new republish job repository
func NewJobRepository(config *postgres.RepositoryConfig) archiveRepo.JobRepository {
	return &PostgresJobRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const jobColumns = `id, old_document_id, new_document_id, submitter, submit_log, exclude,
	attempts, available_at, last_error, created_at, done_at`

// Append records a job in the caller's transaction
func (r *PostgresJobRepository) Append(ctx context.Context, job *models.RepublishJob) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (old_document_id, new_document_id, submitter, submit_log, exclude)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, available_at, created_at
	`, r.tables.RepublishJobs)

	exclude := job.Exclude
	if exclude == nil {
		exclude = []uuid.UUID{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		job.OldDocumentID,
		job.NewDocumentID,
		job.Submitter,
		job.SubmitLog,
		exclude,
	).Scan(&job.ID, &job.AvailableAt, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("append republish job: %w", err)
	}
	return nil
}

// Claim leases up to limit due jobs. Concurrent workers skip rows another
// worker has locked, and a lease that runs out makes the job due again.
func (r *PostgresJobRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]*models.RepublishJob, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET attempts = attempts + 1,
		    available_at = NOW() + $2 * INTERVAL '1 millisecond'
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE done_at IS NULL AND available_at <= NOW()
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[2]s
	`, r.tables.RepublishJobs, jobColumns)

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, limitArg, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim republish jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.RepublishJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate republish jobs: %w", err)
	}
	return jobs, nil
}

// Retry releases a claimed job to run again after delay
func (r *PostgresJobRepository) Retry(ctx context.Context, id int64, delay time.Duration, lastError string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET available_at = NOW() + $2 * INTERVAL '1 millisecond', last_error = $3
		WHERE id = $1 AND done_at IS NULL
	`, r.tables.RepublishJobs)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id, delay.Milliseconds(), lastError); err != nil {
		return fmt.Errorf("retry republish job %d: %w", id, err)
	}
	return nil
}

// Finish marks a job done. lastError is empty on success.
func (r *PostgresJobRepository) Finish(ctx context.Context, id int64, lastError string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET done_at = NOW(), last_error = $2
		WHERE id = $1 AND done_at IS NULL
	`, r.tables.RepublishJobs)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("finish republish job %d: %w", id, err)
	}
	return nil
}

// CountPending counts jobs not yet finished
func (r *PostgresJobRepository) CountPending(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE done_at IS NULL`, r.tables.RepublishJobs)

	var n int
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending republish jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (*models.RepublishJob, error) {
	var j models.RepublishJob
	err := row.Scan(
		&j.ID,
		&j.OldDocumentID,
		&j.NewDocumentID,
		&j.Submitter,
		&j.SubmitLog,
		&j.Exclude,
		&j.Attempts,
		&j.AvailableAt,
		&j.LastError,
		&j.CreatedAt,
		&j.DoneAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan republish job: %w", err)
	}
	return &j, nil
}
