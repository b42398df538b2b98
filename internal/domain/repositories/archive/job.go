package archive

import (
	"context"
	"time"

	models "archive/internal/domain/models/archive"
)

// JobRepository persists asynchronous republication requests
type JobRepository interface {
	// Append records a job in the caller's transaction. It becomes claimable at commit.
	Append(ctx context.Context, job *models.RepublishJob) error

	// Claim leases up to limit available jobs, oldest first. A claimed job is
	// hidden from other claims for lease, then becomes available again unless
	// it was retried or finished. Each claim increments Attempts.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*models.RepublishJob, error)

	// Retry makes a claimed job available again after delay
	Retry(ctx context.Context, id int64, delay time.Duration, lastError string) error

	// Finish marks a job done. lastError is empty on success.
	Finish(ctx context.Context, id int64, lastError string) error

	// CountPending returns the number of unfinished jobs
	CountPending(ctx context.Context) (int, error)
}
