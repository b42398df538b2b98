package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/metrics"
)

// RepublishWorker runs persisted republication jobs on background workers.
// Jobs are claimed under a lease; a job whose worker dies becomes due again
// when the lease runs out, and jobs left pending at shutdown are picked up by
// the next Start. Retries are safe because roots that were already cloned no
// longer contain the replaced revision.
type RepublishWorker struct {
	republisher archiveSvc.Republisher
	jobs        archiveRepo.JobRepository
	workers     int
	maxAttempts int
	backoff     time.Duration
	lease       time.Duration
	poll        time.Duration
	logger      *slog.Logger

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WorkerOptions configures a RepublishWorker
type WorkerOptions struct {
	Workers     int
	MaxAttempts int
	// Backoff is the delay before the first retry; it doubles per attempt
	Backoff time.Duration
	// Lease is how long a claimed job stays hidden from other workers
	Lease time.Duration
	// PollInterval bounds how long an idle worker waits before looking for due jobs
	PollInterval time.Duration
}

// NewRepublishWorker creates a worker pool over the job store.
func NewRepublishWorker(republisher archiveSvc.Republisher, jobs archiveRepo.JobRepository, opts WorkerOptions, logger *slog.Logger) *RepublishWorker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &RepublishWorker{
		republisher: republisher,
		jobs:        jobs,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		lease:       opts.Lease,
		poll:        opts.PollInterval,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Enqueue implements archiveSvc.RepublishQueue. Called inside a transaction,
// the job becomes claimable when that transaction commits.
func (w *RepublishWorker) Enqueue(ctx context.Context, req *archiveSvc.RepublishRequest) error {
	return w.jobs.Append(ctx, &models.RepublishJob{
		OldDocumentID: req.OldDocumentID,
		NewDocumentID: req.NewDocumentID,
		Submitter:     req.Submitter,
		SubmitLog:     req.SubmitLog,
		Exclude:       req.Exclude,
	})
}

// Notify implements archiveSvc.RepublishQueue
func (w *RepublishWorker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches the workers. Cancelling ctx stops claiming; a job already
// running finishes first.
func (w *RepublishWorker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
	w.logger.Info("republish workers started", "workers", w.workers)
}

// Stop runs every job that is already due, then waits for the workers to exit.
// Jobs waiting on a retry delay stay pending for the next Start.
func (w *RepublishWorker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *RepublishWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		stopping := w.stopping()

		claimed, err := w.jobs.Claim(ctx, 1, w.lease)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("claim republish job failed", "error", err)
		}
		if len(claimed) == 0 {
			w.refreshDepth(ctx)
			if stopping {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-w.done:
			case <-w.wake:
			case <-ticker.C:
			}
			continue
		}

		w.process(context.WithoutCancel(ctx), claimed[0])
	}
}

func (w *RepublishWorker) stopping() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *RepublishWorker) process(ctx context.Context, job *models.RepublishJob) {
	_, err := w.republisher.Republish(ctx, &archiveSvc.RepublishRequest{
		OldDocumentID: job.OldDocumentID,
		NewDocumentID: job.NewDocumentID,
		Submitter:     job.Submitter,
		SubmitLog:     job.SubmitLog,
		Exclude:       job.Exclude,
	})

	switch {
	case err == nil:
		err = w.jobs.Finish(ctx, job.ID, "")
	case permanent(err) || job.Attempts >= w.maxAttempts:
		w.logger.Error("republish abandoned",
			"job_id", job.ID,
			"old_document_id", job.OldDocumentID,
			"new_document_id", job.NewDocumentID,
			"attempts", job.Attempts,
			"error", err,
		)
		err = w.jobs.Finish(ctx, job.ID, err.Error())
	default:
		delay := w.backoff << (job.Attempts - 1)
		w.logger.Warn("republish failed, retrying",
			"job_id", job.ID,
			"old_document_id", job.OldDocumentID,
			"new_document_id", job.NewDocumentID,
			"attempt", job.Attempts,
			"retry_in", delay,
			"error", err,
		)
		err = w.jobs.Retry(ctx, job.ID, delay, err.Error())
	}
	if err != nil {
		// the lease runs out and another worker picks the job up
		w.logger.Error("record republish job outcome failed", "job_id", job.ID, "error", err)
	}
}

func (w *RepublishWorker) refreshDepth(ctx context.Context) {
	n, err := w.jobs.CountPending(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(n))
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrOrphanReference,
		domain.ErrAmbiguousRoot,
		domain.ErrAmbiguousTitle,
		domain.ErrInvalidVersionKind,
		domain.ErrCyclicContainment,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
