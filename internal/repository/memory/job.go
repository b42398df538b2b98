package memory

import (
	"context"
	"fmt"
	"time"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
)

// JobRepository implements archiveRepo.JobRepository
type JobRepository struct {
	store *Store
	now   func() time.Time
}

// NewJobRepository creates a republish job repository
func NewJobRepository(store *Store) archiveRepo.JobRepository {
	return &JobRepository{store: store, now: time.Now}
}

func (r *JobRepository) Append(ctx context.Context, job *models.RepublishJob) error {
	s := r.store
	now := r.now().UTC()

	s.mu.Lock()
	s.nextJobID++
	job.ID = s.nextJobID
	s.mu.Unlock()

	job.CreatedAt = now
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	row := copyJob(job)

	if t := txFrom(ctx); t != nil {
		t.mu.Lock()
		t.jobs = append(t.jobs, row)
		t.mu.Unlock()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, row)
	return nil
}

func (r *JobRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]*models.RepublishJob, error) {
	s := r.store
	now := r.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RepublishJob
	for _, j := range s.jobs {
		if j.DoneAt != nil || j.AvailableAt.After(now) {
			continue
		}
		j.Attempts++
		j.AvailableAt = now.Add(lease)
		out = append(out, copyJob(j))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *JobRepository) Retry(ctx context.Context, id int64, delay time.Duration, lastError string) error {
	return r.update(id, func(j *models.RepublishJob, now time.Time) {
		j.AvailableAt = now.Add(delay)
		j.LastError = lastError
	})
}

func (r *JobRepository) Finish(ctx context.Context, id int64, lastError string) error {
	return r.update(id, func(j *models.RepublishJob, now time.Time) {
		j.DoneAt = &now
		j.LastError = lastError
	})
}

func (r *JobRepository) CountPending(ctx context.Context) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, j := range s.jobs {
		if j.DoneAt == nil {
			n++
		}
	}
	return n, nil
}

// Jobs returns every committed job, finished or not, oldest first.
func (s *Store) Jobs() []*models.RepublishJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RepublishJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, copyJob(j))
	}
	return out
}

func (r *JobRepository) update(id int64, fn func(j *models.RepublishJob, now time.Time)) error {
	s := r.store
	now := r.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			fn(j, now)
			return nil
		}
	}
	return fmt.Errorf("republish job %d: %w", id, domain.ErrNotFound)
}

func copyJob(j *models.RepublishJob) *models.RepublishJob {
	c := *j
	c.Exclude = append(c.Exclude[:0:0], j.Exclude...)
	if j.DoneAt != nil {
		at := *j.DoneAt
		c.DoneAt = &at
	}
	return &c
}
