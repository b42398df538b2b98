package archive

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IdentityMap maps replaced document ids to their republished clones.
type IdentityMap map[int64]int64

// RepublishResult reports one republication batch.
type RepublishResult struct {
	IdentityMap IdentityMap `json:"identity_map"`
	// Roots lists the new collection revisions.
	Roots []*Document `json:"roots"`
	// Skipped holds latest roots left alone because a newer revision exists,
	// they were excluded, or nothing in their tree needed remapping.
	Skipped []uuid.UUID `json:"skipped,omitempty"`
	// Failures maps root identities to the error that aborted them.
	Failures map[uuid.UUID]error `json:"-"`
}

// NewRepublishResult returns an empty result.
func NewRepublishResult() *RepublishResult {
	return &RepublishResult{
		IdentityMap: IdentityMap{},
		Failures:    map[uuid.UUID]error{},
	}
}

// Err joins the per-root failures in identity order, or returns nil.
func (r *RepublishResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Failures[id])
	}
	return errors.Join(errs...)
}

// RepublishJob is a persisted asynchronous republication request. It is
// written in the transaction that replaced the latest revision and stays
// pending until a worker finishes it, so requests survive restarts.
type RepublishJob struct {
	ID            int64       `json:"id"`
	OldDocumentID int64       `json:"old_document_id"`
	NewDocumentID int64       `json:"new_document_id"`
	Submitter     string      `json:"submitter,omitempty"`
	SubmitLog     string      `json:"submit_log,omitempty"`
	Exclude       []uuid.UUID `json:"exclude,omitempty"`
	// Attempts counts claims, including one that died with its worker
	Attempts int `json:"attempts"`
	// AvailableAt is when the job may next be claimed; a claim pushes it out by the lease
	AvailableAt time.Time  `json:"available_at"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DoneAt      *time.Time `json:"done_at,omitempty"`
}
