package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// Republisher clones every latest collection that contains a revised document
type Republisher interface {
	// Republish returns the identity map of all cloned roots. Independent roots are
	// cloned independently: the result is returned together with a joined error of
	// *domain.RootError values when some roots failed.
	Republish(ctx context.Context, req *RepublishRequest) (*models.RepublishResult, error)
}

// RepublishRequest identifies the replaced revision and its successor
type RepublishRequest struct {
	OldDocumentID int64       `json:"old_document_id"`
	NewDocumentID int64       `json:"new_document_id"`
	Submitter     string      `json:"submitter,omitempty"`
	SubmitLog     string      `json:"submit_log,omitempty"`
	Exclude       []uuid.UUID `json:"exclude,omitempty"` // root identities not to republish
}

// RepublishQueue defers republication to background workers
type RepublishQueue interface {
	// Enqueue persists a request in the caller's transaction. Delivery is at-least-once.
	Enqueue(ctx context.Context, req *RepublishRequest) error
	// Notify wakes idle workers after the enqueuing transaction commits
	Notify()
}
