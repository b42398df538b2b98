package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// PublicationService is the write path for new revisions and state changes
type PublicationService interface {
	// Publish inserts a new revision, maintains the latest pointer, records the
	// publication event and triggers republication of containing collections.
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)

	// SetState changes a revision's state
	SetState(ctx context.Context, documentID int64, state models.State) (*PublishResult, error)
}

// PublishRequest describes a new revision
type PublishRequest struct {
	Identity  *uuid.UUID      `json:"identity,omitempty"` // nil = new identity
	Kind      models.Kind     `json:"kind"`
	Bump      Bump            `json:"bump,omitempty"`    // composite only, default major
	Version   *models.Version `json:"version,omitempty"` // explicit version, bypasses the resolver
	State     models.State    `json:"state,omitempty"`   // default Current
	Title     string          `json:"title"`
	License   string          `json:"license,omitempty"`
	Language  string          `json:"language,omitempty"`
	Authors   []string        `json:"authors,omitempty"`
	Keywords  []string        `json:"keywords,omitempty"`
	Submitter string          `json:"submitter,omitempty"`
	SubmitLog string          `json:"submit_log,omitempty"`
}

// PublishResult reports the outcome of a write
type PublishResult struct {
	Document *models.Document `json:"document"`
	// Latest is true when the latest pointer references Document after the write
	Latest bool `json:"latest"`
	// Replaced is the revision the pointer referenced before, if any
	Replaced *int64 `json:"replaced,omitempty"`
	// Republish is set when containing collections were republished synchronously
	Republish *models.RepublishResult `json:"republish,omitempty"`
}
