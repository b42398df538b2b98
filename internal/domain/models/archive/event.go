package archive

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublicationEvent is emitted for every document insert or state change.
// Delivery is at-least-once; consumers deduplicate on (DocumentID, Timestamp).
type PublicationEvent struct {
	ID              int64      `json:"-"`
	DocumentID      int64      `json:"document_id"`
	Identity        uuid.UUID  `json:"identity"`
	RenderedVersion string     `json:"rendered_version"`
	State           State      `json:"state"`
	Timestamp       time.Time  `json:"timestamp"`
	DeliveredAt     *time.Time `json:"-"`
}

// DedupKey identifies an event for consumers.
func (e *PublicationEvent) DedupKey() string {
	return fmt.Sprintf("%d@%d", e.DocumentID, e.Timestamp.UnixNano())
}

// EventFor builds the event for a document at the given time.
func EventFor(d *Document, at time.Time) *PublicationEvent {
	return &PublicationEvent{
		DocumentID:      d.ID,
		Identity:        d.Identity,
		RenderedVersion: d.Version.String(),
		State:           d.State,
		Timestamp:       at.UTC(),
	}
}
