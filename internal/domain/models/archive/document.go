package archive

import (
	"time"

	"github.com/google/uuid"
)

// Document is one immutable revision. Only State changes after insertion.
type Document struct {
	ID        int64     `json:"id" yaml:"id"`
	Identity  uuid.UUID `json:"identity" yaml:"identity"`
	Version   Version   `json:"version" yaml:"version"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	State     State     `json:"state" yaml:"state"`
	Title     string    `json:"title" yaml:"title"`
	License   string    `json:"license,omitempty" yaml:"license,omitempty"`
	Language  string    `json:"language,omitempty" yaml:"language,omitempty"`
	Authors   []string  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Keywords  []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Submitter string    `json:"submitter,omitempty" yaml:"submitter,omitempty"`
	SubmitLog string    `json:"submit_log,omitempty" yaml:"submit_log,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"` // first publication of the identity
	RevisedAt time.Time `json:"revised_at" yaml:"revised_at"`
}

// RenderedVersion is the human-facing version label.
func (d *Document) RenderedVersion() string {
	return d.Version.String()
}

// Ident returns "identity@version".
func (d *Document) Ident() string {
	return d.Identity.String() + "@" + d.Version.String()
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Authors = append([]string(nil), d.Authors...)
	c.Keywords = append([]string(nil), d.Keywords...)
	return &c
}

// DocumentControl is the per-identity access-control record.
type DocumentControl struct {
	Identity  uuid.UUID `json:"identity" yaml:"identity"`
	License   string    `json:"license,omitempty" yaml:"license,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ACLEntry grants a user a permission on every revision of an identity.
type ACLEntry struct {
	Identity   uuid.UUID `json:"identity" yaml:"identity"`
	UserID     string    `json:"user_id" yaml:"user_id"`
	Permission string    `json:"permission" yaml:"permission"`
}

// LatestPointer is the derived identity -> current revision mapping.
// Version, Kind, State and Title are cached from the winning Document.
type LatestPointer struct {
	Identity   uuid.UUID `json:"identity"`
	DocumentID int64     `json:"document_id"`
	Version    Version   `json:"version"`
	Kind       Kind      `json:"kind"`
	State      State     `json:"state"`
	Title      string    `json:"title"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PointerFor builds the latest pointer row for a document.
func PointerFor(d *Document) *LatestPointer {
	return &LatestPointer{
		Identity:   d.Identity,
		DocumentID: d.ID,
		Version:    d.Version,
		Kind:       d.Kind,
		State:      d.State,
		Title:      d.Title,
		UpdatedAt:  time.Now().UTC(),
	}
}
