package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// IdentityResolver finds or creates subcollection revisions by content-addressed identity
type IdentityResolver interface {
	// DeriveIdentity is the deterministic hash of (parent identity, title)
	DeriveIdentity(parent uuid.UUID, title string) uuid.UUID

	// ResolveSubcollection returns the subcollection revision for (parent, title, version),
	// creating it when needed. Repeated calls with equal arguments return the same row.
	ResolveSubcollection(ctx context.Context, parentIdentity uuid.UUID, title string, version models.Version) (*models.Document, error)
}

// TitleScope detects sibling titles that would resolve ambiguously
type TitleScope interface {
	// Claim registers a subcollection title under a namespace.
	// Returns ErrAmbiguousTitle when the title, or a canonically equivalent one, was already claimed.
	Claim(namespace uuid.UUID, title string) error
}
