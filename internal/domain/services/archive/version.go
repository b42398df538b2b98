package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// Bump selects how a composite document's version advances.
type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
)

// VersionResolver computes the next version of an identity
type VersionResolver interface {
	// NextVersion returns (1) or (1,1) for a new identity; otherwise (max+1) for a
	// Module, (max, minor+1) for a composite minor bump and (max+1, 1) for a major bump.
	// A minor bump of a Module fails with ErrInvalidVersionKind.
	NextVersion(ctx context.Context, identity uuid.UUID, kind models.Kind, bump Bump) (models.Version, error)
}
