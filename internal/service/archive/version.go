package archive

import (
	"context"
	"fmt"

	"archive/internal/domain"
	models "archive/internal/domain/models/archive"
	archiveRepo "archive/internal/domain/repositories/archive"
	archiveSvc "archive/internal/domain/services/archive"

	"github.com/google/uuid"
)

// versionResolver implements the VersionResolver interface
type versionResolver struct {
	docRepo archiveRepo.DocumentRepository
}

// NewVersionResolver creates a version resolver
func NewVersionResolver(docRepo archiveRepo.DocumentRepository) archiveSvc.VersionResolver {
	return &versionResolver{docRepo: docRepo}
}

// NextVersion must run under the identity's revision lock for the result to stay unique.
func (r *versionResolver) NextVersion(ctx context.Context, identity uuid.UUID, kind models.Kind, bump archiveSvc.Bump) (models.Version, error) {
	if bump == "" {
		bump = archiveSvc.BumpMajor
	}
	if !kind.IsComposite() && bump == archiveSvc.BumpMinor {
		return models.Version{}, fmt.Errorf("%w: %s revisions have no minor version", domain.ErrInvalidVersionKind, kind)
	}

	max, ok, err := r.docRepo.MaxVersion(ctx, identity)
	if err != nil {
		return models.Version{}, fmt.Errorf("max version of %s: %w", identity, err)
	}
	return nextVersion(max, ok, kind, bump), nil
}

// nextVersion is the pure version arithmetic. exists is false for a brand-new identity.
func nextVersion(max models.Version, exists bool, kind models.Kind, bump archiveSvc.Bump) models.Version {
	switch {
	case !exists && kind.IsComposite():
		return models.Version{Major: 1, Minor: 1}
	case !exists:
		return models.Version{Major: 1}
	case !kind.IsComposite():
		return models.Version{Major: max.Major + 1}
	case bump == archiveSvc.BumpMinor:
		return models.Version{Major: max.Major, Minor: max.Minor + 1}
	default:
		return models.Version{Major: max.Major + 1, Minor: 1}
	}
}
