package archive

import (
	"context"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

// ControlRepository manages per-identity access-control records
type ControlRepository interface {
	// EnsureControl creates the control record if missing. created reports whether it was new.
	EnsureControl(ctx context.Context, control *models.DocumentControl) (created bool, err error)

	// GetControl retrieves the control record of an identity
	GetControl(ctx context.Context, identity uuid.UUID) (*models.DocumentControl, error)

	// CopyACL grants to every entry of from. Existing grants are kept.
	CopyACL(ctx context.Context, from, to uuid.UUID) error

	// ListACL lists the grants of an identity
	ListACL(ctx context.Context, identity uuid.UUID) ([]models.ACLEntry, error)

	// GrantACL adds a grant, ignoring duplicates
	GrantACL(ctx context.Context, entry models.ACLEntry) error
}
