package archive

import (
	"context"

	models "archive/internal/domain/models/archive"
)

// DumpService exports and restores single collections
type DumpService interface {
	Export(ctx context.Context, rootDocumentID int64) (*models.Bundle, error)

	// Restore inserts the bundle's rows, skipping rows that already exist
	Restore(ctx context.Context, bundle *models.Bundle) (*RestoreResult, error)
}

// RestoreResult counts inserted and skipped rows
type RestoreResult struct {
	Documents int `json:"documents"`
	Nodes     int `json:"nodes"`
	Skipped   int `json:"skipped"`
}
