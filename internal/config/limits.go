package config

const (
	// MaxTitleLength is the maximum length for document and tree node titles.
	// Collection titles in the archive run long (series and edition names),
	// so this is wider than a VARCHAR(255).
	MaxTitleLength = 1024

	// MaxTreeDepth bounds ingested trees. Real tables of contents stay below
	// ten levels; deeper input is a malformed description.
	MaxTreeDepth = 32

	// MaxPageSize is the largest page served by list endpoints.
	MaxPageSize = 500
)
