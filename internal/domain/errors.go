package domain

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

// Is lets errors.Is match the typed errors against their sentinels.
func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Versioning and tree errors.
var (
	// ErrInvalidVersionKind: a Module carries a minor version, or a collection lacks one.
	ErrInvalidVersionKind = errors.New("invalid version for document kind")

	// ErrAmbiguousTitle: two distinct tree positions would derive the same
	// subcollection identity, or titles differ only by Unicode normalization.
	ErrAmbiguousTitle = errors.New("ambiguous subcollection title")

	// ErrAmbiguousRoot: a collection's tree has more than one root node.
	ErrAmbiguousRoot = errors.New("ambiguous tree root")

	// ErrOrphanReference: a tree node or clone references a missing document or node.
	ErrOrphanReference = errors.New("orphan reference")

	// ErrStaleWrite: a latest-pointer update lost to a newer version.
	// Never surfaced to callers.
	ErrStaleWrite = errors.New("stale latest pointer write")

	// ErrCyclicContainment: collections contain each other.
	ErrCyclicContainment = errors.New("cyclic collection containment")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (document, tree_node, ...)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// RootError reports the failure of a single root collection during republication.
type RootError struct {
	RootID   int64
	Identity uuid.UUID
	Err      error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("republish root %d (%s): %v", e.RootID, e.Identity, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}
