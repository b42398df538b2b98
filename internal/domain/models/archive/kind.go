package archive

import (
	"fmt"

	"archive/internal/domain"
)

// Kind distinguishes leaf pages from composite documents.
type Kind string

const (
	KindModule        Kind = "Module"
	KindCollection    Kind = "Collection"
	KindSubCollection Kind = "SubCollection"
)

// IsComposite reports whether documents of this kind carry a minor version and own a tree.
func (k Kind) IsComposite() bool {
	return k == KindCollection || k == KindSubCollection
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindModule, KindCollection, KindSubCollection:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown document kind %q", domain.ErrValidation, s)
}

// State is the publication state of a single revision.
type State string

const (
	StateQueued     State = "Queued"
	StateProcessing State = "Processing"
	StateCurrent    State = "Current"
	StateFallback   State = "Fallback"
	StateSuperseded State = "Superseded"
	StateError      State = "Error"
)

// Eligible reports whether a revision in this state may be the latest for its identity.
func (s State) Eligible() bool {
	return s == StateCurrent || s == StateFallback
}

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateQueued, StateProcessing, StateCurrent, StateFallback, StateSuperseded, StateError:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown document state %q", domain.ErrValidation, s)
}
