package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"alert-autoconf/internal/domain"
)

var (
	// ErrParentNotFound reports a parent reference matching no trigger.
	ErrParentNotFound = errors.New("parent trigger not found")
	// ErrAmbiguousParent reports a parent reference matching several triggers.
	ErrAmbiguousParent = errors.New("ambiguous parent trigger")
)

// ParentResolutionError describes a parent reference that did not resolve to exactly one trigger.
type ParentResolutionError struct {
	Child      string
	Ref        domain.ParentRef
	Candidates int
}

// Error includes candidate count, name, and tags.
func (e *ParentResolutionError) Error() string {
	tags := strings.Join(e.Ref.Tags, ", ")
	if e.Candidates == 0 {
		return fmt.Sprintf("trigger %q: could not find trigger with name=%s, tags=%s", e.Child, e.Ref.Name, tags)
	}
	return fmt.Sprintf("trigger %q: found %d > 1 triggers with name=%s, tags=%s", e.Child, e.Candidates, e.Ref.Name, tags)
}

// Unwrap maps to ErrParentNotFound or ErrAmbiguousParent.
func (e *ParentResolutionError) Unwrap() error {
	if e.Candidates == 0 {
		return ErrParentNotFound
	}
	return ErrAmbiguousParent
}
