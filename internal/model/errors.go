package model

import "errors"

// Sentinel errors implementing the error taxonomy from spec.md §7. Callers
// use errors.Is against these; boundary code maps them to user-visible
// responses. Grounded on the teacher's ErrInvalidRunTransition /
// IsInvalidRunTransition shape in internal/controlplane/jobs/store.go.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrPersistence  = errors.New("persistence failure")
	ErrFatal        = errors.New("fatal: browser process unreachable")
)

// IsNotFound reports whether err (or a wrapped cause) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err (or a wrapped cause) is ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInvalidInput reports whether err (or a wrapped cause) is ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
