package models

import "errors"

var (
	// ErrMissingInput means required event attributes are absent and no fallback applies.
	ErrMissingInput = errors.New("missing input")
	// ErrCatalogUnavailable means the imagery or baseline source failed or timed out.
	// Callers may retry; it is not retried internally.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrInsufficientCoverage is a warning: selection continued below the coverage target.
	ErrInsufficientCoverage   = errors.New("insufficient coverage")
	ErrNoMatchingAcquisitions = errors.New("no matching acquisitions")
	ErrTaskNotFound           = errors.New("task not found")
	ErrIllegalTransition      = errors.New("illegal status transition")
	ErrEventNotFound          = errors.New("event not found")
)
