package orchestrator

import "errors"

var (
	// ErrClosed is returned by operations on a closed scope.
	ErrClosed = errors.New("orchestrator: scope closed")

	// ErrDialogNotFound is returned when a user action names a dialog that is not queued.
	ErrDialogNotFound = errors.New("orchestrator: dialog not found")

	// ErrInvalidInstrument is returned for an empty instrument id.
	ErrInvalidInstrument = errors.New("orchestrator: invalid instrument id")

	// ErrRouterRequired is returned by New without an event router.
	ErrRouterRequired = errors.New("orchestrator: router is required")

	// ErrNotWatched is returned when an instrument has no producers.
	ErrNotWatched = errors.New("orchestrator: instrument not watched")
)
