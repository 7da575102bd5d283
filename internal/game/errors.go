package game

import "errors"

var (
	// ErrInvalidConfig rejects an Init before any state changes.
	ErrInvalidConfig = errors.New("game: invalid configuration")

	// ErrNotInitialized is returned by every call made before Initialize.
	ErrNotInitialized = errors.New("game: not initialized")

	// ErrRandomSource wraps a failure of the randomness source. No state has
	// changed when it is returned.
	ErrRandomSource = errors.New("game: random source failed")

	// ErrDelivery wraps a notifier failure. State has already advanced when
	// it is returned.
	ErrDelivery = errors.New("game: notification delivery failed")

	// ErrUnknownAction is returned by Handle for an unrecognised or
	// malformed action.
	ErrUnknownAction = errors.New("game: unknown action")
)
