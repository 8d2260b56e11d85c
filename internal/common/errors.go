// Package common defines shared constants and sentinel errors used across
// the store node. Callers should use errors.Is to match these values; the
// layers wrap them with fmt.Errorf("...: %w") to add context.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrStorage reports a failure of the on-device storage engine. It is
	// fatal to the calling operation and never retried automatically.
	ErrStorage = errors.New("local storage error")

	// ErrRemoteUnavailable reports a network or permission failure talking to
	// the remote document store. Read and write paths of the sync engine treat
	// it as "offline for this operation".
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrValidation reports a caller error, e.g. an update without an id.
	ErrValidation = errors.New("validation error")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Business errors.
	ErrInsufficientStock = errors.New("insufficient stock")
)
