package usersync

import "errors"

// Reconciliation errors. The HTTP handler maps these to status codes; the
// service never returns a partial mutation alongside one.
var (
	ErrMalformedRequest = errors.New("invalid webhook request")
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrValidation       = errors.New("missing required user data")
	ErrNotFound         = errors.New("user not found")
	ErrEmailCollision   = errors.New("email already belongs to another user")
	ErrIdentityMismatch = errors.New("clerk id mismatch")
	ErrDeletionFailed   = errors.New("failed to delete user")
)
