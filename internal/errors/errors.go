package errors

import (
	"errors"
)

// Error taxonomy shared by every auth component. Handlers map these to
// client-visible categories; the wrapped detail only ever reaches the logs.
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmailAlreadyInUse  = errors.New("email already in use")
	ErrEmailNotVerified   = errors.New("email not verified")

	// OAuth errors
	ErrOAuthExchangeFailure = errors.New("oauth exchange failure")
	ErrInvalidState         = errors.New("invalid oauth state")
	ErrUnknownProvider      = errors.New("unknown oauth provider")

	// Internal errors
	ErrHashingFailure   = errors.New("hashing failure")
	ErrDuplicateTokenID = errors.New("duplicate token id")

	// Store errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsClientSafe reports whether err belongs to the part of the taxonomy that
// may be shown to a client as-is.
func IsClientSafe(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrInvalidToken,
		ErrEmailAlreadyInUse,
		ErrEmailNotVerified,
		ErrOAuthExchangeFailure,
		ErrInvalidState,
		ErrUnknownProvider,
		ErrUnsupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
