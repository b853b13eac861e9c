package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers classify failures by wrapping one of
// these with fmt.Errorf("...: %w", Err*) and checking with the Is*
// predicates; the API layer maps kinds to HTTP status codes.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates the operation collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates the request itself is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates the operation did not complete in time.
	ErrTimeout = errors.New("timed out")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("cancelled")

	// ErrRemoteAgent indicates a relay agent reported a failure or
	// misbehaved while handling a relayed operation.
	ErrRemoteAgent = errors.New("remote agent error")

	// ErrScanInProgress indicates a share scan was requested while one
	// is already running.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrShareValidation indicates a configured share failed its
	// filesystem checks.
	ErrShareValidation = errors.New("share validation failed")

	// ErrPeerProtocol indicates a remote peer violated the protocol.
	ErrPeerProtocol = errors.New("peer protocol error")
)

// IsNotFound returns true if the error is due to a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized returns true if the error is due to failed
// authentication or authorization.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsConflict returns true if the error is due to a state collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation returns true if the error is due to malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTimeout returns true if the error is due to a deadline expiring.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCancelled returns true if the error is due to caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsRemoteAgent returns true if the error originated on a relay agent.
func IsRemoteAgent(err error) bool {
	return errors.Is(err, ErrRemoteAgent)
}

// IsScanInProgress returns true if the error is due to a concurrent
// share scan.
func IsScanInProgress(err error) bool {
	return errors.Is(err, ErrScanInProgress)
}

// IsShareValidation returns true if the error is due to a share
// failing validation.
func IsShareValidation(err error) bool {
	return errors.Is(err, ErrShareValidation)
}

// IsPeerProtocol returns true if the error is due to a peer protocol
// violation.
func IsPeerProtocol(err error) bool {
	return errors.Is(err, ErrPeerProtocol)
}

// NotFoundf returns a formatted error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Unauthorizedf returns a formatted error wrapping ErrUnauthorized.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnauthorized)...)
}

// Conflictf returns a formatted error wrapping ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Validationf returns a formatted error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// ShareValidationf returns a formatted error wrapping
// ErrShareValidation.
func ShareValidationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrShareValidation)...)
}

// RemoteAgentf returns a formatted error wrapping ErrRemoteAgent.
func RemoteAgentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrRemoteAgent)...)
}
