/*
Package errdefs defines the error kinds shared across the daemon.

Each kind is a sentinel error. Packages wrap one into their error chains
with fmt.Errorf("...: %w", errdefs.Err*) and callers test with the Is*
predicates, so a failure keeps its classification from the point of
origin to the HTTP response without custom error types.

# Error Kinds

  - ErrNotFound: a referenced record does not exist
  - ErrUnauthorized: missing or invalid credentials
  - ErrConflict: the operation collides with existing state
  - ErrValidation: the request itself is malformed
  - ErrTimeout: the operation did not complete in time
  - ErrCancelled: the caller abandoned the operation
  - ErrRemoteAgent: a relay agent failed a relayed operation
  - ErrScanInProgress: a share scan is already running
  - ErrShareValidation: a configured share failed filesystem checks
  - ErrPeerProtocol: a remote peer violated the protocol

# Usage

Wrapping at the point of failure:

	if rec == nil {
		return fmt.Errorf("search %s: %w", id, errdefs.ErrNotFound)
	}

Or with the formatted constructors:

	return errdefs.NotFoundf("search %s", id)

Classifying at the boundary:

	if errdefs.IsNotFound(err) {
		w.WriteHeader(http.StatusNotFound)
	}

# HTTP Mapping

The API layer maps kinds to status codes:

  - ErrNotFound → 404
  - ErrUnauthorized → 401
  - ErrConflict, ErrScanInProgress → 409
  - ErrValidation, ErrShareValidation → 400
  - ErrTimeout → 504
  - anything else → 500

# Integration Points

This package integrates with:

  - pkg/api: status code selection
  - pkg/scheduler, pkg/searches, pkg/shares: record lookups
  - pkg/relay: agent authentication and remote failures
  - pkg/tokens: expired or missing one-time tokens
*/
package errdefs
