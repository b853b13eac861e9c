/*
Package tokens provides the expiring cache behind capability tokens.

The relay control plane hands out short-lived, mostly one-shot tokens:
an auth challenge an agent must answer within seconds, a share-upload
grant, a per-request file-stream capability. This package stores them
in an in-memory buntdb keyed by kind and subject, with buntdb's native
TTL handling doing the expiry.

# Semantics

  - Set(key, value, ttl): entry is readable until ttl elapses; setting
    again replaces the value and resets the clock.
  - Get(key): read without consuming; used for idempotent tokens.
  - Take(key): read and remove in one transaction; used for one-shot
    tokens. Concurrent Takes of the same key cannot both succeed.
  - Remove(key): explicit revocation, idempotent.

Missing and expired entries are indistinguishable: both yield a
not-found error, which the relay maps to an authorization failure.

# Usage

Issuing a ten-second auth challenge:

	key := tokens.Key("auth", agentName)
	if err := cache.Set(key, challenge, 10*time.Second); err != nil {
		return err
	}

Validating it exactly once:

	challenge, err := cache.Take(tokens.Key("auth", agentName))
	if errdefs.IsNotFound(err) {
		// expired, already used, or never issued
	}

# Integration Points

This package integrates with:

  - pkg/relay: auth, share-upload, file-stream, and download-notify
    tokens
*/
package tokens
