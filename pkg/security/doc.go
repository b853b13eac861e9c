/*
Package security implements the relay credential scheme.

Agents and the controller share a per-agent secret from configuration.
Neither side ever sends the secret; instead, possession is proven by
sealing a short-lived challenge token under key material derived from
the secret.

# Scheme

Key material:

	PBKDF2(SHA-256, secret, salt = agent name, 48 bytes)
	  bytes  0..31  AES-256-GCM key
	  bytes 32..47  additional authenticated data

Credential:

	base64( GCM-seal(key, aad, token) )

The controller issues the token (a challenge, a stream id), caches it
with a TTL, and validates a presented credential by decrypting it and
comparing the plaintext to the cached token in constant time. GCM's
authentication tag makes a credential sealed under the wrong secret or
the wrong agent name fail before any comparison happens.

Because the nonce is random, two credentials for the same token never
match as strings; replay protection comes from the one-shot token
cache, not from credential uniqueness.

# Tokens

GenerateToken returns 32 random bytes in base62, the alphabet used for
all token values so they travel safely in URLs and multipart fields.

# Integration Points

This package integrates with:

  - pkg/relay: login challenges, file-stream and share-upload
    credentials on both halves
  - pkg/tokens: stores the values this package proves possession of
*/
package security
