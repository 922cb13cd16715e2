// Package verifier validates inbound bearer tokens before any request is
// forwarded to a backend. A request that fails verification never reaches
// the backend.
//
// # Key Material
//
// Signing keys come from the issuer's published JWKS endpoint and are cached
// with a TTL. When a token references a key id missing from the cache, the
// key set is refetched exactly once before the token is rejected; this keeps
// issuer key rotation transparent without letting garbage tokens drive fetch
// storms. If a refresh fails while a previously published key is still
// cached, the cached key is served so that an issuer outage does not take
// down inbound traffic.
//
// # Error Surface
//
// Verification produces exactly two failure shapes: InvalidTokenError for
// anything wrong with the token itself, and AudienceMismatchError for a
// well-formed token minted for a different recipient. Both translate to 401
// and neither is ever retried.
package verifier
