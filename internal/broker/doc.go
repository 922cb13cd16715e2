// Package broker obtains and caches outbound OAuth2 client-credentials
// tokens for backend access, so the proxy can attach backend credentials to
// forwarded calls without any agent ever holding them.
//
// # Token Cache
//
// The broker keeps one cache entry per credential identity. An entry is
// served only while its remaining lifetime exceeds the safety margin
// (DefaultSafetyMargin); below that the next caller triggers a fresh
// exchange. A token close to expiry is therefore refreshed before it stops
// working, never after.
//
// # Concurrency
//
// Lookups take a read lock; refreshes go through a singleflight group keyed
// by identity, so at most one exchange per identity is in flight no matter
// how many requests observe the miss concurrently. Unrelated identities never
// contend with each other, and no lock is held across the network call to the
// secret store or the issuer.
//
// # Failure
//
// Transient issuer failures (throttling, 5xx, network) are retried with
// exponential backoff up to a bounded attempt count. Rejected credentials are
// not retried. When the budget is spent the caller receives an
// AuthBrokerError and the identity's cache entry is evicted; a stale token is
// never served in place of a failed refresh.
//
// # Secrets
//
// Client id and secret are resolved through the secrets.Store for every
// exchange and discarded afterwards. Token and secret values are never
// logged.
package broker
