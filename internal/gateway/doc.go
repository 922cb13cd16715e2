// Package gateway implements the control-plane client for the three gateway
// resources: the Gateway itself, the CredentialProvider holding outbound
// OAuth2 coordinates, and the Target binding a backend MCP server to a
// gateway.
//
// # Resource Model
//
// All three kinds share the same lifecycle, driven entirely by the control
// plane:
//
//	ABSENT -> CREATING -> READY | FAILED
//	READY | FAILED -> DELETING -> DELETED
//
// Status values come only from control-plane reads. The client never guesses
// a transition locally; ABSENT and DELETED are derived from not-found lookups
// and everything else is reported verbatim.
//
// # Error Taxonomy
//
// Callers branch on four typed errors:
//
//   - TransientError: network failures, throttling, 5xx. Safe to retry with
//     backoff.
//   - ValidationError: the control plane rejected the request. Retrying the
//     identical request cannot succeed.
//   - NotFoundError: lookup miss. Normal during adoption and after deletes.
//   - ResourceFailedError: a resource reached the terminal FAILED state and
//     must be deleted and recreated by an operator.
//
// # Request Signing
//
// Every request is SigV4-signed. Credentials come from the default AWS chain
// (environment variables, shared config, instance roles) unless a provider is
// injected with WithCredentials. Tests point the client at a local stub via
// WithEndpoint and sign with static credentials.
package gateway
