// Package provisioner drives the lifecycle of the three control-plane
// resources: gateway, credential provider, and target.
//
// # State Machine
//
// Every resource moves through the same states, owned by the control plane:
//
//	ABSENT -> CREATING -> READY | FAILED
//	READY | FAILED -> DELETING -> DELETED
//
// Ensure operations implement one transition policy:
//
//  1. Adopt: look the resource up by logical name. If it exists it is
//     adopted, never recreated, so re-running a deployment is a no-op.
//  2. Create: only when the lookup missed. Create calls carry a client
//     token, so a retried create never duplicates.
//  3. Settle: wait (via the poller) until the resource is terminal.
//     READY returns the handle; FAILED returns a ResourceFailedError,
//     which only an operator can resolve by deleting and recreating.
//
// Transitions are driven by observed control-plane status, never by local
// assumption. An ensure interrupted mid-wait can simply be re-run: the next
// run adopts the half-created resource and continues waiting.
//
// # Ordering
//
// A target's credential provider must be READY before EnsureTarget runs.
// That is a precondition, not a wait: a missing or settling provider fails
// the call with a ValidationError immediately. Teardown runs in reverse
// dependency order (targets, then provider, then gateway), waiting out each
// deletion so the control plane never sees a dangling reference.
//
// # Failure Semantics
//
// Transient control-plane errors on create and delete calls are retried
// with exponential backoff inside a bounded budget. Validation errors
// surface immediately. Partial failures leave every resource exactly where
// it was for inspection; nothing is rolled back automatically.
package provisioner
