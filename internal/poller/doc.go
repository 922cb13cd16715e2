// Package poller observes control-plane resource status on behalf of the
// provisioner and the status command.
//
// The control plane is eventually consistent: creates and deletes return
// before the resource settles, and reads along the way see CREATING or
// DELETING. WaitUntil turns that into a blocking call with three properties:
//
//   - Two polls of the same resource are never issued closer together than
//     the configured floor interval (default 2s). Intervals grow
//     exponentially with jitter up to the cap (default 30s).
//   - The overall wait is bounded by an explicit timeout. Exceeding it
//     returns a TimeoutError carrying the last observed status; a timeout
//     means the state is unknown, not that the resource failed.
//   - Transient observation errors are absorbed and retried inside the
//     timeout budget. Validation errors abort immediately.
//
// The clock and the backoff strategy are injected, so tests drive waits
// without real delays.
package poller
