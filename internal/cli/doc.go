// Package cli provides the terminal presentation layer shared by agentgate
// commands.
//
// It deliberately contains no gateway or broker logic: commands decide what
// to do, this package decides how it looks.
//
// # Components
//
// Progress wraps a spinner for long-running provisioning waits and is a
// no-op in quiet mode, so command code never branches on quietness.
//
// Confirm asks a destructive-action question on the terminal; Ctrl+C,
// Ctrl+D and an empty line all decline.
//
// Table renders resource state either as a rounded box table for humans or
// as kubectl-style plain columns for piping into other tools. OutputFlags
// registers the --output/--no-headers flags that select between them.
//
// ClassifyConnectionError categorizes connection failures (TLS, DNS,
// timeout, network) so commands can tell the operator what actually went
// wrong instead of echoing a raw dial error.
//
// # Formatting Conventions
//
// Success lines start with ✓ and warnings with ⚠. Resource statuses are
// colored: green READY, red FAILED, yellow for in-flight states, grey for
// ABSENT and DELETED.
package cli
