// Package logging provides a structured logging system for agentgate with
// unified log handling and flexible output formatting.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output and level filtering.
//
// # Architecture
//
// The logging system is built around these core concepts:
//
// ## Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// ## Structured Logging
// All log entries include:
//   - Timestamp with nanosecond precision
//   - Log level (Debug, Info, Warn, Error)
//   - Subsystem identifier for categorization
//   - Message content with optional formatting
//   - Optional error information
//
// # Usage Examples
//
// ## Initialization
//
//	import "agentgate/pkg/logging"
//
//	// Interactive commands: human-readable text at Info level
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	// Proxy listener: one JSON object per line for collectors
//	logging.InitForServe(logging.LevelInfo, os.Stderr)
//
//	// Log messages
//	logging.Info("Provisioner", "Gateway %s is %s", name, status)
//	logging.Debug("Broker", "Cache hit for identity %s", identity)
//	logging.Warn("Poller", "Control plane throttled, backing off")
//	logging.Error("Proxy", err, "Backend forward failed")
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Provisioner**: Control-plane resource lifecycle
//   - **Poller**: Status observation and backoff waits
//   - **Broker**: Outbound token exchange and caching
//   - **Verifier**: Inbound token verification and JWKS refresh
//   - **Proxy**: Request forwarding
//   - **Secrets**: Parameter store access (values never logged)
//
// # Security
//
// Token values, client secrets, and Authorization header contents are never
// passed to this package. Callers log identities, issuers, and expiry times
// only.
//
// # Thread Safety
//
// The logging system is fully thread-safe:
//   - Safe concurrent logging from multiple goroutines
//   - Level filtering at handler level for efficiency
//   - No memory allocation for filtered-out messages
package logging
