// Package server hosts the runtime HTTP surface of agentgate: the MCP proxy
// endpoint, a liveness endpoint, and Prometheus metrics, all on one
// listener with graceful shutdown.
//
// Handlers are swappable at runtime. The serve command rebuilds the proxy
// stack when the configuration file changes (observed by ConfigWatcher) and
// swaps it in without dropping the listener or in-flight requests.
package server
