// Package proxy implements the runtime request path of the gateway: agents
// call it with their own bearer token, and it forwards their MCP JSON-RPC
// payloads to the backend with a brokered backend token attached. Agents
// never see backend credentials; the backend never sees agent tokens.
//
// # Request Protocol
//
// For each request: extract the bearer token, verify it (401 on failure,
// with audience mismatches distinguished from invalid tokens), obtain the
// outbound token from the broker (502 on failure, so callers can tell "your
// token is bad" from "the tool server is down"), forward the payload, relay
// the response.
//
// # Payload Agnosticism
//
// The proxy transports MCP payloads without interpreting them. The single
// exception is sniffing the JSON-RPC method name to decide retry safety:
// connection-level failures are retried once for initialize, ping, and
// listing methods, and surfaced immediately for everything else. Backend
// responses, including backend errors, are relayed unchanged except for auth
// and hop-by-hop headers; mcp-session-id flows through in both directions,
// and text/event-stream responses are flushed to the caller as they arrive.
//
// # Cancellation
//
// The backend call runs under the inbound request context: an agent that
// disconnects mid-call aborts the forward rather than leaking it.
package proxy
