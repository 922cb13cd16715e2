package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"agentgate/internal/broker"
	"agentgate/internal/verifier"
	"agentgate/pkg/logging"
)

// DefaultRetryWait is the pause before the single retry of an idempotent
// forward whose backend connection failed.
const DefaultRetryWait = 250 * time.Millisecond

// JSON-RPC error codes emitted by the proxy itself, in the reserved
// implementation-defined server error range.
const (
	codeAuthFailed         = -32001
	codeTokenBroker        = -32002
	codeBackendUnavailable = -32003
)

// TokenVerifier validates inbound bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*verifier.Claims, error)
}

// TokenBroker supplies outbound backend tokens.
type TokenBroker interface {
	GetToken(ctx context.Context, id broker.Identity) (broker.Token, error)
}

// Proxy is the runtime request path: it verifies the inbound bearer token,
// swaps it for a brokered backend token, forwards the MCP JSON-RPC payload
// to the backend endpoint, and relays the response. Payloads are never
// interpreted beyond sniffing the JSON-RPC method name for retry decisions.
type Proxy struct {
	verifier   TokenVerifier
	broker     TokenBroker
	identity   broker.Identity
	backend    string
	httpClient *http.Client
	retryWait  time.Duration

	requests *prometheus.CounterVec
	retries  prometheus.Counter
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient overrides the HTTP client used for backend forwards. The
// default carries no overall timeout so that event streams can run long, and
// bounds only the wait for response headers.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		p.httpClient = client
	}
}

// WithRetryWait overrides the pause before the single idempotent retry.
func WithRetryWait(d time.Duration) Option {
	return func(p *Proxy) {
		p.retryWait = d
	}
}

// WithRegisterer registers the proxy's metrics with the given registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Proxy) {
		reg.MustRegister(p.requests, p.retries)
	}
}

// New creates a Proxy forwarding to the backend MCP endpoint.
func New(v TokenVerifier, b TokenBroker, identity broker.Identity, backendURL string, opts ...Option) (*Proxy, error) {
	u, err := url.Parse(backendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend endpoint %q", backendURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second

	p := &Proxy{
		verifier:   v,
		broker:     b,
		identity:   identity,
		backend:    backendURL,
		httpClient: &http.Client{Transport: transport},
		retryWait:  DefaultRetryWait,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxied MCP requests by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "proxy",
			Name:      "forward_retries_total",
			Help:      "Backend forwards retried after a connection failure.",
		}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// ServeHTTP implements the gateway-facing MCP endpoint.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodGet, http.MethodDelete:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	rawToken, ok := bearerToken(r)
	if !ok {
		p.requests.WithLabelValues("invalid_token").Inc()
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
		writeRPCError(w, http.StatusUnauthorized, nil, codeAuthFailed, "missing bearer token")
		return
	}

	claims, err := p.verifier.Verify(r.Context(), rawToken)
	if err != nil {
		p.denyInbound(w, requestID, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, codeBackendUnavailable, "unreadable request body")
		return
	}
	call := sniffCall(body)

	token, err := p.broker.GetToken(r.Context(), p.identity)
	if err != nil {
		p.requests.WithLabelValues("broker_error").Inc()
		logging.Error("Proxy", err, "Request %s: backend token unavailable", requestID)
		writeRPCError(w, http.StatusBadGateway, call.ID, codeTokenBroker, "backend credentials unavailable")
		return
	}

	resp, err := p.forward(r, body, call.Method, token.AccessToken, requestID)
	if err != nil {
		p.requests.WithLabelValues("backend_unavailable").Inc()
		logging.Error("Proxy", err, "Request %s: backend forward failed", requestID)
		writeRPCError(w, http.StatusBadGateway, call.ID, codeBackendUnavailable, "backend unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	p.relay(w, resp)
	p.requests.WithLabelValues("relayed").Inc()
	logging.Debug("Proxy", "Request %s: %s %s -> %d (subject %s)",
		requestID, r.Method, call.Method, resp.StatusCode, claims.Subject)
}

// denyInbound answers a failed verification. Audience mismatches are counted
// separately so a misconfigured agent shows up in metrics at a glance.
func (p *Proxy) denyInbound(w http.ResponseWriter, requestID string, err error) {
	outcome, message := "invalid_token", "token verification failed"
	if verifier.IsAudienceMismatch(err) {
		outcome, message = "audience_mismatch", "token audience not accepted"
	}
	p.requests.WithLabelValues(outcome).Inc()
	logging.Warn("Proxy", "Request %s rejected: %v", requestID, err)
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeRPCError(w, http.StatusUnauthorized, nil, codeAuthFailed, message)
}

// forward sends the payload to the backend with the brokered token attached.
// A connection-level failure is retried once for idempotent methods; anything
// the backend actually answered is relayed, whatever the status.
func (p *Proxy) forward(r *http.Request, body []byte, method, token, requestID string) (*http.Response, error) {
	ctx := r.Context()
	attempts := 0

	for {
		attempts++

		req, err := http.NewRequestWithContext(ctx, r.Method, p.backend, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		copyForwardHeaders(req.Header, r.Header)
		req.Header.Set("Authorization", "Bearer "+token)
		if req.Header.Get("X-Request-Id") == "" {
			req.Header.Set("X-Request-Id", requestID)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json, text/event-stream")
		}
		if r.Method == http.MethodPost && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		if attempts > 1 || !idempotent(method) || ctx.Err() != nil {
			return nil, &BackendUnavailableError{Endpoint: p.backend, Attempts: attempts, Err: err}
		}

		p.retries.Inc()
		logging.Warn("Proxy", "Request %s: backend connection failed, retrying %s once: %v", requestID, method, err)
		select {
		case <-ctx.Done():
			return nil, &BackendUnavailableError{Endpoint: p.backend, Attempts: attempts, Err: ctx.Err()}
		case <-time.After(p.retryWait):
		}
	}
}

// relay copies the backend response through unchanged except for auth and
// hop-by-hop headers. Event streams are flushed as they arrive.
func (p *Proxy) relay(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		if _, skip := skipRelayHeaders[key]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		streamSSE(w, resp.Body)
		return
	}
	_, _ = io.Copy(w, resp.Body)
}

func streamSSE(w http.ResponseWriter, body io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_, _ = io.Copy(w, body)
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}

// idempotent reports whether an MCP method is safe to send twice. Handshake
// and listing calls are; tool invocations and notifications are not.
func idempotent(method string) bool {
	switch method {
	case "initialize", "ping":
		return true
	}
	return strings.HasSuffix(method, "/list")
}

// rpcCall is the only part of the payload the proxy looks at.
type rpcCall struct {
	Method string          `json:"method"`
	ID     json.RawMessage `json:"id"`
}

// sniffCall extracts the method and id when the body is a single JSON-RPC
// object. Batches and malformed bodies sniff as empty, which disables the
// retry and echoes a null id on proxy-generated errors.
func sniffCall(body []byte) rpcCall {
	var call rpcCall
	_ = json.Unmarshal(body, &call)
	return call
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):]), true
	}
	return "", false
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]interface{}{"code": code, "message": message},
	})
}

// skipForwardHeaders are never copied onto the backend request: the inbound
// bearer token must not leak to the backend, and hop-by-hop headers do not
// survive proxying.
var skipForwardHeaders = map[string]struct{}{
	"Authorization":       {},
	"Content-Length":      {},
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// skipRelayHeaders are dropped from the backend response. A backend
// WWW-Authenticate challenge concerns the brokered token, not the agent's,
// and would misdirect the caller.
var skipRelayHeaders = map[string]struct{}{
	"Www-Authenticate":  {},
	"Connection":        {},
	"Proxy-Connection":  {},
	"Keep-Alive":        {},
	"Te":                {},
	"Trailer":           {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
}

func copyForwardHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, skip := skipForwardHeaders[key]; skip {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
