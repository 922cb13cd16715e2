package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/broker"
	"agentgate/internal/verifier"
)

type fakeVerifier struct {
	err   error
	calls atomic.Int32
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*verifier.Claims, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &verifier.Claims{
		Scope:            "tools.read",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-7"},
	}, nil
}

type fakeBroker struct {
	err   error
	calls atomic.Int32
}

func (f *fakeBroker) GetToken(_ context.Context, _ broker.Identity) (broker.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return broker.Token{}, f.err
	}
	return broker.Token{
		AccessToken: "backend-token",
		TokenType:   "Bearer",
		ObtainedAt:  time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func testIdentity() broker.Identity {
	return broker.Identity{
		Name:            "auth0-backend",
		Issuer:          "https://issuer.example.com",
		ClientIDRef:     "/agentgate/oauth/client_id",
		ClientSecretRef: "/agentgate/oauth/client_secret",
	}
}

func newTestProxy(t *testing.T, backendURL string, v TokenVerifier, b TokenBroker, opts ...Option) *Proxy {
	t.Helper()
	p, err := New(v, b, testIdentity(), backendURL, opts...)
	require.NoError(t, err)
	return p
}

func inboundRequest(method, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, "http://gw.local/mcp", reader)
	r.Header.Set("Authorization", "Bearer agent-token")
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	return r
}

func TestServeHTTP_RelaysWithAuthTranslation(t *testing.T) {
	var gotAuth, gotSession, gotBody, gotRequestID string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSession = r.Header.Get("Mcp-Session-Id")
		gotRequestID = r.Header.Get("X-Request-Id")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Mcp-Session-Id", "sess-backend")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{})

	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := inboundRequest(http.MethodPost, payload)
	req.Header.Set("Mcp-Session-Id", "sess-agent")

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "sess-backend", rec.Header().Get("Mcp-Session-Id"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	// Auth translation: the agent token never reaches the backend, the
	// brokered token does, and the payload passes through untouched.
	assert.Equal(t, "Bearer backend-token", gotAuth)
	assert.Equal(t, "sess-agent", gotSession)
	assert.Equal(t, payload, gotBody)
	assert.NotEmpty(t, gotRequestID)
}

func TestServeHTTP_MissingBearerToken(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer backend.Close()

	v := &fakeVerifier{}
	p := newTestProxy(t, backend.URL, v, &fakeBroker{})

	req := httptest.NewRequest(http.MethodPost, "http://gw.local/mcp", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Equal(t, int32(0), v.calls.Load())
	assert.Equal(t, int32(0), hits.Load())
}

func TestServeHTTP_InvalidTokenNeverReachesBackend(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer backend.Close()

	v := &fakeVerifier{err: &verifier.InvalidTokenError{Reason: "token expired"}}
	b := &fakeBroker{}
	p := newTestProxy(t, backend.URL, v, b)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	assert.Equal(t, int32(0), hits.Load(), "rejected requests must not reach the backend")
	assert.Equal(t, int32(0), b.calls.Load(), "no outbound token for rejected requests")
}

func TestServeHTTP_AudienceMismatch(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	v := &fakeVerifier{err: &verifier.AudienceMismatchError{Expected: []string{"mcp-gateway"}}}
	p := newTestProxy(t, backend.URL, v, &fakeBroker{})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "audience")
}

func TestServeHTTP_BrokerFailureIsBadGateway(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer backend.Close()

	b := &fakeBroker{err: &broker.AuthBrokerError{Identity: "auth0-backend", Attempts: 3}}
	p := newTestProxy(t, backend.URL, &fakeVerifier{}, b)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":42,"method":"tools/call"}`))

	// Distinguished from 401: the agent's token was fine, the gateway's
	// backend credentials were not.
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "backend credentials unavailable")
	assert.Contains(t, rec.Body.String(), `"id":42`)
	assert.Equal(t, int32(0), hits.Load())
}

func TestServeHTTP_RetriesIdempotentMethodOnce(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{}, WithRetryWait(time.Millisecond))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), hits.Load(), "one retry after the connection failure")
}

func TestServeHTTP_ToolCallsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{}, WithRetryWait(time.Millisecond))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":7,"method":"tools/call"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "backend unavailable")
	assert.Equal(t, int32(1), hits.Load(), "a tool invocation must not be sent twice")
}

func TestServeHTTP_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{}, WithRetryWait(time.Millisecond))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "backend unavailable")
}

func TestServeHTTP_BackendErrorStatusIsRelayed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"tool exploded"}}`)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool exploded")
}

func TestServeHTTP_BackendChallengeIsNotRelayed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`))

	// The backend rejected the brokered token. Relaying its challenge would
	// tell the agent its own token is bad, which it is not.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestServeHTTP_StreamsSSE(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		flusher.Flush()
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{})

	req := inboundRequest(http.MethodGet, "")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed, "event stream must be flushed as it arrives")
	assert.Contains(t, rec.Body.String(), `"result":{}`)
	assert.Contains(t, rec.Body.String(), "notifications/progress")
}

func TestServeHTTP_ClientDisconnectAbortsForward(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer backend.Close()
	defer close(release)

	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`).WithContext(ctx)
	rec := httptest.NewRecorder()

	start := time.Now()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second, "a gone caller must not keep the forward alive")
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	p := newTestProxy(t, "http://backend.local/mcp", &fakeVerifier{}, &fakeBroker{})

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "http://gw.local/mcp", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTP_Metrics(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer backend.Close()

	reg := prometheus.NewRegistry()
	p := newTestProxy(t, backend.URL, &fakeVerifier{}, &fakeBroker{}, WithRegisterer(reg))

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, inboundRequest(http.MethodPost, `{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://gw.local/mcp", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("relayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("invalid_token")))
}

func TestNew_RejectsBadEndpoint(t *testing.T) {
	_, err := New(&fakeVerifier{}, &fakeBroker{}, testIdentity(), "")
	assert.Error(t, err)

	_, err = New(&fakeVerifier{}, &fakeBroker{}, testIdentity(), "not a url")
	assert.Error(t, err)
}

func TestIdempotent(t *testing.T) {
	assert.True(t, idempotent("initialize"))
	assert.True(t, idempotent("ping"))
	assert.True(t, idempotent("tools/list"))
	assert.True(t, idempotent("resources/templates/list"))
	assert.False(t, idempotent("tools/call"))
	assert.False(t, idempotent("notifications/initialized"))
	assert.False(t, idempotent(""))
}
