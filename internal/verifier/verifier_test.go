package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssuer serves a mutable JWKS document and counts fetches.
type fakeIssuer struct {
	srv  *httptest.Server
	hits atomic.Int32

	mu  sync.Mutex
	set jose.JSONWebKeySet
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	f := &fakeIssuer{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		assert.Equal(t, DefaultJWKSPath, r.URL.Path)
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.set)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) publish(kid string, pub interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set.Keys = append(f.set.Keys, jose.JSONWebKey{Key: pub, KeyID: kid, Use: "sig"})
}

func genRSA(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func baseClaims(issuer string, audiences ...string) Claims {
	return Claims{
		Scope: "tools.read",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "agent-7",
			Audience:  jwt.ClaimStrings(audiences),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func mint(t *testing.T, method jwt.SigningMethod, key interface{}, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})
	ctx := context.Background()

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims(issuer.srv.URL, "mcp-gateway"))
	claims, err := v.Verify(ctx, raw)
	require.NoError(t, err)

	assert.Equal(t, "agent-7", claims.Subject)
	assert.Equal(t, "tools.read", claims.Scope)
	assert.Equal(t, int32(1), issuer.hits.Load())

	// Keys are cached: a second verification does not refetch.
	_, err = v.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), issuer.hits.Load())
}

func TestVerify_ES256Token(t *testing.T) {
	issuer := newFakeIssuer(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	issuer.publish("kid-ec", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	raw := mint(t, jwt.SigningMethodES256, key, "kid-ec", baseClaims(issuer.srv.URL, "mcp-gateway"))
	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
}

func TestVerify_ExpiredToken(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	claims := baseClaims(issuer.srv.URL, "mcp-gateway")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))

	_, err := v.Verify(context.Background(), mint(t, jwt.SigningMethodRS256, key, "kid-a", claims))
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Contains(t, err.Error(), "expired")
}

func TestVerify_AudienceMismatch(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims(issuer.srv.URL, "some-other-api"))
	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)

	assert.True(t, IsAudienceMismatch(err))
	assert.False(t, IsInvalidToken(err), "audience mismatch is its own failure class")

	var mismatch *AudienceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"mcp-gateway"}, mismatch.Expected)
}

func TestVerify_TrailingSlashIssuer(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	// Auth0-style issuers carry a trailing slash in both configuration and
	// the iss claim. Verification must accept the pair as-is.
	v := New(issuer.srv.URL+"/", []string{"mcp-gateway"})

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims(issuer.srv.URL+"/", "mcp-gateway"))
	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, issuer.srv.URL+"/", claims.Issuer)
}

func TestVerify_WrongIssuer(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims("https://evil.example.com", "mcp-gateway"))
	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Contains(t, err.Error(), "issuer")
}

func TestVerify_BadSignature(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	// Signed by a different key, claiming the published kid.
	impostor := genRSA(t)
	raw := mint(t, jwt.SigningMethodRS256, impostor, "kid-a", baseClaims(issuer.srv.URL, "mcp-gateway"))

	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Contains(t, err.Error(), "signature")
}

func TestVerify_SymmetricAlgorithmRejected(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims(issuer.srv.URL, "mcp-gateway"))
	tok.Header["kid"] = "kid-a"
	raw, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
}

func TestVerify_UnknownKeyIDRefetchesExactlyOnce(t *testing.T) {
	issuer := newFakeIssuer(t)
	keyA := genRSA(t)
	issuer.publish("kid-a", &keyA.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})
	ctx := context.Background()

	// Prime the cache with the published key.
	_, err := v.Verify(ctx, mint(t, jwt.SigningMethodRS256, keyA, "kid-a", baseClaims(issuer.srv.URL, "mcp-gateway")))
	require.NoError(t, err)
	require.Equal(t, int32(1), issuer.hits.Load())

	// A token referencing a key the issuer has not published: one refetch,
	// then rejection.
	keyB := genRSA(t)
	rawB := mint(t, jwt.SigningMethodRS256, keyB, "kid-b", baseClaims(issuer.srv.URL, "mcp-gateway"))

	_, err = v.Verify(ctx, rawB)
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Equal(t, int32(2), issuer.hits.Load(), "exactly one refetch for the unknown kid")

	// Key rotation: once the issuer publishes kid-b, the same token passes.
	issuer.publish("kid-b", &keyB.PublicKey)
	claims, err := v.Verify(ctx, rawB)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
	assert.Equal(t, int32(3), issuer.hits.Load())
}

func TestVerify_MalformedTokenDoesNotFetchKeys(t *testing.T) {
	issuer := newFakeIssuer(t)
	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Contains(t, err.Error(), "malformed")
	assert.Equal(t, int32(0), issuer.hits.Load())
}

func TestVerify_EmptyToken(t *testing.T) {
	issuer := newFakeIssuer(t)
	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	_, err := v.Verify(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
	assert.Equal(t, int32(0), issuer.hits.Load())
}

func TestVerify_MissingKidHeader(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	raw := mint(t, jwt.SigningMethodRS256, key, "", baseClaims(issuer.srv.URL, "mcp-gateway"))
	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
}

func TestVerify_MissingExpiryRejected(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"})

	claims := baseClaims(issuer.srv.URL, "mcp-gateway")
	claims.ExpiresAt = nil

	_, err := v.Verify(context.Background(), mint(t, jwt.SigningMethodRS256, key, "kid-a", claims))
	require.Error(t, err)
	assert.True(t, IsInvalidToken(err))
}

func TestVerify_ServesCachedKeyWhenIssuerDown(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, []string{"mcp-gateway"}, WithCacheTTL(time.Nanosecond))
	ctx := context.Background()

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims(issuer.srv.URL, "mcp-gateway"))
	_, err := v.Verify(ctx, raw)
	require.NoError(t, err)

	// The TTL has elapsed and the issuer is gone; the previously published
	// key keeps inbound traffic working.
	issuer.srv.Close()
	claims, err := v.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", claims.Subject)
}

func TestVerify_AnyAudienceAcceptedWhenUnconfigured(t *testing.T) {
	issuer := newFakeIssuer(t)
	key := genRSA(t)
	issuer.publish("kid-a", &key.PublicKey)

	v := New(issuer.srv.URL, nil)

	raw := mint(t, jwt.SigningMethodRS256, key, "kid-a", baseClaims(issuer.srv.URL, "whatever"))
	_, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
}

func TestJWKSURL(t *testing.T) {
	assert.Equal(t, "https://login.example.com/.well-known/jwks.json", JWKSURL("https://login.example.com"))
	assert.Equal(t, "https://login.example.com/.well-known/jwks.json", JWKSURL("https://login.example.com/"))
}
