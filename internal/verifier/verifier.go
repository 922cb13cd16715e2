package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"agentgate/pkg/logging"
)

const (
	// DefaultCacheTTL is how long a fetched key set is considered fresh.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultLeeway absorbs clock skew between the issuer and this process
	// when validating time-based claims.
	DefaultLeeway = 30 * time.Second

	// DefaultJWKSPath is where issuers conventionally publish their key set.
	DefaultJWKSPath = "/.well-known/jwks.json"

	// refreshTimeout bounds a single key set fetch.
	refreshTimeout = 2 * time.Second
)

// allowedAlgs lists the signing algorithms accepted on inbound tokens.
// Symmetric algorithms are rejected: inbound tokens must be verifiable with
// published public keys only.
var allowedAlgs = []string{"RS256", "ES256"}

// Claims are the validated contents of an inbound token.
type Claims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates inbound bearer tokens against an issuer's published key
// set. Verification failures are never retried; the caller must present a new
// token.
type Verifier struct {
	issuer    string
	audiences []string
	leeway    time.Duration
	keys      *keyCache
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient overrides the HTTP client used for key set fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.keys.http = client
	}
}

// WithCacheTTL overrides how long a fetched key set stays fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Verifier) {
		v.keys.ttl = ttl
	}
}

// WithLeeway overrides the clock skew tolerance for time-based claims.
func WithLeeway(leeway time.Duration) Option {
	return func(v *Verifier) {
		v.leeway = leeway
	}
}

// WithJWKSURL points the verifier at a key set published somewhere other
// than the issuer's default well-known path.
func WithJWKSURL(url string) Option {
	return func(v *Verifier) {
		v.keys.url = url
	}
}

// New creates a Verifier for tokens issued by issuer. When audiences is
// non-empty, a token must carry at least one of them; when empty, any
// audience is accepted.
func New(issuer string, audiences []string, opts ...Option) *Verifier {
	// The issuer is matched byte-for-byte against the iss claim, so it is
	// kept exactly as configured (Auth0-style issuers carry a trailing
	// slash). Only the derived JWKS URL gets normalized.
	v := &Verifier{
		issuer:    issuer,
		audiences: audiences,
		leeway:    DefaultLeeway,
		keys: &keyCache{
			url:       JWKSURL(issuer),
			http:      &http.Client{Timeout: 10 * time.Second},
			ttl:       DefaultCacheTTL,
			keysByKID: map[string]interface{}{},
		},
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify validates rawToken and returns its claims. Failures are an
// InvalidTokenError (malformed, expired, bad signature, unknown signing key)
// or an AudienceMismatchError (valid token for someone else).
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, &InvalidTokenError{Reason: "empty token"}
	}

	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.keys.get(ctx, kid)
	},
		jwt.WithValidMethods(allowedAlgs),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParse(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &InvalidTokenError{Reason: "token rejected"}
	}

	if len(v.audiences) > 0 && !audienceAllowed(claims.Audience, v.audiences) {
		return nil, &AudienceMismatchError{Expected: v.audiences, Got: claims.Audience}
	}

	return claims, nil
}

func audienceAllowed(got jwt.ClaimStrings, allowed []string) bool {
	for _, want := range allowed {
		for _, have := range got {
			if have == want {
				return true
			}
		}
	}
	return false
}

// classifyParse maps jwt parse failures onto the inbound error types.
func classifyParse(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &InvalidTokenError{Reason: "malformed token", Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &InvalidTokenError{Reason: "token expired", Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return &InvalidTokenError{Reason: "token not valid yet", Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &InvalidTokenError{Reason: "signature verification failed", Err: err}
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return &InvalidTokenError{Reason: "wrong issuer", Err: err}
	default:
		return &InvalidTokenError{Reason: "token rejected", Err: err}
	}
}

// keyCache holds the issuer's signing keys by key id, refreshed from the
// JWKS endpoint when stale or when a token references an unknown key id.
type keyCache struct {
	url  string
	http *http.Client
	ttl  time.Duration

	mu        sync.RWMutex
	keysByKID map[string]interface{}
	fetchedAt time.Time

	// group deduplicates concurrent refreshes.
	group singleflight.Group
}

// get returns the public key for kid. On a miss or a stale cache it refetches
// the key set exactly once; a kid still unknown after that refetch is an
// error, not another fetch.
func (c *keyCache) get(ctx context.Context, kid string) (interface{}, error) {
	c.mu.RLock()
	key, ok := c.keysByKID[kid]
	fresh := time.Since(c.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		return nil, c.refresh(refreshCtx)
	})
	if err != nil {
		if ok {
			// The issuer is unreachable but we still hold a previously
			// published key for this kid. Serve it rather than failing
			// every inbound request.
			logging.Warn("Verifier", "JWKS refresh failed, serving cached key: %v", err)
			return key, nil
		}
		return nil, fmt.Errorf("fetch issuer key set: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keysByKID[kid]
	if !ok {
		return nil, fmt.Errorf("signing key %q not in issuer key set", kid)
	}
	return key, nil
}

func (c *keyCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jwks endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := map[string]interface{}{}
	for _, k := range set.Keys {
		if k.Key == nil || strings.TrimSpace(k.KeyID) == "" {
			continue
		}
		keys[k.KeyID] = k.Key
	}
	if len(keys) == 0 {
		return errors.New("jwks contained no usable keys")
	}

	c.mu.Lock()
	c.keysByKID = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	logging.Debug("Verifier", "Refreshed JWKS from %s (%d keys)", c.url, len(keys))
	return nil
}

// JWKSURL returns the issuer's conventional key set location.
func JWKSURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + DefaultJWKSPath
}
