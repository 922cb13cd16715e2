package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"agentgate/internal/secrets"
	"agentgate/pkg/logging"
)

const (
	// DefaultSafetyMargin is subtracted from a cached token's lifetime when
	// deciding whether it can still be handed out. It accounts for clock
	// skew, network latency, and the time the backend needs to act on the
	// token.
	DefaultSafetyMargin = 60 * time.Second

	// DefaultMaxAttempts bounds how often a single GetToken call hits the
	// issuer before giving up with an AuthBrokerError.
	DefaultMaxAttempts = 3

	// defaultExpiresIn applies when the issuer omits expires_in from the
	// token response.
	defaultExpiresIn = 3600 * time.Second

	// defaultRetryInterval seeds the exponential backoff between exchange
	// attempts.
	defaultRetryInterval = 500 * time.Millisecond
)

// Identity names one outbound credential: which issuer to exchange against,
// for which audience, and where in the secret store the client credentials
// live. The secret values themselves are never part of an Identity; they are
// fetched transiently for each exchange and discarded afterwards.
type Identity struct {
	// Name keys the token cache and appears in logs and metrics.
	Name string

	// Issuer is the base URL of the identity provider, without the
	// /oauth/token suffix.
	Issuer string

	// Audience is sent as the audience parameter of the exchange. Optional.
	Audience string

	// Scopes to request. Optional.
	Scopes []string

	// ClientIDRef and ClientSecretRef are secret store paths, not values.
	ClientIDRef     string
	ClientSecretRef string
}

func (id Identity) validate() error {
	switch {
	case id.Name == "":
		return errors.New("credential identity has no name")
	case id.Issuer == "":
		return fmt.Errorf("credential identity %q has no issuer", id.Name)
	case id.ClientIDRef == "":
		return fmt.Errorf("credential identity %q has no client id reference", id.Name)
	case id.ClientSecretRef == "":
		return fmt.Errorf("credential identity %q has no client secret reference", id.Name)
	}
	return nil
}

// Token is a brokered access token together with its validity window.
type Token struct {
	AccessToken string
	TokenType   string
	ObtainedAt  time.Time
	ExpiresAt   time.Time
}

// TTL reports the remaining lifetime of the token.
func (t Token) TTL() time.Duration {
	return time.Until(t.ExpiresAt)
}

// Broker obtains and caches outbound client-credentials tokens, one cache
// entry per credential identity.
//
// SECURITY: the broker handles client secrets and access tokens. Secret
// values are fetched from the store per exchange and never retained beyond
// the request to the issuer; token values are never logged, only identity
// names and expiry times.
type Broker struct {
	store      secrets.Store
	httpClient *http.Client

	margin        time.Duration
	maxAttempts   int
	retryInterval time.Duration

	mu    sync.RWMutex
	cache map[string]Token

	// group deduplicates concurrent exchanges per identity.
	group singleflight.Group

	exchanges *prometheus.CounterVec
}

// Option configures a Broker.
type Option func(*Broker)

// WithSafetyMargin overrides the minimum remaining lifetime a cached token
// must have to be served.
func WithSafetyMargin(margin time.Duration) Option {
	return func(b *Broker) {
		b.margin = margin
	}
}

// WithHTTPClient overrides the HTTP client used for exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) {
		b.httpClient = client
	}
}

// WithMaxAttempts bounds the exchange attempts per GetToken call.
func WithMaxAttempts(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithRetryInterval overrides the initial backoff interval between exchange
// attempts. Tests use this to avoid real delays.
func WithRetryInterval(d time.Duration) Option {
	return func(b *Broker) {
		b.retryInterval = d
	}
}

// WithRegisterer registers the broker's metrics with the given registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Broker) {
		reg.MustRegister(b.exchanges)
	}
}

// New creates a Broker that resolves client credentials through store.
func New(store secrets.Store, opts ...Option) *Broker {
	b := &Broker{
		store:         store,
		httpClient:    &http.Client{Timeout: time.Minute},
		margin:        DefaultSafetyMargin,
		maxAttempts:   DefaultMaxAttempts,
		retryInterval: defaultRetryInterval,
		cache:         make(map[string]Token),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgate",
			Subsystem: "broker",
			Name:      "token_exchanges_total",
			Help:      "Client-credentials exchanges against the issuer, by outcome.",
		}, []string{"identity", "outcome"}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// GetToken returns an access token for the given identity, serving from the
// cache when the cached token's remaining lifetime is above the safety
// margin. On a miss or near-expiry it performs a client-credentials exchange;
// concurrent callers for the same identity share a single in-flight exchange.
func (b *Broker) GetToken(ctx context.Context, id Identity) (Token, error) {
	if err := id.validate(); err != nil {
		return Token{}, err
	}

	// Fast path with read lock.
	if tok, ok := b.lookup(id.Name); ok {
		return tok, nil
	}

	result, err, _ := b.group.Do(id.Name, func() (interface{}, error) {
		// Double-check the cache after acquiring the singleflight slot.
		if tok, ok := b.lookup(id.Name); ok {
			return tok, nil
		}

		// The exchange is shared by every caller waiting on this flight, so
		// the initiating caller's disconnect must not fail the others. The
		// HTTP client timeout and the attempt cap still bound the work.
		tok, err := b.exchange(context.WithoutCancel(ctx), id)
		if err != nil {
			// A stale entry must never outlive a failed refresh.
			b.evict(id.Name)
			return Token{}, err
		}

		b.put(id.Name, tok)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}

	return result.(Token), nil
}

// Invalidate drops the cached token for one identity.
func (b *Broker) Invalidate(name string) {
	b.evict(name)
}

// Flush drops every cached token. The serve command calls this when the
// configuration is reloaded.
func (b *Broker) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string]Token)
}

func (b *Broker) lookup(name string) (Token, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tok, ok := b.cache[name]
	if !ok {
		return Token{}, false
	}
	if !time.Now().Add(b.margin).Before(tok.ExpiresAt) {
		return Token{}, false
	}
	return tok, true
}

func (b *Broker) put(name string, tok Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[name] = tok
}

func (b *Broker) evict(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cache, name)
}

// exchange performs the client-credentials grant against the issuer, with
// bounded retries for transient failures. All terminal failures come back as
// an AuthBrokerError.
func (b *Broker) exchange(ctx context.Context, id Identity) (Token, error) {
	var (
		tok      Token
		attempts int
	)

	operation := func() error {
		attempts++

		clientID, err := b.store.Get(ctx, id.ClientIDRef)
		if err != nil {
			return classifySecret(fmt.Errorf("resolve client id %q: %w", id.ClientIDRef, err))
		}
		clientSecret, err := b.store.Get(ctx, id.ClientSecretRef)
		if err != nil {
			return classifySecret(fmt.Errorf("resolve client secret %q: %w", id.ClientSecretRef, err))
		}

		t, err := b.exchangeOnce(ctx, id, clientID, clientSecret)
		if err != nil {
			return classifyExchange(err)
		}
		tok = t
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.retryInterval
	bo.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		logging.Warn("Broker", "Token exchange attempt %d for identity %s failed, retrying in %s: %v",
			attempts, id.Name, next.Round(time.Millisecond), err)
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(b.maxAttempts-1)), ctx),
		notify)
	if err != nil {
		b.exchanges.WithLabelValues(id.Name, "failure").Inc()
		return Token{}, &AuthBrokerError{Identity: id.Name, Attempts: attempts, Err: err}
	}

	b.exchanges.WithLabelValues(id.Name, "success").Inc()
	logging.Info("Broker", "Brokered token for identity %s (expires %s)",
		id.Name, tok.ExpiresAt.Format(time.RFC3339))
	return tok, nil
}

// exchangeOnce issues a single client-credentials request.
func (b *Broker) exchangeOnce(ctx context.Context, id Identity, clientID, clientSecret string) (Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     TokenURL(id.Issuer),
		Scopes:       id.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if id.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {id.Audience}}
	}

	// The exchange uses the broker's HTTP client, which carries the timeout.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	obtained := time.Now()
	t, err := cfg.Token(ctx)
	if err != nil {
		return Token{}, err
	}

	expiresAt := t.Expiry
	if expiresAt.IsZero() {
		expiresAt = obtained.Add(defaultExpiresIn)
	}

	return Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ObtainedAt:  obtained,
		ExpiresAt:   expiresAt,
	}, nil
}

// classifyExchange decides whether an issuer error is worth another attempt.
// Throttling and server-side failures are; rejected credentials are not.
func classifyExchange(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	// Network-level failure: reachable issuers recover from these.
	return err
}

// classifySecret treats a missing secret as permanent and anything else, like
// store throttling, as retryable.
func classifySecret(err error) error {
	if secrets.IsNotFound(err) {
		return backoff.Permanent(err)
	}
	return err
}

// TokenURL returns the issuer's client-credentials token endpoint.
func TokenURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/oauth/token"
}
