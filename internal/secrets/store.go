package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Store is a named secret lookup. Names are hierarchical paths such as
// /agentgate/oauth/client_secret. Implementations must never log values.
type Store interface {
	// Get returns the secret value for name. A missing secret is reported
	// as a NotFoundError.
	Get(ctx context.Context, name string) (string, error)

	// Put stores value under name. When encrypted is true the backing
	// store keeps the value encrypted at rest, if it can.
	Put(ctx context.Context, name, value string, encrypted bool) error
}

// NotFoundError reports that no secret exists under the requested name.
type NotFoundError struct {
	// Name is the path that was looked up.
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found", e.Name)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// MemoryStore is an in-memory Store used by tests and single-process runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[name]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	return value, nil
}

// Put implements Store. The encrypted flag is accepted and ignored; process
// memory has no at-rest form.
func (s *MemoryStore) Put(_ context.Context, name, value string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[name] = value
	return nil
}

// EnvStore resolves secret paths from environment variables, for local runs
// without a parameter store. The path /agentgate/oauth/client_secret maps to
// AGENTGATE_OAUTH_CLIENT_SECRET.
type EnvStore struct{}

// NewEnvStore creates an environment-variable backed store.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// EnvKey converts a secret path to its environment variable name.
func EnvKey(name string) string {
	key := strings.Trim(name, "/")
	key = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(key)
	return strings.ToUpper(key)
}

// Get implements Store.
func (s *EnvStore) Get(_ context.Context, name string) (string, error) {
	value, ok := os.LookupEnv(EnvKey(name))
	if !ok || value == "" {
		return "", &NotFoundError{Name: name}
	}
	return value, nil
}

// Put implements Store. Environment variables only affect this process, so
// writes are rejected rather than silently lost.
func (s *EnvStore) Put(_ context.Context, name, _ string, _ bool) error {
	return fmt.Errorf("env store is read-only, cannot store %q", name)
}

// Chain tries each store in order on reads, returning the first value found.
// Writes go to the last store, which is expected to be the durable one.
type Chain struct {
	stores []Store
}

// NewChain builds a chained store. Typical layering is environment overrides
// first, the parameter store last.
func NewChain(stores ...Store) *Chain {
	return &Chain{stores: stores}
}

// Get implements Store.
func (c *Chain) Get(ctx context.Context, name string) (string, error) {
	for _, store := range c.stores {
		value, err := store.Get(ctx, name)
		if err == nil {
			return value, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
	}
	return "", &NotFoundError{Name: name}
}

// Put implements Store.
func (c *Chain) Put(ctx context.Context, name, value string, encrypted bool) error {
	if len(c.stores) == 0 {
		return fmt.Errorf("no stores configured, cannot store %q", name)
	}
	return c.stores[len(c.stores)-1].Put(ctx, name, value, encrypted)
}
