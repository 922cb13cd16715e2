package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"agentgate/internal/gateway"
	"agentgate/pkg/logging"
)

const (
	// DefaultFloor is the minimum interval between two polls of the same
	// resource. The control plane throttles aggressive pollers.
	DefaultFloor = 2 * time.Second

	// DefaultCap is the maximum backoff interval between polls.
	DefaultCap = 30 * time.Second

	// DefaultWaitTimeout bounds a WaitUntil call when the caller does not
	// pass its own timeout.
	DefaultWaitTimeout = 5 * time.Minute
)

// Ref identifies one control-plane resource for observation.
type Ref struct {
	// Kind selects which API lookup to use.
	Kind gateway.Kind
	// ID is the resource id, or the name for credential providers.
	ID string
	// GatewayID scopes target lookups. Unused for other kinds.
	GatewayID string
	// Name is the logical name, used in errors and logs.
	Name string
}

func (r Ref) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s %q", r.Kind, r.Name)
	}
	return fmt.Sprintf("%s %q", r.Kind, r.ID)
}

// TimeoutError reports that WaitUntil gave up before the predicate was
// satisfied. The resource's final state is unknown, which is different from
// having observed FAILED.
type TimeoutError struct {
	// Ref is the resource that was being watched.
	Ref Ref
	// Timeout is the wait bound that elapsed.
	Timeout time.Duration
	// LastStatus is the most recent observation, if any succeeded.
	LastStatus gateway.Status
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s (last observed status: %s)",
		e.Timeout, e.Ref, e.LastStatus)
}

// IsTimeout checks if an error is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// Clock abstracts time for deterministic tests. Sleep returns early with the
// context error when the context is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller observes control-plane resource status with exponential backoff
// between polls. Backoff strategy and clock are injected so wait behavior is
// testable without real delays.
type Poller struct {
	api        gateway.API
	clock      Clock
	newBackOff func() backoff.BackOff
	floor      time.Duration
	cap        time.Duration
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

// WithBackOffFactory replaces the per-wait backoff strategy.
func WithBackOffFactory(factory func() backoff.BackOff) Option {
	return func(p *Poller) {
		p.newBackOff = factory
	}
}

// WithIntervals sets the backoff floor and cap.
func WithIntervals(floor, cap time.Duration) Option {
	return func(p *Poller) {
		p.floor = floor
		p.cap = cap
	}
}

// New creates a Poller over the given control-plane API.
func New(api gateway.API, opts ...Option) *Poller {
	p := &Poller{
		api:   api,
		clock: realClock{},
		floor: DefaultFloor,
		cap:   DefaultCap,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.newBackOff == nil {
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = p.floor
			b.MaxInterval = p.cap
			b.Multiplier = 2.0
			b.RandomizationFactor = 0.25
			b.MaxElapsedTime = 0 // the overall bound is WaitUntil's timeout
			return b
		}
	}

	return p
}

// Observe fetches the current status of one resource. A not-found lookup is
// reported as ABSENT, not as an error: before creation and after deletion
// that is the resource's real state.
func (p *Poller) Observe(ctx context.Context, ref Ref) (gateway.Status, error) {
	var status gateway.Status
	var err error

	switch ref.Kind {
	case gateway.KindGateway:
		var gw *gateway.Gateway
		gw, err = p.api.GetGateway(ctx, ref.ID)
		if err == nil {
			status = gw.Status
		}
	case gateway.KindCredentialProvider:
		var provider *gateway.CredentialProvider
		provider, err = p.api.GetCredentialProvider(ctx, ref.ID)
		if err == nil {
			status = provider.Status
		}
	case gateway.KindTarget:
		var target *gateway.Target
		target, err = p.api.GetTarget(ctx, ref.GatewayID, ref.ID)
		if err == nil {
			status = target.Status
		}
	default:
		return "", &gateway.ValidationError{Op: "Observe", Message: fmt.Sprintf("unknown resource kind %q", ref.Kind)}
	}

	if err != nil {
		if gateway.IsNotFound(err) {
			return gateway.StatusAbsent, nil
		}
		return "", err
	}
	return status, nil
}

// WaitUntil polls ref until predicate accepts the observed status or timeout
// elapses. Transient observation errors are absorbed and retried within the
// timeout; any other error aborts the wait immediately. Two polls are never
// issued closer together than the configured floor.
func (p *Poller) WaitUntil(ctx context.Context, ref Ref, predicate func(gateway.Status) bool, timeout time.Duration) (gateway.Status, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := p.clock.Now().Add(timeout)

	b := p.newBackOff()
	b.Reset()

	var last gateway.Status
	for {
		status, err := p.Observe(ctx, ref)
		switch {
		case err == nil:
			last = status
			if predicate(status) {
				return status, nil
			}
			logging.Debug("Poller", "%s is %s, waiting", ref, status)
		case gateway.IsTransient(err):
			logging.Warn("Poller", "Transient error observing %s: %v", ref, err)
		default:
			return last, err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop || delay > p.cap {
			delay = p.cap
		}
		if delay < p.floor {
			delay = p.floor
		}

		if p.clock.Now().Add(delay).After(deadline) {
			return last, &TimeoutError{Ref: ref, Timeout: timeout, LastStatus: last}
		}
		if err := p.clock.Sleep(ctx, delay); err != nil {
			return last, err
		}
	}
}

// WaitTerminal polls until the resource reaches a resting state (READY,
// FAILED, ABSENT) and returns it. It is the usual wait after a create or
// delete operation; the caller branches on the returned status.
func (p *Poller) WaitTerminal(ctx context.Context, ref Ref, timeout time.Duration) (gateway.Status, error) {
	return p.WaitUntil(ctx, ref, func(s gateway.Status) bool { return s.Terminal() }, timeout)
}
