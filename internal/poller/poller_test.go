package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/gateway"
	"agentgate/internal/gateway/gatewaytest"
)

// fakeClock advances instantly on Sleep and records every requested delay.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func newTestPoller(api gateway.API, clock Clock) *Poller {
	return New(api,
		WithClock(clock),
		WithIntervals(2*time.Second, 30*time.Second),
	)
}

func TestObserve_MapsNotFoundToAbsent(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	p := newTestPoller(fake, newFakeClock())

	status, err := p.Observe(context.Background(), Ref{Kind: gateway.KindGateway, ID: "gw-nope"})
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusAbsent, status)
}

func TestObserve_UnknownKind(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	p := newTestPoller(fake, newFakeClock())

	_, err := p.Observe(context.Background(), Ref{Kind: gateway.Kind("volcano"), ID: "x"})
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
}

func TestWaitUntil_ReachesReadyWithinPollCycles(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	fake.SettleAfter = 3
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{
		Name:         "agent-tools",
		ProtocolType: gateway.ProtocolMCP,
	})
	require.NoError(t, err)
	require.Equal(t, gateway.StatusCreating, gw.Status)

	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	status, err := p.WaitTerminal(context.Background(), ref, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusReady, status)

	// Creating observed SettleAfter times, then the settling observation.
	assert.Equal(t, 4, fake.Calls("GetGateway"))
}

func TestWaitUntil_RespectsBackoffFloor(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	fake.SettleAfter = 5
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{Name: "agent-tools"})
	require.NoError(t, err)

	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	_, err = p.WaitTerminal(context.Background(), ref, 10*time.Minute)
	require.NoError(t, err)

	sleeps := clock.recorded()
	require.NotEmpty(t, sleeps)
	for i, d := range sleeps {
		assert.GreaterOrEqual(t, d, 2*time.Second, "sleep %d below the floor", i)
		assert.LessOrEqual(t, d, 30*time.Second, "sleep %d above the cap", i)
	}
}

func TestWaitUntil_TimeoutReturnsDistinctError(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	fake.SettleAfter = 1000 // never settles within this test
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{Name: "agent-tools"})
	require.NoError(t, err)

	start := clock.Now()
	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	status, err := p.WaitTerminal(context.Background(), ref, 30*time.Second)
	require.Error(t, err)

	require.True(t, IsTimeout(err))
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, gateway.StatusCreating, timeoutErr.LastStatus)
	assert.Equal(t, gateway.StatusCreating, status, "last observation is returned alongside the timeout")

	// Status is unknown on timeout, which must not read as FAILED.
	assert.False(t, gateway.IsResourceFailed(err))

	// The wait never overshoots its bound.
	assert.LessOrEqual(t, clock.Now().Sub(start), 30*time.Second)
}

func TestWaitUntil_TransientObservationErrorsAreAbsorbed(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{Name: "agent-tools"})
	require.NoError(t, err)

	fake.FailNext("GetGateway", &gateway.TransientError{Op: "GetGateway", Err: context.DeadlineExceeded})

	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	status, err := p.WaitTerminal(context.Background(), ref, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusReady, status)
	assert.Equal(t, 2, fake.Calls("GetGateway"), "first observation failed, second succeeded")
}

func TestWaitUntil_ValidationErrorFailsImmediately(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	fake.FailNext("GetGateway", &gateway.ValidationError{Op: "GetGateway", Message: "bad id"})

	ref := Ref{Kind: gateway.KindGateway, ID: "gw-x", Name: "agent-tools"}
	_, err := p.WaitTerminal(context.Background(), ref, time.Minute)
	require.Error(t, err)
	assert.True(t, gateway.IsValidation(err))
	assert.Equal(t, 1, fake.Calls("GetGateway"), "validation errors are not retried")
	assert.Empty(t, clock.recorded(), "no backoff sleep on fail-fast errors")
}

func TestWaitUntil_ContextCancellationStopsWait(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	fake.SettleAfter = 1000
	clock := newFakeClock()
	p := newTestPoller(fake, clock)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{Name: "agent-tools"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	_, err = p.WaitUntil(ctx, ref, func(s gateway.Status) bool { return s == gateway.StatusReady }, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitUntil_CustomBackOffFactory(t *testing.T) {
	fake := gatewaytest.New("us-west-2")
	fake.SettleAfter = 2
	clock := newFakeClock()
	p := New(fake,
		WithClock(clock),
		WithIntervals(time.Second, time.Minute),
		WithBackOffFactory(func() backoff.BackOff {
			return backoff.NewConstantBackOff(5 * time.Second)
		}),
	)

	gw, err := fake.CreateGateway(context.Background(), gateway.CreateGatewayInput{Name: "agent-tools"})
	require.NoError(t, err)

	ref := Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	_, err = p.WaitTerminal(context.Background(), ref, time.Minute)
	require.NoError(t, err)

	for _, d := range clock.recorded() {
		assert.Equal(t, 5*time.Second, d)
	}
}

func TestTimeoutError_Message(t *testing.T) {
	err := &TimeoutError{
		Ref:        Ref{Kind: gateway.KindGateway, Name: "agent-tools"},
		Timeout:    30 * time.Second,
		LastStatus: gateway.StatusCreating,
	}
	assert.Contains(t, err.Error(), "timed out after 30s")
	assert.Contains(t, err.Error(), `gateway "agent-tools"`)
	assert.Contains(t, err.Error(), "CREATING")
}
