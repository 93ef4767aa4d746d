package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/ragerr"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	cfg := config.Default().Resilience
	cfg.FailureThreshold = threshold
	cfg.RecoveryTimeout = recovery
	cfg.CallTimeout = 0

	b := NewBreaker("generation", cfg)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func fail(ctx context.Context) error    { return errBoom }
func succeed(ctx context.Context) error { return nil }

func TestBreakerOpensAtExactThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, b.Do(ctx, fail), errBoom)
		assert.Equal(t, StateClosed, b.State(), "failure %d must not open the circuit yet", i+1)
	}

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestOpenBreakerRejectsWithoutCalling(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, fail)
	}

	called := false
	err := b.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ragerr.ErrDependencyUnavailable)
	assert.False(t, called, "an open circuit must not touch the dependency")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	require.NoError(t, b.Do(ctx, succeed))
	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	require.ErrorIs(t, b.Do(ctx, fail), errBoom)

	assert.Equal(t, StateClosed, b.State(), "the streak restarted after the success")
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(59 * time.Second)
	assert.Equal(t, StateOpen, b.State(), "not yet: recovery timeout has not elapsed")

	*now = now.Add(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	*now = now.Add(time.Minute)

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	err := b.Do(ctx, succeed)
	assert.ErrorIs(t, err, ragerr.ErrDependencyUnavailable, "the clock has not advanced, still open")
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	*now = now.Add(time.Minute)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := b.Do(ctx, func(ctx context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()

	<-probeStarted
	err := b.Do(ctx, succeed)
	assert.ErrorIs(t, err, ragerr.ErrDependencyUnavailable, "a second caller is rejected while the probe is in flight")

	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.State())
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	cfg := config.Default().Resilience
	cfg.FailureThreshold = 1
	cfg.CallTimeout = 10 * time.Millisecond
	b := NewBreaker("embedding", cfg)

	err := b.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, ragerr.ErrDependencyUnavailable)
	assert.Equal(t, StateOpen, b.State())
}
