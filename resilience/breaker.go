// Package resilience guards external dependencies with per-dependency
// circuit breakers and drives the degradation chain when they fail.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scholarmind/ragcore/common/logger"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/metrics"
	"github.com/scholarmind/ragcore/ragerr"
)

// State is the breaker's position in its three-state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker is a consecutive-failure circuit breaker for one dependency.
// All transitions happen under one mutex so concurrent failures cannot
// race past the threshold, and only one caller probes in HalfOpen.
type Breaker struct {
	name        string
	threshold   int
	recovery    time.Duration
	callTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker named after its dependency.
func NewBreaker(name string, cfg config.ResilienceConfig) *Breaker {
	return &Breaker{
		name:        name,
		threshold:   cfg.FailureThreshold,
		recovery:    cfg.RecoveryTimeout,
		callTimeout: cfg.CallTimeout,
		now:         time.Now,
		state:       StateClosed,
	}
}

// State reports the current state, accounting for recovery expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.recovery {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn under the breaker with the configured call timeout. When the
// breaker is open, or another caller holds the HalfOpen probe, fn is never
// invoked and ErrDependencyUnavailable returns immediately. A timeout
// counts as a failure like any other error.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	callCtx := ctx
	cancel := func() {}
	if b.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
	}
	err := fn(callCtx)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ragerr.New(ragerr.ErrDependencyUnavailable, b.name+" call timed out", err)
		}
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// admit decides whether a call may proceed, claiming the probe slot when
// the recovery timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return ragerr.New(ragerr.ErrDependencyUnavailable, b.name+" circuit open", nil)
		}
		b.state = StateHalfOpen
		b.probing = true
		metrics.IncCircuitTransition(b.name, string(StateHalfOpen))
		logger.Infof("circuit %s half-open, admitting trial call", b.name)
		return nil
	case StateHalfOpen:
		if b.probing {
			return ragerr.New(ragerr.ErrDependencyUnavailable, b.name+" trial call in flight", nil)
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		metrics.IncCircuitTransition(b.name, string(StateClosed))
		logger.Infof("circuit %s closed after successful trial", b.name)
	}
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
		metrics.IncCircuitTransition(b.name, string(StateOpen))
		logger.Warnf("circuit %s reopened, trial call failed", b.name)
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		metrics.IncCircuitTransition(b.name, string(StateOpen))
		logger.Warnf("circuit %s opened after %d consecutive failures", b.name, b.failures)
	}
}
