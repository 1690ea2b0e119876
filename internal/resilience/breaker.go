// Package resilience guards outbound notifier calls.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// #region state

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// #endregion state

// #region breaker

// Breaker opens after a run of consecutive failures and rejects calls until
// the cooldown elapses. The first call after cooldown is a half-open trial.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	inTrial     bool
	now         func() time.Time
}

// NewBreaker returns a closed breaker. maxFailures < 1 is treated as 1.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Do runs fn unless the circuit is open. Errors returned by fn count as
// failures; a canceled caller context does not. While half-open only one
// call runs at a time and the others are rejected.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, ok := b.allow()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.inTrial = false
	}
	switch {
	case err == nil:
		b.failures = 0
		b.state = StateClosed
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// the caller gave up; say nothing about the downstream
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	return err
}

// State reports the current position, moving open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// allow reports whether a call may run and whether it is the half-open
// trial call.
func (b *Breaker) allow() (trial, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	switch b.state {
	case StateOpen:
		return false, false
	case StateHalfOpen:
		if b.inTrial {
			return false, false
		}
		b.inTrial = true
		return true, true
	}
	return false, true
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
	}
}

// #endregion breaker
