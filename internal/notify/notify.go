// Package notify re-injects review prompts into a host session.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/resilience"
)

// ErrNotifierFailure wraps every error a notifier returns to the gate.
var ErrNotifierFailure = errors.New("notifier failure")

// #region notifier

// Notifier posts text as a new user turn in the given session.
type Notifier interface {
	Notify(ctx context.Context, sessionID, text string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, sessionID, text string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, sessionID, text string) error {
	return f(ctx, sessionID, text)
}

// Discard accepts every message and drops it.
var Discard Notifier = Func(func(context.Context, string, string) error { return nil })

// #endregion notifier

// #region decorators

// WithTimeout bounds each call to d and wraps failures in ErrNotifierFailure.
func WithTimeout(n Notifier, d time.Duration) Notifier {
	return Func(func(ctx context.Context, sessionID, text string) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() { done <- n.Notify(ctx, sessionID, text) }()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%w: %w", ErrNotifierFailure, err)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotifierFailure, ctx.Err())
		}
	})
}

// WithBreaker routes calls through b so a dead host is not retried on every
// stop.
func WithBreaker(n Notifier, b *resilience.Breaker) Notifier {
	return Func(func(ctx context.Context, sessionID, text string) error {
		return b.Do(ctx, func(ctx context.Context) error {
			return n.Notify(ctx, sessionID, text)
		})
	})
}

// #endregion decorators

// #region recorder

// Message is one captured notification.
type Message struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// Fail makes subsequent calls return err. Fail(nil) restores success.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Notify records the message, or returns the error set by Fail.
func (r *Recorder) Notify(_ context.Context, sessionID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, Message{SessionID: sessionID, Text: text})
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// For returns the messages recorded for one session.
func (r *Recorder) For(sessionID string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

// #endregion recorder
