// Package retry bounds and paces rate-limited AI provider calls. The
// controller is an explicit state machine over {attempting, waiting,
// succeeded, exhausted}: the attempt ceiling is an invariant of the machine,
// not a loop guard, and every wait is a suspension on a timer or context,
// never a blocking sleep that could stall other synchronizations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxAttempts is the total number of calls a single operation may issue,
// including the first one.
const MaxAttempts = 10

// ErrExhausted is returned when every attempt was rate limited.
var ErrExhausted = errors.New("maximum retry attempts reached")

// RateLimited is the only error surface the controller retries on. The
// provider transport returns errors implementing it for HTTP 429 replies.
type RateLimited interface {
	error
	// RetryAfterSeconds returns the server-supplied hint, 0 when absent.
	RetryAfterSeconds() float64
}

// StatusSink receives node status changes around backoff waits so the
// editor can render a "waiting" indicator. The sync tracker implements it.
type StatusSink interface {
	MarkWaiting(nodeID string, attempt int, wait time.Duration)
	MarkSyncing(nodeID string)
}

// NoopSink discards status changes. Used for operations without an
// associated node, such as whole-flow generation.
type NoopSink struct{}

func (NoopSink) MarkWaiting(string, int, time.Duration) {}

func (NoopSink) MarkSyncing(string) {}

type state int

const (
	stateAttempting state = iota
	stateWaiting
	stateSucceeded
	stateExhausted
)

// Controller drives rate-limited calls through the retry state machine.
type Controller struct {
	max   int
	sink  StatusSink
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the wait implementation. Tests use it to make backoff
// instantaneous.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// NewController creates a controller reporting waits to the given sink.
// A nil sink disables status reporting.
func NewController(sink StatusSink, opts ...Option) *Controller {
	if sink == nil {
		sink = NoopSink{}
	}

	c := &Controller{
		max:   MaxAttempts,
		sink:  sink,
		sleep: sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WaitFor converts a server retry-after hint into the wait duration:
// hint seconds plus one second of slack; a missing hint (0) waits the slack
// second alone.
func WaitFor(hintSeconds float64) time.Duration {
	return time.Duration(int64(hintSeconds*1000)+1000) * time.Millisecond
}

// Do runs call until it succeeds, fails with a non-rate-limit error, the
// context is cancelled, or the attempt ceiling is reached. nodeID associates
// waits with a node's status indicator; pass "" for node-less operations.
func Do[T any](ctx context.Context, c *Controller, nodeID string, call func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		result  T
		callErr error
		limited RateLimited
		wait    time.Duration
	)

	current := stateAttempting
	attempt := 0

	for {
		switch current {
		case stateAttempting:
			attempt++
			result, callErr = call(ctx)

			switch {
			case callErr == nil:
				current = stateSucceeded
			case !errors.As(callErr, &limited):
				// Non-rate-limit failures propagate immediately, untouched.
				return zero, callErr
			case attempt >= c.max:
				current = stateExhausted
			default:
				wait = WaitFor(limited.RetryAfterSeconds())
				current = stateWaiting
			}

		case stateWaiting:
			if nodeID != "" {
				c.sink.MarkWaiting(nodeID, attempt, wait)
			}

			if err := c.sleep(ctx, wait); err != nil {
				return zero, err
			}

			if nodeID != "" {
				c.sink.MarkSyncing(nodeID)
			}

			current = stateAttempting

		case stateSucceeded:
			return result, nil

		case stateExhausted:
			return zero, fmt.Errorf("%w (%d attempts): %w", ErrExhausted, attempt, callErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
