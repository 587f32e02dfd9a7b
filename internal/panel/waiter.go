package panel

import (
	"context"
	"fmt"
	"log"
	"time"
)

// TimeoutError reports that a server did not reach the target power state
// before the deadline.
type TimeoutError struct {
	Target  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for state %q after %s", e.Target, e.Elapsed)
}

// StatusQuerier is the subset of Controller the waiter needs.
type StatusQuerier interface {
	CurrentState(ctx context.Context) (string, error)
}

// Waiter blocks until a server reaches a target power state.
type Waiter interface {
	WaitFor(ctx context.Context, target string, timeout time.Duration) error
}

// StateWaiter implements Waiter by polling the panel at a fixed interval.
// Power transitions on the panel are asynchronous and the coarse state is
// the only observable signal, so polling with a deadline is all there is.
type StateWaiter struct {
	querier  StatusQuerier
	interval time.Duration
}

func NewStateWaiter(querier StatusQuerier, interval time.Duration) *StateWaiter {
	return &StateWaiter{querier: querier, interval: interval}
}

// WaitFor polls until the server reports target, the timeout passes, or a
// poll fails. A poll error aborts the wait immediately — the waiter cannot
// tell "unreachable" from "not there yet", and guessing would hide real
// outages behind a timeout.
func (w *StateWaiter) WaitFor(ctx context.Context, target string, timeout time.Duration) error {
	start := time.Now()

	for time.Since(start) < timeout {
		current, err := w.querier.CurrentState(ctx)
		if err != nil {
			return fmt.Errorf("querying state while waiting for %q: %w", target, err)
		}
		if current == target {
			return nil
		}
		log.Printf("Waiting for state %q, current: %q", target, current)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}

	return &TimeoutError{Target: target, Elapsed: time.Since(start)}
}
