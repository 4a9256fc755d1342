// Package retry runs remote calls with a fixed attempt count and a fixed delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures bounded retries.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the constant wait between attempts.
	Backoff time.Duration
	// AttemptTimeout bounds a single attempt. Zero leaves the caller's deadline in charge.
	AttemptTimeout time.Duration
}

// DefaultPolicy matches the limits used for both upstream services.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		Backoff:        time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Notify is invoked after a failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, or the attempts run out.
// It returns the number of attempts made and the last error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error, notify Notify) (int, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(policy.Backoff)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	made := 0
	operation := func() error {
		made++
		attemptCtx := ctx
		if policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
			defer cancel()
		}
		return op(attemptCtx)
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(made, err, wait)
		}
	})
	return made, err
}

// IsContextError reports whether err comes from the caller cancelling the work.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ExhaustedError records how many attempts were spent before giving up.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Attempts extracts the attempt count carried by an ExhaustedError in err's chain.
func Attempts(err error) int {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 0
}
