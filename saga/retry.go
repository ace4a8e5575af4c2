package saga

import (
	"errors"
	"fmt"
)

// DefaultMaxAttempts bounds RetryOnConflict. Optimistic-concurrency races
// between two near-simultaneous writers resolve within microseconds, so
// the retry is tight and in-process rather than relying on transport
// redelivery.
const DefaultMaxAttempts = 100

// ErrRetryExhausted is returned when an operation still conflicts after
// the maximum number of attempts. At that point the race is no longer
// considered benign and the failure must surface.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryOnConflict runs op, retrying immediately while it fails with
// ErrVersionConflict, up to maxAttempts times. Any other error is
// returned as is on the first occurrence.
func RetryOnConflict(maxAttempts int, l Logger, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if l == nil {
		l = &NopLogger{}
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		l.Warn(fmt.Sprintf("optimistic concurrency conflict on attempt %d of %d, retrying", attempt, maxAttempts))
	}
	return fmt.Errorf("operation still conflicting after %d attempts: %w", maxAttempts, ErrRetryExhausted)
}
