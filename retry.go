package audiomoth

import (
	"context"
	"math/rand"
	"time"
)

// retryBase is the base interval jittered retries are built from.
const retryBase = 100 * time.Millisecond

// maxHIDAttempts is the number of attempts the HID attempt loop makes
// before giving up with DeviceUnreachableError.
const maxHIDAttempts = 10

// withRetries runs fn up to maxHIDAttempts times, sleeping a jittered
// interval between attempts. It returns the first successful result, or a
// DeviceUnreachableError naming op once attempts are exhausted; the last
// attempt's error is logged, not wrapped into the returned error.
func withRetries(ctx context.Context, op string, fn func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxHIDAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitteredDelay()); err != nil {
				return nil, err
			}
		}
		resp, err := fn()
		if err == nil && resp != nil {
			return resp, nil
		}
		lastErr = err
	}
	pkgLog.Debugf("%s: exhausted %d attempts, last error: %v", op, maxHIDAttempts, lastErr)
	return nil, &DeviceUnreachableError{Op: op}
}

// jitteredDelay returns a sleep duration of retryBase/2 + retryBase/2*rand().
func jitteredDelay() time.Duration {
	return retryBase/2 + time.Duration(rand.Int63n(int64(retryBase/2)+1))
}

// backoff returns base*2^attempt, used for the exponential-backoff retry
// disciplines of the XMODEM flasher (port-open, ready-handshake, user-data
// clear polling).
func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(uint(1)<<uint(attempt))
}
