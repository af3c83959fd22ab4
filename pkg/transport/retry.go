package transport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Retry defaults.
const (
	DefaultRetryInitial    = 250 * time.Millisecond
	DefaultRetryMax        = 10 * time.Second
	DefaultRetryMultiplier = 2.0
	DefaultRetryJitter     = 0.25
)

// Backoff yields exponentially growing delays with up to Jitter of
// random extra delay. It is not safe for concurrent use.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	current time.Duration
}

func (b *Backoff) defaults() {
	if b.Initial <= 0 {
		b.Initial = DefaultRetryInitial
	}
	if b.Max <= 0 {
		b.Max = DefaultRetryMax
	}
	if b.Multiplier <= 1 {
		b.Multiplier = DefaultRetryMultiplier
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
}

// Next returns the next delay and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.defaults()
	if b.current == 0 {
		b.current = b.Initial
	}

	d := b.current
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * rand.Float64())
	}

	b.current = min(time.Duration(float64(b.current)*b.Multiplier), b.Max)
	return d
}

// Reset restarts the sequence at Initial.
func (b *Backoff) Reset() {
	b.current = 0
}

// RetryDialer retries a failed Dial up to Attempts times in total,
// waiting between attempts according to Backoff.
type RetryDialer struct {
	Dialer   Dialer
	Attempts int
	Backoff  Backoff

	// OnRetry, if set, is called before each wait.
	OnRetry func(endpoint string, attempt int, delay time.Duration, err error)
}

// Dial implements Dialer.
func (r *RetryDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	attempts := max(r.Attempts, 1)
	b := r.Backoff
	b.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		ch, err := r.Dialer.Dial(ctx, endpoint)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if attempt >= attempts || ctx.Err() != nil {
			break
		}

		delay := b.Next()
		if r.OnRetry != nil {
			r.OnRetry(endpoint, attempt, delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("dial %s: %w (last error: %v)", endpoint, ctx.Err(), lastErr)
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("dial %s: giving up after %d attempts: %w", endpoint, attempts, lastErr)
}

var _ Dialer = (*RetryDialer)(nil)
