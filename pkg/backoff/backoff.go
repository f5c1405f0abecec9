// Package backoff runs operations under a bounded retry policy with
// exponential backoff and symmetric jitter. Retry/no-retry decisions are
// delegated to the policy's predicate, so callers decide which failures are
// transient (typically via the storage error classifier).
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes how an operation is retried. A Policy is immutable per
// call-site; the zero value is not usable, start from DefaultPolicy().
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay before jitter is applied.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64
	// JitterFraction applies symmetric jitter: delay * (1 ± JitterFraction).
	JitterFraction float64
	// ShouldRetry decides whether a failure is worth another attempt.
	// A nil predicate retries every failure.
	ShouldRetry func(err error) bool
	// OnRetry, if set, is invoked before each backoff sleep with the attempt
	// number that just failed, its error, and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy shared by persistence call-sites:
// 2 attempts, 1s initial delay, 30s cap, multiplier 2, ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// WithShouldRetry returns a copy of the policy using the given predicate.
func (p Policy) WithShouldRetry(pred func(err error) bool) Policy {
	p.ShouldRetry = pred
	return p
}

// WithOnRetry returns a copy of the policy using the given observer.
func (p Policy) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

// BaseDelay returns the pre-jitter delay applied after the given failed
// attempt (1-based): min(InitialDelay * Multiplier^(attempt-1), MaxDelay).
func (p Policy) BaseDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Jitter applies symmetric jitter to a delay, clamped at zero.
func (p Policy) Jitter(delay time.Duration) time.Duration {
	if p.JitterFraction <= 0 {
		return delay
	}
	// rand in [-1, 1) scaled by the jitter fraction.
	factor := 1 + p.JitterFraction*(2*rand.Float64()-1)
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// Do runs op under the policy. It returns op's result on the first success.
// On failure it rethrows immediately when the attempt was the last one or the
// predicate rejects the error; otherwise it sleeps for the jittered backoff
// delay and retries. The sleep is cooperative and honors ctx cancellation.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			break
		}

		delay := p.Jitter(p.BaseDelay(attempt))
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
