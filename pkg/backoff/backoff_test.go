package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 1, attempts)
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	opErr := errors.New("transient failure")
	attempts := 0
	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		attempts++
		return 0, opErr
	})

	require.ErrorIs(t, err, opErr)
	require.Equal(t, 3, attempts)
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("transient failure")
		}
		return 7, nil
	})

	require.NoError(t, err)
	require.Equal(t, 7, result)
	require.Equal(t, 2, attempts)
}

func TestDoStopsWhenPredicateRejects(t *testing.T) {
	attempts := 0
	policy := fastPolicy(5).WithShouldRetry(func(err error) bool { return false })
	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("permanent failure")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts, "non-retryable failure must not be retried")
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := Policy{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	start := time.Now()
	_, err := Do(ctx, policy, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient failure")
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second, "cancelled sleep must not run to completion")
}

func TestDoInvokesOnRetryObserver(t *testing.T) {
	var observed []int
	policy := fastPolicy(3).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		observed = append(observed, attempt)
	})

	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient failure")
	})

	require.Error(t, err)
	require.Equal(t, []int{1, 2}, observed, "observer fires before each backoff sleep, not after the last attempt")
}

func TestBaseDelayGrowsExponentiallyAndCaps(t *testing.T) {
	policy := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	require.Equal(t, time.Second, policy.BaseDelay(1))
	require.Equal(t, 2*time.Second, policy.BaseDelay(2))
	require.Equal(t, 4*time.Second, policy.BaseDelay(3))
	require.Equal(t, 5*time.Second, policy.BaseDelay(4), "delay must cap at MaxDelay")
	require.Equal(t, 5*time.Second, policy.BaseDelay(10))
}

func TestJitterStaysWithinFraction(t *testing.T) {
	policy := Policy{JitterFraction: 0.25}
	base := time.Second

	for i := 0; i < 200; i++ {
		jittered := policy.Jitter(base)
		require.GreaterOrEqual(t, jittered, 750*time.Millisecond)
		require.LessOrEqual(t, jittered, 1250*time.Millisecond)
	}
}

func TestJitterDisabledWhenFractionZero(t *testing.T) {
	policy := Policy{}
	require.Equal(t, time.Second, policy.Jitter(time.Second))
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	require.Equal(t, 2, policy.MaxAttempts)
	require.Equal(t, time.Second, policy.InitialDelay)
	require.Equal(t, 30*time.Second, policy.MaxDelay)
	require.Equal(t, 2.0, policy.Multiplier)
	require.Equal(t, 0.25, policy.JitterFraction)
}
