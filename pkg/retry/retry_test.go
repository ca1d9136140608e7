package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsAtAttemptBudget(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}
	failure := errors.New("still broken")

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return failure
	})

	require.ErrorIs(t, err, failure)
	require.Equal(t, 3, calls)
}

func TestDoPermanentErrorStopsImmediately(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	fatal := errors.New("not retryable")

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return Permanent(fatal)
	})

	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	require.LessOrEqual(t, calls, 2)
}

func TestDoZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestPermanentNil(t *testing.T) {
	require.NoError(t, Permanent(nil))
}

func TestDefaultPolicy(t *testing.T) {
	policy := Default()
	require.Equal(t, 3, policy.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, policy.InitialDelay)
	require.Equal(t, 10*time.Second, policy.MaxDelay)
}
