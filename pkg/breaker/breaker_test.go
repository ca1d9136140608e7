package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold uint32, recovery time.Duration) *Breaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		Logger:           zerolog.Nop(),
	})
}

func failing() (interface{}, error) {
	return nil, errors.New("backend failure")
}

func succeeding() (interface{}, error) {
	return "ok", nil
}

func TestBreakerStartsClosed(t *testing.T) {
	b := newTestBreaker(3, time.Minute)
	require.Equal(t, StateClosed, b.State())

	value, err := b.Execute(succeeding)
	require.NoError(t, err)
	require.Equal(t, "ok", value)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrOpen)
	}

	require.Equal(t, StateOpen, b.State())
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b := newTestBreaker(2, time.Minute)
	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	require.Equal(t, StateOpen, b.State())

	invoked := false
	_, err := b.Execute(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})

	require.ErrorIs(t, err, ErrOpen)
	require.False(t, invoked, "open breaker must not invoke the backend")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(3, time.Minute)

	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	_, err := b.Execute(succeeding)
	require.NoError(t, err)

	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	require.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenTrialSuccessCloses(t *testing.T) {
	b := newTestBreaker(2, 20*time.Millisecond)
	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	_, err := b.Execute(succeeding)
	require.NoError(t, err)
	require.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	b := newTestBreaker(2, 20*time.Millisecond)
	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)

	time.Sleep(30 * time.Millisecond)

	_, err := b.Execute(failing)
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "half_open", StateHalfOpen.String())
	require.Equal(t, "open", StateOpen.String())
}
