package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBreakerMonotonicity is Testable Property 5 / scenario S7.
func TestBreakerMonotonicity(t *testing.T) {
	b := New(Config{Threshold: 2, Timeout: 50 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Allow(), "cooldown elapsed, half-open probe should be let through")
	assert.Equal(t, HalfOpen, b.State())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := New(Config{Threshold: 1, Timeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	// A second concurrent caller must not also be let through as a probe.
	err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := New(Config{Threshold: 1, Timeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.RecordFailure()

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{Threshold: 1, Timeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.RecordFailure()

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, Open, b.State())
}
