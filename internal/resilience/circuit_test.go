package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingCall(ctx context.Context) error { return errors.New("boom") }

func okCall(ctx context.Context) error { return nil }

func testBreaker(threshold int, resetTimeout time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold: threshold,
		ResetTimeout:     resetTimeout,
		HalfOpenProbes:   1,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, CircuitClosed, cb.State())
		_ = cb.Execute(ctx, failingCall)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, okCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitSuccessResetsFailureCount(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)
	require.NoError(t, cb.Execute(ctx, okCall))
	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenAfterResetTimeout(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A successful probe closes the circuit.
	require.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitReopensOnFailedProbe(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	*now = now.Add(2 * time.Minute)

	_ = cb.Execute(ctx, failingCall)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, okCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitRequiresMultipleProbes(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenProbes:   2,
	})
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	now = now.Add(2 * time.Minute)

	require.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitReset(t *testing.T) {
	cb, _ := testBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, okCall))
}

func TestCircuitOnStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenProbes:   1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(ctx, okCall)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestSourceBreakersPerSource(t *testing.T) {
	sb := NewSourceBreakers(CircuitConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	ibge := sb.Get("ibge")
	assert.Same(t, ibge, sb.Get("ibge"))

	_ = ibge.Execute(ctx, failingCall)

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["ibge"])

	// Another source is unaffected.
	assert.NoError(t, sb.Get("wikidata").Execute(ctx, okCall))
	assert.Equal(t, CircuitClosed, sb.States()["wikidata"])
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}
