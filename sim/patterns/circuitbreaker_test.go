package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misim/misim/sim"
)

func TestCircuitBreaker_TripsOpenOnceWindowFailureFractionMet(t *testing.T) {
	// GIVEN a breaker with a window of 4 and a 50% failure threshold
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(4, 0.5, 100)
	require.Equal(t, StateClosed, cb.State())

	// WHEN 2 of the first 4 outcomes fail (exactly at threshold)
	cb.RecordOutcome(ctx, true)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, true)
	cb.RecordOutcome(ctx, false)

	// THEN the breaker trips OPEN
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StaysClosedBelowWindowSize(t *testing.T) {
	// GIVEN a breaker with a window of 4
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(4, 0.5, 100)

	// WHEN only 2 outcomes (both failures) have been recorded, short of the
	// full window
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)

	// THEN it has not yet tripped, since the window isn't full
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Allow_RefusesWhileOpen(t *testing.T) {
	// GIVEN an OPEN breaker
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 100)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	require.Equal(t, StateOpen, cb.State())

	// WHEN Allow is called
	ok, reason := cb.Allow()

	// THEN it refuses with ReasonCircuitIsOpen
	assert.False(t, ok)
	assert.Equal(t, sim.ReasonCircuitIsOpen, reason)
}

func TestCircuitBreaker_HalfOpen_AdmitsExactlyOneProbe(t *testing.T) {
	// GIVEN a HALF_OPEN breaker
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 100)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	cb.AttemptHalfOpen()
	require.Equal(t, StateHalfOpen, cb.State())

	// WHEN Allow is called twice before the probe resolves
	firstOK, _ := cb.Allow()
	secondOK, secondReason := cb.Allow()

	// THEN only the first is admitted
	assert.True(t, firstOK)
	assert.False(t, secondOK)
	assert.Equal(t, sim.ReasonCircuitIsOpen, secondReason)
}

func TestCircuitBreaker_HalfOpenProbeSucceeds_ClosesAndResetsWindow(t *testing.T) {
	// GIVEN a HALF_OPEN breaker with an admitted probe
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 100)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	cb.AttemptHalfOpen()
	cb.Allow()

	// WHEN the probe succeeds
	cb.RecordOutcome(ctx, true)

	// THEN the breaker closes, and old failures don't count toward a new
	// trip
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordOutcome(ctx, false)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFails_Reopens(t *testing.T) {
	// GIVEN a HALF_OPEN breaker with an admitted probe
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 100)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	cb.AttemptHalfOpen()
	cb.Allow()

	// WHEN the probe fails
	cb.RecordOutcome(ctx, false)

	// THEN it re-opens
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_TripSchedulesAutomaticRecoveryToHalfOpen(t *testing.T) {
	// GIVEN a breaker configured with a 10-tick reset timeout
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 10)

	// WHEN it trips OPEN
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	require.Equal(t, StateOpen, cb.State())

	// THEN running the simulation past the reset timeout transitions it to
	// HALF_OPEN without any external caller invoking AttemptHalfOpen
	// itself (the dormant-forever bug this guards against)
	ctx.Run(func(c *sim.Context) bool { return c.Now() >= 10 })
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SupersededTripCancelsStaleRecoveryTimer(t *testing.T) {
	// GIVEN a breaker that tripped at clock 0, recovered to HALF_OPEN, and
	// tripped again at clock 1 with the same 5-tick reset timeout
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 5)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)
	require.Equal(t, StateOpen, cb.State())

	// WHEN the breaker is manually forced half-open and fails its probe
	// before the original timer would have fired, re-arming a fresh timer
	cb.AttemptHalfOpen()
	cb.Allow()
	cb.ResetTimeout = 5
	ctx.Clock = 1
	cb.RecordOutcome(ctx, false)
	require.Equal(t, StateOpen, cb.State())

	// THEN only the latest trip's timer fires (at clock 1+5=6); the
	// original trip's now-stale timer (due at 5) does nothing since its
	// generation no longer matches
	ctx.Run(func(c *sim.Context) bool { return c.Now() >= 5 })
	assert.Equal(t, StateOpen, cb.State())
	ctx.Run(func(c *sim.Context) bool { return c.Now() >= 6 })
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_OnRequestFailed_TreatsCircuitOpenAsHandled(t *testing.T) {
	// GIVEN an OPEN breaker
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(2, 0.5, 100)
	cb.RecordOutcome(ctx, false)
	cb.RecordOutcome(ctx, false)

	// WHEN OnRequestFailed observes a CircuitIsOpen failure (i.e. the
	// breaker refused the send itself)
	handled := cb.OnRequestFailed(ctx, nil, sim.ReasonCircuitIsOpen)

	// THEN it reports handled so nothing downstream (e.g. Retry) acts on
	// an already-terminal reason again
	assert.True(t, handled)
}

func TestCircuitBreaker_OnRequestFailed_PassesThroughOrdinaryFailures(t *testing.T) {
	// GIVEN a CLOSED breaker
	ctx := sim.NewContext(0, 1, nil)
	cb := NewCircuitBreaker(4, 0.5, 100)

	// WHEN a timeout is observed
	handled := cb.OnRequestFailed(ctx, nil, sim.ReasonTimeout)

	// THEN it is not treated as handled, letting Retry see it too
	assert.False(t, handled)
}
