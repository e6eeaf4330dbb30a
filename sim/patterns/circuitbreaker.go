package patterns

import "github.com/misim/misim/sim"

// CircuitBreakerState is one of the three states a CircuitBreaker cycles
// through (§4.6).
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "CLOSED"
	StateOpen     CircuitBreakerState = "OPEN"
	StateHalfOpen CircuitBreakerState = "HALF_OPEN"
)

// CircuitBreaker tracks a per-target failure rate over a sliding window
// of the last WindowSize outcomes. In OPEN, new outgoing requests to that
// target fail immediately with ReasonCircuitIsOpen without network
// traversal; in HALF_OPEN a single probe is admitted, success closes,
// failure re-opens (§4.6).
type CircuitBreaker struct {
	WindowSize       int
	FailureThreshold float64 // fraction of the window that must fail to trip, e.g. 0.5
	ResetTimeout     float64 // ticks an OPEN breaker waits before admitting a HALF_OPEN probe

	state         CircuitBreakerState
	outcomes      []bool // true = success, ring buffer of the last WindowSize outcomes
	probeInFlight bool
	generation    int // invalidates a pending reset timer scheduled by a since-superseded trip
}

// NewCircuitBreaker creates a CLOSED CircuitBreaker with the given window,
// trip threshold, and OPEN->HALF_OPEN reset timeout.
func NewCircuitBreaker(windowSize int, failureThreshold, resetTimeout float64) *CircuitBreaker {
	return &CircuitBreaker{
		WindowSize:       windowSize,
		FailureThreshold: failureThreshold,
		ResetTimeout:     resetTimeout,
		state:            StateClosed,
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitBreakerState { return cb.state }

// Allow is the pre-send gate: it reports whether a new dependency request
// may be dispatched at all. In OPEN it refuses (reason CircuitIsOpen,
// zero network latency incurred). In HALF_OPEN it admits exactly one
// probe and refuses any further concurrent attempt until that probe
// resolves.
func (cb *CircuitBreaker) Allow() (ok bool, reason sim.RequestFailedReason) {
	switch cb.state {
	case StateOpen:
		return false, sim.ReasonCircuitIsOpen
	case StateHalfOpen:
		if cb.probeInFlight {
			return false, sim.ReasonCircuitIsOpen
		}
		cb.probeInFlight = true
		return true, ""
	default:
		return true, ""
	}
}

// RecordOutcome updates the sliding window and transitions state: a
// HALF_OPEN probe that succeeds closes the breaker; one that fails
// re-opens it. In CLOSED, the breaker trips to OPEN once the window is
// full and the failure fraction meets FailureThreshold. Any transition
// into OPEN arms the ResetTimeout timer that eventually calls
// AttemptHalfOpen.
func (cb *CircuitBreaker) RecordOutcome(ctx *sim.Context, success bool) {
	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
		if success {
			cb.state = StateClosed
			cb.outcomes = cb.outcomes[:0]
		} else {
			cb.trip(ctx)
		}
		return
	}

	cb.outcomes = append(cb.outcomes, success)
	if len(cb.outcomes) > cb.WindowSize {
		cb.outcomes = cb.outcomes[len(cb.outcomes)-cb.WindowSize:]
	}
	if cb.state == StateClosed && len(cb.outcomes) >= cb.WindowSize && cb.failureFraction() >= cb.FailureThreshold {
		cb.trip(ctx)
	}
}

// trip transitions the breaker to OPEN and schedules the reset timer that
// eventually admits a HALF_OPEN probe.
func (cb *CircuitBreaker) trip(ctx *sim.Context) {
	cb.state = StateOpen
	cb.outcomes = cb.outcomes[:0]
	cb.generation++
	gen := cb.generation
	schedule(ctx, cb.ResetTimeout, func(ctx *sim.Context) {
		if cb.generation != gen {
			return
		}
		cb.AttemptHalfOpen()
	})
}

func (cb *CircuitBreaker) failureFraction() float64 {
	if len(cb.outcomes) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range cb.outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.outcomes))
}

// AttemptHalfOpen transitions an OPEN breaker to HALF_OPEN so the next
// Allow() call admits a probe. trip schedules a call to this after
// ResetTimeout ticks; exported so a test can force the transition without
// waiting out the timer.
func (cb *CircuitBreaker) AttemptHalfOpen() {
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.probeInFlight = false
	}
}

// OnRequestFailed implements FailureListener so CircuitBreaker can sit
// outermost in the onRequestFailed chain (§4.6 composition:
// CircuitBreaker outside Retry). It only ever records the outcome; it
// never itself schedules a retry, and it never claims to have "handled"
// a failure that a Retry might still want to see, except for reasons
// that are already terminal by definition (CircuitIsOpen,
// RequestVolumeReached), which nothing downstream should act on again.
func (cb *CircuitBreaker) OnRequestFailed(ctx *sim.Context, _ *sim.ServiceDependencyInstance, reason sim.RequestFailedReason) bool {
	cb.RecordOutcome(ctx, false)
	return reason == sim.ReasonCircuitIsOpen || reason == sim.ReasonRequestVolumeReached
}
