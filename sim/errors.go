package sim

import "errors"

// RequestFailedReason is the user-visible failure kind of a request, as
// delivered through the listener chain (§7 of the design spec). These are
// not Go errors: they travel as ordinary values through onRequestFailed
// callbacks so that resilience patterns can inspect and react to them.
type RequestFailedReason string

const (
	ReasonTimeout              RequestFailedReason = "Timeout"
	ReasonConnectionReset      RequestFailedReason = "ConnectionReset"
	ReasonCircuitIsOpen        RequestFailedReason = "CircuitIsOpen"
	ReasonRequestVolumeReached RequestFailedReason = "RequestVolumeReached"
	ReasonMaxRetriesReached    RequestFailedReason = "MaxRetriesReached"
	ReasonDependencyNotAvail   RequestFailedReason = "DependencyNotAvailable"
	ReasonHandlerUnavailable   RequestFailedReason = "HandlerUnavailable"
	ReasonNoInstance           RequestFailedReason = "NoInstance"
)

// Terminal reports whether a reason is terminal for retry purposes: a
// pattern must not schedule another attempt once a terminal reason has
// been delivered.
func (r RequestFailedReason) Terminal() bool {
	switch r {
	case ReasonCircuitIsOpen, ReasonRequestVolumeReached, ReasonMaxRetriesReached:
		return true
	default:
		return false
	}
}

// ErrStaleAnswer is the error an instance logs (at Warn; it is neither
// returned nor panicked on) when a RequestAnswer arrives after its
// ServiceDependencyInstance has already been resolved or canceled. See DESIGN.md's Open Question decision: this
// is tolerated, not an invariant violation.
var ErrStaleAnswer = errors.New("stale answer: dependency no longer open")

// ErrCannotHandle names an instance's refusal of a request because of its
// lifecycle state (§4.5 step 1). No code path returns it: the refusing
// instance delivers a ReasonHandlerUnavailable failure to the sender
// directly.
var ErrCannotHandle = errors.New("instance cannot handle request in its current state")

// ErrNoAvailableInstance is returned by a LoadBalancer that cannot route
// a request because no instance of the target service is RUNNING.
var ErrNoAvailableInstance = errors.New("no RUNNING instance available")

// InvalidScheduleError is a programmer error: scheduling an event at a
// time strictly before the current clock. It is always raised as a panic
// (by Context.NewBaseEvent, and by Context.Run if a queued event is
// already in the past), never returned — violating I1 aborts the run.
type InvalidScheduleError struct {
	Now  float64
	When float64
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: event time before current clock"
}

// IllegalInstanceTransitionError is a programmer error: an instance
// lifecycle transition attempted from a disallowed state.
type IllegalInstanceTransitionError struct {
	From, To string
}

func (e *IllegalInstanceTransitionError) Error() string {
	return "illegal instance transition from " + e.From + " to " + e.To
}

// DeadlockError is raised (as a panic) when Run is called with an empty
// event queue and no stop time/predicate — there is nothing to advance
// the clock.
type DeadlockError struct{}

func (e *DeadlockError) Error() string {
	return "deadlock: empty event queue with no stop condition"
}
