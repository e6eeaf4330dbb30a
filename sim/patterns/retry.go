package patterns

import (
	"math"

	"github.com/misim/misim/sim"
)

// FailureListener is the §4.6 onRequestFailed hook: a pattern returns
// handled=true to short-circuit further propagation of the failure, or
// false to pass it through (e.g. to the parent request's cancellation
// path).
type FailureListener interface {
	OnRequestFailed(ctx *sim.Context, dep *sim.ServiceDependencyInstance, reason sim.RequestFailedReason) (handled bool)
}

// Retry implements exponential-backoff, capped retry (§4.6). On a
// non-terminal failure it schedules another attempt via redispatch at
// now + base*2^attempt + jitter, as long as the dependency has made fewer
// than MaxAttempts attempts. Once they are exhausted it returns false and
// schedules nothing; it does not itself deliver a ReasonMaxRetriesReached
// failure (the owning instance then fails the parent request with
// ReasonDependencyNotAvailable). Terminal reasons, MaxRetriesReached
// among them, are never retried.
type Retry struct {
	Base        int64 // simulation ticks, the unit sim.Context's clock advances in
	MaxAttempts int
	JitterMax   int64

	// Redispatch creates and sends the next attempt's InternalRequest. It
	// is supplied by the owning instance so Retry never needs to know
	// about cluster.Instance or cluster.Microservice.
	Redispatch func(ctx *sim.Context, dep *sim.ServiceDependencyInstance)
}

// NewRetry creates a Retry policy. base and jitterMax are in simulation
// ticks (the unit sim.Context's clock advances in).
func NewRetry(base int64, maxAttempts int, jitterMax int64, redispatch func(ctx *sim.Context, dep *sim.ServiceDependencyInstance)) *Retry {
	return &Retry{
		Base:        base,
		MaxAttempts: maxAttempts,
		JitterMax:   jitterMax,
		Redispatch:  redispatch,
	}
}

// OnRequestFailed implements FailureListener.
func (r *Retry) OnRequestFailed(ctx *sim.Context, dep *sim.ServiceDependencyInstance, reason sim.RequestFailedReason) bool {
	if reason.Terminal() {
		return false
	}
	if dep.Attempt >= r.MaxAttempts {
		// Exhausted: no further attempt is scheduled and the failure
		// passes through unchanged.
		return false
	}
	delay := r.backoffDelay(ctx, dep.Attempt)
	schedule(ctx, float64(delay), func(ctx *sim.Context) {
		// The dependency may have been satisfied by the time this timer
		// fires (shouldn't happen given I8, but defend against it
		// anyway), or its parent may have since been canceled entirely.
		if dep.Satisfied || dep.Parent.Canceled {
			return
		}
		if r.Redispatch != nil {
			r.Redispatch(ctx, dep)
		}
	})
	return true
}

// backoffDelay computes base*2^attempt + uniform jitter in [0, JitterMax],
// drawn from the deterministic "retry_jitter" RNG stream.
func (r *Retry) backoffDelay(ctx *sim.Context, attempt int) int64 {
	factor := math.Pow(2, float64(attempt))
	delay := int64(float64(r.Base) * factor)
	if r.JitterMax > 0 {
		rng := ctx.RNG.ForSubsystem(sim.SubsystemRetryJitter)
		delay += rng.Int63n(r.JitterMax + 1)
	}
	return delay
}

// retryTimerEvent is a minimal scheduled closure used to delay the next
// retry attempt without Retry needing its own concrete Event type wired
// into sim/cluster.
type retryTimerEvent struct {
	sim.BaseEvent
	fn func(ctx *sim.Context)
}

func (e *retryTimerEvent) Execute(ctx *sim.Context) { e.fn(ctx) }

func schedule(ctx *sim.Context, delay float64, fn func(ctx *sim.Context)) {
	if delay < 0 {
		delay = 0
	}
	ev := &retryTimerEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + delay), fn: fn}
	ctx.Schedule(ev)
}
