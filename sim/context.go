package sim

import "github.com/sirupsen/logrus"

// Reporter is the append-only datapoint sink the kernel and everything
// built on top of it writes to (§6). Defined here, not in sim/report, so
// that sim has no dependency on the reporter's concrete implementation —
// sim/report.Sink satisfies this interface.
type Reporter interface {
	Record(series string, time float64, value any)
}

// discardReporter is the zero-value Reporter: it drops everything. Used
// when a Context is built without an explicit reporter (e.g. in unit
// tests that only care about return values).
type discardReporter struct{}

func (discardReporter) Record(string, float64, any) {}

// Context is the simulation-wide state explicitly threaded through every
// component: clock, event queue, deterministic RNG, datapoint sink. This
// replaces the teacher's ambient-statics-on-the-simulator-object pattern
// with an explicit value per spec.md §9's redesign note — no
// package-level globals anywhere in MiSim.
type Context struct {
	Clock   float64
	Horizon float64
	Queue   *EventQueue
	RNG     *PartitionedRNG
	Report  Reporter

	nextSeq uint64
}

// NewContext creates a Context ready to run. horizon <= 0 means unbounded
// (run until the queue empties).
func NewContext(horizon float64, seed int64, reporter Reporter) *Context {
	if reporter == nil {
		reporter = discardReporter{}
	}
	return &Context{
		Horizon: horizon,
		Queue:   NewEventQueue(),
		RNG:     NewPartitionedRNG(NewSimulationKey(seed)),
		Report:  reporter,
	}
}

// Now returns the current simulated clock value.
func (c *Context) Now() float64 { return c.Clock }

// NewBaseEvent validates `when` against the current clock (I1) and
// assigns the next monotonic sequence number (I2). Every concrete event
// constructor across sim, sim/cluster, sim/patterns and sim/experiment
// calls this to build its embedded BaseEvent, mirroring the teacher's
// per-simulator newEventID() counter (sim/cluster/simulator.go).
func (c *Context) NewBaseEvent(when float64) BaseEvent {
	if when < c.Clock {
		panic(&InvalidScheduleError{Now: c.Clock, When: when})
	}
	c.nextSeq++
	return BaseEvent{timestamp: when, seq: c.nextSeq}
}

// Schedule enqueues e, built with a BaseEvent from NewBaseEvent, into the
// event queue. schedule_after from spec.md §4.1 is just
// Schedule(ctor(ctx, ctx.Now()+delta, ...)) — every New*Event constructor
// takes an absolute timestamp, so no separate relative-schedule API is
// needed.
func (c *Context) Schedule(e Event) {
	c.Queue.Schedule(e)
}

// Cancel tombstones a previously scheduled event. Idempotent.
func (c *Context) Cancel(e Event) {
	c.Queue.Cancel(e)
}

// StopPredicate lets Run terminate early on a caller-supplied condition,
// evaluated after each event executes (§4.1 termination condition (c)).
type StopPredicate func(ctx *Context) bool

// Run drains the event queue in (time, seq) order until the queue empties,
// the horizon is reached, or stop returns true. Panics (programmer error)
// if called with an empty queue, no horizon, and a nil stop predicate —
// there is nothing that could ever advance the clock (DeadlockError).
func (c *Context) Run(stop StopPredicate) {
	if c.Queue.Len() == 0 && c.Horizon <= 0 && stop == nil {
		panic(&DeadlockError{})
	}
	for {
		e := c.Queue.PopNext()
		if e == nil {
			return
		}
		if c.Horizon > 0 && e.Timestamp() > c.Horizon {
			return
		}
		if e.Timestamp() < c.Clock {
			panic(&InvalidScheduleError{Now: c.Clock, When: e.Timestamp()})
		}
		c.Clock = e.Timestamp()
		logrus.Debugf("[tick %012.3f] executing %T", c.Clock, e)
		e.Execute(c)
		if stop != nil && stop(c) {
			return
		}
	}
}
