package experiment

import "github.com/misim/misim/sim"

// ServiceView is the minimal surface a fault injector needs from a
// cluster.Microservice, kept as an interface so sim/experiment never
// imports sim/cluster — mirroring sim/patterns' InstanceView pattern for
// the same layering reason (§2 module dependency order).
type ServiceView interface {
	ScaleToInstancesCount(ctx *sim.Context, target int)
	StartInstances(ctx *sim.Context, n int)
	KillInstances(ctx *sim.Context, n int)
	RunningCount() int
}

// KillEvent is a single-shot fault that kills n RUNNING instances of a
// service at a scheduled time (§4.8, §6 "KILL [service] [n] @time").
type KillEvent struct {
	sim.BaseEvent
	Service ServiceView
	N       int
}

// NewKillEvent schedules a kill fault at the given absolute time.
func NewKillEvent(ctx *sim.Context, at float64, service ServiceView, n int) *KillEvent {
	ev := &KillEvent{BaseEvent: ctx.NewBaseEvent(at), Service: service, N: n}
	ctx.Schedule(ev)
	return ev
}

// Execute implements sim.Event.
func (e *KillEvent) Execute(ctx *sim.Context) {
	e.Service.KillInstances(ctx, e.N)
}

// StartEvent is a single-shot fault that starts n fresh instances of a
// service at a scheduled time (§6 "START [service] [n] @time").
type StartEvent struct {
	sim.BaseEvent
	Service ServiceView
	N       int
}

// NewStartEvent schedules a start fault at the given absolute time.
func NewStartEvent(ctx *sim.Context, at float64, service ServiceView, n int) *StartEvent {
	ev := &StartEvent{BaseEvent: ctx.NewBaseEvent(at), Service: service, N: n}
	ctx.Schedule(ev)
	return ev
}

// Execute implements sim.Event.
func (e *StartEvent) Execute(ctx *sim.Context) {
	e.Service.StartInstances(ctx, e.N)
}

// RestartEvent kills n RUNNING instances and immediately starts n fresh
// ones in their place (§6 "RESTART [service] [n] @time").
type RestartEvent struct {
	sim.BaseEvent
	Service ServiceView
	N       int
}

// NewRestartEvent schedules a restart fault at the given absolute time.
func NewRestartEvent(ctx *sim.Context, at float64, service ServiceView, n int) *RestartEvent {
	ev := &RestartEvent{BaseEvent: ctx.NewBaseEvent(at), Service: service, N: n}
	ctx.Schedule(ev)
	return ev
}

// Execute implements sim.Event.
func (e *RestartEvent) Execute(ctx *sim.Context) {
	e.Service.KillInstances(ctx, e.N)
	e.Service.StartInstances(ctx, e.N)
}

// DelayInjection adds baseline±stddev extra latency inbound to a service
// for Duration ticks, then reverts it (§4.8, §6 "DELAY baseline[+-stddev]
// ~duration @time"). No direct teacher analog (inference-sim has no
// chaos layer); built on the Network.ExtraLatency hook since there's no
// concept of "every link touching a service" without one.
type DelayInjection struct {
	sim.BaseEvent
	Net      *sim.Network
	Target   string
	Baseline float64
	StdDev   float64
	Duration float64
}

// NewDelayInjection schedules a delay fault at the given absolute time.
func NewDelayInjection(ctx *sim.Context, at float64, net *sim.Network, target string, baseline, stddev, duration float64) *DelayInjection {
	ev := &DelayInjection{BaseEvent: ctx.NewBaseEvent(at), Net: net, Target: target, Baseline: baseline, StdDev: stddev, Duration: duration}
	ctx.Schedule(ev)
	return ev
}

// Execute implements sim.Event: samples the jitter once (from the
// deterministic fault RNG stream, §5), applies it, and schedules the
// matching revert.
func (e *DelayInjection) Execute(ctx *sim.Context) {
	rng := ctx.RNG.ForSubsystem(sim.SubsystemFault)
	extra := e.Baseline
	if e.StdDev > 0 {
		extra += rng.NormFloat64() * e.StdDev
	}
	if extra < 0 {
		extra = 0
	}
	e.Net.SetExtraLatency(e.Target, e.Net.ExtraLatency[e.Target]+extra)

	revert := &delayRevertEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + e.Duration), net: e.Net, target: e.Target, amount: extra}
	ctx.Schedule(revert)
}

type delayRevertEvent struct {
	sim.BaseEvent
	net    *sim.Network
	target string
	amount float64
}

func (e *delayRevertEvent) Execute(ctx *sim.Context) {
	e.net.SetExtraLatency(e.target, e.net.ExtraLatency[e.target]-e.amount)
}
