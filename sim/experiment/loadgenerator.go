package experiment

import (
	"fmt"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/report"
)

// ProfilePoint is one (time, rate) sample of a Limbo-style load profile
// (§4.8). Reading the profile file itself is out of core scope (§1); the
// core only ever consumes the already-parsed point list.
type ProfilePoint struct {
	Time float64
	Rate float64
}

// LoadProfile is the in-memory model an out-of-scope Limbo file reader
// hands the core: a sequence of (time, rate) samples, optionally
// repeating with the last sample's time as its period (§4.8: "if
// repeating, the sequence wraps with the last timestamp as period").
type LoadProfile struct {
	Points    []ProfilePoint
	Repeating bool
}

// LimboLoadGeneratorDescription is constructible from (profile, operation,
// repeating, start_offset?, distribution) per spec.md §9's design note —
// reflection-based field injection in the original source is not carried
// over; this is an ordinary value struct a caller fills in directly.
type LimboLoadGeneratorDescription struct {
	Profile      LoadProfile
	Operation    sim.OperationRef
	StartOffset  float64
	Distribution string // "spike" (default, literal replay) or "poisson" (jittered burst spacing)
}

// Generator is a scheduled entity that, on each firing, emits the
// profile's Rate requests targeted at Operation and reschedules itself at
// the next arrival time from the profile (§4.8). Grounded on the
// teacher's sim/workload per-client arrival loop
// ("currentTime += iat; schedule" in arrival.go/generator.go), generalized
// from stochastic inter-arrival sampling to literal Limbo-profile replay
// plus an optional Poisson jitter mode.
type Generator struct {
	Name         string // identifies this generator as a network "from" node and report-series label
	Target       sim.OperationRef
	Handler      sim.RequestHandler
	Net          *sim.Network
	Profile      LoadProfile
	StartOffset  float64
	Distribution string
	Demand       float64 // computation demand for generated requests; 0 lets the handler resolve it from the Operation
	Timeout      float64 // 0 disables the top-level request timeout

	idx    int
	cycle  int
	reqSeq int
}

// NewGenerator builds a Generator from a description, wired to send
// through net to handler (the resolved target Microservice).
func NewGenerator(name string, desc LimboLoadGeneratorDescription, net *sim.Network, handler sim.RequestHandler) *Generator {
	return &Generator{
		Name:         name,
		Target:       desc.Operation,
		Handler:      handler,
		Net:          net,
		Profile:      desc.Profile,
		StartOffset:  desc.StartOffset,
		Distribution: desc.Distribution,
	}
}

// Start schedules the generator's first firing. A no-op on an empty
// profile.
func (g *Generator) Start(ctx *sim.Context) {
	g.scheduleNext(ctx)
}

// nextPoint advances the profile cursor and returns the next point's
// absolute firing time (StartOffset plus elapsed repeat cycles), or false
// once a non-repeating profile is exhausted.
func (g *Generator) nextPoint() (ProfilePoint, bool) {
	if len(g.Profile.Points) == 0 {
		return ProfilePoint{}, false
	}
	if g.idx >= len(g.Profile.Points) {
		if !g.Profile.Repeating {
			return ProfilePoint{}, false
		}
		g.idx = 0
		g.cycle++
	}
	p := g.Profile.Points[g.idx]
	g.idx++
	period := g.Profile.Points[len(g.Profile.Points)-1].Time
	t := p.Time + float64(g.cycle)*period + g.StartOffset
	return ProfilePoint{Time: t, Rate: p.Rate}, true
}

func (g *Generator) scheduleNext(ctx *sim.Context) {
	pt, ok := g.nextPoint()
	if !ok {
		return
	}
	ev := &generatorFireEvent{BaseEvent: ctx.NewBaseEvent(pt.Time), gen: g, rate: pt.Rate}
	ctx.Schedule(ev)
}

// generatorFireEvent is the scheduled firing itself: produce this
// point's requests, then schedule the next one (§4.8).
type generatorFireEvent struct {
	sim.BaseEvent
	gen  *Generator
	rate float64
}

func (e *generatorFireEvent) Execute(ctx *sim.Context) {
	e.gen.fire(ctx, e.rate)
	e.gen.scheduleNext(ctx)
}

// fire produces the rate requests due at this firing. A "spike"
// distribution (the default, and the one the literal boundary behavior
// in §8 specifies) emits all of them at exactly the firing time; a
// "poisson" distribution spaces all but the first out by a small jittered
// gap drawn from the deterministic workload RNG stream, so bursts don't
// arrive in an unrealistically instantaneous clump while still landing in
// this firing's window.
func (g *Generator) fire(ctx *sim.Context, rate float64) {
	count := int(rate)
	now := ctx.Now()
	for k := 0; k < count; k++ {
		t := now
		if g.Distribution == "poisson" && k > 0 {
			rng := ctx.RNG.ForSubsystem(sim.SubsystemWorkload)
			t += rng.ExpFloat64() * 0.01
		}
		g.emitAt(ctx, t)
	}
}

func (g *Generator) emitAt(ctx *sim.Context, at float64) {
	if at <= ctx.Now() {
		g.emit(ctx)
		return
	}
	ctx.Schedule(&emitEvent{BaseEvent: ctx.NewBaseEvent(at), gen: g})
}

type emitEvent struct {
	sim.BaseEvent
	gen *Generator
}

func (e *emitEvent) Execute(ctx *sim.Context) { e.gen.emit(ctx) }

// emit creates one fresh external Request and sends it into the network
// toward the generator's target operation (§2: "load generators schedule
// ArrivalEvents").
func (g *Generator) emit(ctx *sim.Context) {
	g.reqSeq++
	id := fmt.Sprintf("%s-req-%d", g.Name, g.reqSeq)
	req := sim.NewRequest(id, g.Target, g, g.Name, ctx.Now(), g.Demand)
	ctx.Report.Record(report.GeneratorRequestsSentSeries(g.Name), ctx.Now(), 1)
	if g.Handler == nil {
		return
	}
	if g.Net != nil {
		g.Net.Send(ctx, req, g.Name, g.Target.Service, g.Handler, g, g.Timeout)
		return
	}
	g.Handler.HandleRequest(ctx, req)
}

// ReceiveAnswer implements sim.RequestSender for this generator's
// top-level requests.
func (g *Generator) ReceiveAnswer(ctx *sim.Context, ans *sim.RequestAnswer) {
	ctx.Report.Record(report.GeneratorRequestsCompletedSeries(g.Name), ctx.Now(), 1)
}

// ReceiveFailure implements sim.RequestSender for this generator's
// top-level requests.
func (g *Generator) ReceiveFailure(ctx *sim.Context, req *sim.Request, reason sim.RequestFailedReason) {
	ctx.Report.Record(report.GeneratorRequestsFailedSeries(g.Name), ctx.Now(), string(reason))
}
