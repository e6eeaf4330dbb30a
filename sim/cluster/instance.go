package cluster

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/patterns"
	"github.com/misim/misim/sim/report"
)

// ServiceResolver locates a Microservice by name so an Instance can route
// a dependency to whichever service owns its target operation, without
// Instance holding a direct reference to the whole cluster (avoids a
// cyclic owner <-> cluster wiring; Cluster in microservice.go implements
// this).
type ServiceResolver interface {
	Resolve(name string) *Microservice
}

// Instance is a MicroserviceInstance (§4.5): the state machine and
// dispatch logic that is "the heart of the core" — admitting requests,
// running their computation on its CPU, and fanning out to whatever
// operations they depend on. Grounded on sim/cluster/instance.go's
// wrapper-with-explicit-ID style and simulator.go's
// handleRouteDecision/handleInstanceStep dispatch in the teacher, expanded
// to the full three-branch decision (answer / submit-to-CPU /
// spawn-dependencies) spec.md describes.
type Instance struct {
	id    InstanceID
	owner *Microservice
	state InstanceState

	cpu      *sim.CPU
	net      *sim.Network
	resolver ServiceResolver

	currentRequestsToHandle map[string]*sim.Request

	// outgoingSends and outgoingAnswers let die() cancel every in-flight
	// network event this instance caused as a unit (§4.5 die()).
	outgoingSends   map[string]sim.InFlight
	outgoingAnswers map[string]sim.Event

	// depConfig remembers which Dependency declaration produced each live
	// ServiceDependencyInstance, since sim.ServiceDependencyInstance
	// itself carries no cluster-level config (keeps sim free of any
	// dependency on cluster).
	depConfig map[*sim.ServiceDependencyInstance]*Dependency

	breakers map[sim.OperationRef]*patterns.CircuitBreaker
	retries  map[sim.OperationRef]*patterns.Retry

	reqSeq int
}

// NewInstance creates a CREATED Instance with its own CPU of the given
// capacity, wired to net for request/answer traffic and resolver for
// locating dependency targets.
func NewInstance(id InstanceID, owner *Microservice, capacity float64, net *sim.Network, resolver ServiceResolver) *Instance {
	return &Instance{
		id:                      id,
		owner:                   owner,
		state:                   StateCreated,
		cpu:                     sim.NewCPU(capacity),
		net:                     net,
		resolver:                resolver,
		currentRequestsToHandle: make(map[string]*sim.Request),
		outgoingSends:           make(map[string]sim.InFlight),
		outgoingAnswers:         make(map[string]sim.Event),
		depConfig:               make(map[*sim.ServiceDependencyInstance]*Dependency),
		breakers:                make(map[sim.OperationRef]*patterns.CircuitBreaker),
		retries:                 make(map[sim.OperationRef]*patterns.Retry),
	}
}

// ID satisfies patterns.InstanceView.
func (i *Instance) ID() string { return string(i.id) }

// Running satisfies patterns.InstanceView.
func (i *Instance) Running() bool { return i.state == StateRunning }

// CPUUsage satisfies patterns.InstanceView.
func (i *Instance) CPUUsage() float64 { return i.cpu.CurrentUsage() }

// RelativeWorkDemand is the signal a service-scoped AutoscalingStrategy
// aggregates across instances (§4.6).
func (i *Instance) RelativeWorkDemand() float64 { return i.cpu.CurrentRelativeWorkDemand() }

// State returns the instance's current lifecycle state.
func (i *Instance) State() InstanceState { return i.state }

// InFlightCount returns how many requests this instance currently owns.
func (i *Instance) InFlightCount() int { return len(i.currentRequestsToHandle) }

func (i *Instance) reportState(ctx *sim.Context) {
	ctx.Report.Record(report.InstanceStateSeries(string(i.id)), ctx.Now(), string(i.state))
}

func (i *Instance) reportInSystem(ctx *sim.Context) {
	ctx.Report.Record(report.InstanceRequestsInSystemSeries(string(i.id)), ctx.Now(), len(i.currentRequestsToHandle))
}

// Start transitions CREATED -> STARTING -> RUNNING. STARTING is reported
// as a distinct datapoint even though the advance to RUNNING is immediate
// (§4.5). Calling Start from any state other than CREATED is a programmer
// error.
func (i *Instance) Start(ctx *sim.Context) {
	if i.state != StateCreated {
		panic(&sim.IllegalInstanceTransitionError{From: string(i.state), To: string(StateRunning)})
	}
	i.state = StateStarting
	i.reportState(ctx)
	i.state = StateRunning
	i.reportState(ctx)
}

// StartShutdown transitions RUNNING -> SHUTTING_DOWN. If the instance
// already owns zero requests it advances straight to SHUTDOWN. Calling it
// from any state other than RUNNING is a programmer error.
func (i *Instance) StartShutdown(ctx *sim.Context) {
	if i.state != StateRunning {
		panic(&sim.IllegalInstanceTransitionError{From: string(i.state), To: string(StateShuttingDown)})
	}
	i.state = StateShuttingDown
	i.reportState(ctx)
	i.maybeFinishShutdown(ctx)
}

func (i *Instance) maybeFinishShutdown(ctx *sim.Context) {
	if i.state == StateShuttingDown && len(i.currentRequestsToHandle) == 0 {
		i.state = StateShutdown
		i.reportState(ctx)
	}
}

// Die transitions any state but KILLED straight to KILLED (§4.5): it
// clears the CPU, cancels every outgoing send/answer this instance has in
// flight, and notifies the original sender of every request it was
// handling with ReasonConnectionReset. Requests whose handler died do not
// auto-retry here — retry is the sender's responsibility via its own
// patterns.
func (i *Instance) Die(ctx *sim.Context) {
	if i.state == StateKilled {
		panic(&sim.IllegalInstanceTransitionError{From: string(i.state), To: string(StateKilled)})
	}
	i.cpu.Clear(ctx)

	for id, inflight := range i.outgoingSends {
		inflight.Cancel(ctx)
		delete(i.outgoingSends, id)
	}
	for id, ev := range i.outgoingAnswers {
		ctx.Cancel(ev)
		delete(i.outgoingAnswers, id)
	}

	for id, req := range i.currentRequestsToHandle {
		i.cleanupDeps(req)
		delete(i.currentRequestsToHandle, id)
		if req.Requester != nil {
			req.Requester.ReceiveFailure(ctx, req, sim.ReasonConnectionReset)
		}
	}

	i.state = StateKilled
	i.reportState(ctx)
}

// DebugSetState forces the instance's lifecycle state without running any
// transition logic. It exists purely as a test back door (spec.md §9's
// setState is explicitly "for-test-only, not in the public contract") and
// must never be called from production dispatch code.
func (i *Instance) DebugSetState(s InstanceState) { i.state = s }

// admit implements §4.5 step 1: RUNNING accepts anything; SHUTTING_DOWN
// accepts only requests (or whose parent) this instance already owns;
// every other state refuses.
func (i *Instance) admit(req *sim.Request) bool {
	switch i.state {
	case StateRunning:
		return true
	case StateShuttingDown:
		return i.owns(req)
	default:
		return false
	}
}

func (i *Instance) owns(req *sim.Request) bool {
	if _, ok := i.currentRequestsToHandle[req.ID]; ok {
		return true
	}
	if req.Parent != nil {
		if _, ok := i.currentRequestsToHandle[req.Parent.ID]; ok {
			return true
		}
	}
	return false
}

func (i *Instance) refuse(ctx *sim.Context, req *sim.Request) {
	logrus.Debugf("instance %s refused request %s in state %s", i.id, req.ID, i.state)
	if req.Requester != nil {
		req.Requester.ReceiveFailure(ctx, req, sim.ReasonHandlerUnavailable)
	}
}

// HandleRequest implements sim.RequestHandler — the entry point for every
// fresh (non-answer) arrival at this instance (§4.5 steps 1, 3, 4).
// RequestAnswer arrivals are delivered separately via ReceiveAnswer, since
// in this design an InternalRequest's answer always targets the
// dispatching instance directly rather than re-entering HandleRequest.
func (i *Instance) HandleRequest(ctx *sim.Context, req *sim.Request) {
	if !i.admit(req) {
		i.refuse(ctx, req)
		return
	}
	if _, exists := i.currentRequestsToHandle[req.ID]; !exists {
		i.currentRequestsToHandle[req.ID] = req
		req.Handler = string(i.id)
		i.reportInSystem(ctx)
	}
	i.dispatch(ctx, req)
}

// dispatch is the §4.5 step 4 decision tree, re-entered whenever a
// dependency resolves or a CPU process completes.
func (i *Instance) dispatch(ctx *sim.Context, req *sim.Request) {
	if req.Canceled {
		return
	}
	i.expandDependencies(ctx, req)

	if req.ComputedCompleted() {
		i.completeRequest(ctx, req)
		return
	}

	if req.AreDependenciesCompleted() {
		if !req.CPUSubmitted() {
			req.MarkCPUSubmitted()
			i.cpu.Submit(ctx, req, req.ComputationDemand, func(ctx *sim.Context, r *sim.Request) {
				r.ComputationProgress = r.ComputationDemand
				i.dispatch(ctx, r)
			})
		}
		return
	}

	for _, dep := range req.Dependencies {
		if !dep.Satisfied && dep.ChildRequest == nil {
			i.dispatchDependency(ctx, dep)
		}
	}
}

// expandDependencies rolls each declared dependency's probability exactly
// once per request and populates req.Dependencies with the ones actually
// invoked (§3: "dependencies[] ... with probability" — a dependency
// skipped by its roll never appears at all, so it is vacuously
// "satisfied"). It also resolves the request's own CPU demand from the
// operation definition the first time it's seen.
func (i *Instance) expandDependencies(ctx *sim.Context, req *sim.Request) {
	if req.DependenciesExpanded {
		return
	}
	req.DependenciesExpanded = true

	op := i.owner.Operation(req.Target.Operation)
	if op == nil {
		return
	}
	if req.ComputationDemand == 0 {
		req.ComputationDemand = op.Demand
	}
	rng := ctx.RNG.ForSubsystem(sim.SubsystemDependencyRoll)
	for idx := range op.Dependencies {
		cfg := &op.Dependencies[idx]
		if rng.Float64() >= cfg.Probability {
			continue
		}
		dep := sim.NewServiceDependencyInstance(req, cfg.Target, cfg.Probability)
		req.Dependencies = append(req.Dependencies, dep)
		i.depConfig[dep] = cfg
	}
}

func (i *Instance) cleanupDeps(req *sim.Request) {
	for _, dep := range req.Dependencies {
		delete(i.depConfig, dep)
	}
}

func (i *Instance) breakerFor(target sim.OperationRef, cfg *Dependency) *patterns.CircuitBreaker {
	if b, ok := i.breakers[target]; ok {
		return b
	}
	resetTimeout := cfg.CircuitBreakerResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = DefaultCircuitBreakerResetTimeout
	}
	b := patterns.NewCircuitBreaker(cfg.CircuitBreakerWindow, cfg.CircuitBreakerThreshold, resetTimeout)
	i.breakers[target] = b
	return b
}

func (i *Instance) retryFor(target sim.OperationRef, cfg *Dependency) *patterns.Retry {
	if r, ok := i.retries[target]; ok {
		return r
	}
	r := patterns.NewRetry(cfg.RetryBase, cfg.RetryMaxAttempts, cfg.RetryJitterMax, func(ctx *sim.Context, dep *sim.ServiceDependencyInstance) {
		i.dispatchDependency(ctx, dep)
	})
	i.retries[target] = r
	return r
}

// dispatchDependency sends (or re-sends, for a retry) the InternalRequest
// for one dependency: CircuitBreaker gates it first (§4.6 composition,
// "CircuitBreaker outermost" — a tripped breaker fails at send time with
// zero network latency), then the target service's LoadBalancer picks a
// RUNNING instance, then the Network carries it.
func (i *Instance) dispatchDependency(ctx *sim.Context, dep *sim.ServiceDependencyInstance) {
	cfg := i.depConfig[dep]

	if cfg != nil && cfg.CircuitBreakerWindow > 0 {
		if ok, reason := i.breakerFor(dep.Target, cfg).Allow(); !ok {
			i.onDependencyFailed(ctx, dep, reason)
			return
		}
	}

	// Every attempt past the breaker gate counts toward the retry cap,
	// including one that finds no RUNNING target instance.
	dep.Attempt++

	targetSvc := i.resolver.Resolve(dep.Target.Service)
	if targetSvc == nil {
		i.onDependencyFailed(ctx, dep, sim.ReasonNoInstance)
		return
	}
	chosen, err := targetSvc.LoadBalancer.SelectInstance(ctx, targetSvc.instanceViews())
	if err != nil {
		i.onDependencyFailed(ctx, dep, sim.ReasonNoInstance)
		return
	}
	target := chosen.(*Instance)

	id := i.nextInternalRequestID()
	// requesterID is the owning service's name, not this instance's ID: link
	// latencies are configured per service pair, and the answer's return
	// trip (completeRequest) must key off the same identity.
	child := sim.NewInternalRequest(id, dep, i, i.owner.Name, ctx.Now(), 0)
	dep.ChildRequest = child

	timeout := DefaultDependencyTimeout
	if cfg != nil && cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	i.outgoingSends[child.ID] = i.net.Send(ctx, child, i.owner.Name, targetSvc.Name, target, i, timeout)
}

func (i *Instance) nextInternalRequestID() string {
	i.reqSeq++
	return fmt.Sprintf("%s-ir-%d", i.id, i.reqSeq)
}

// ReceiveAnswer implements sim.RequestSender for the InternalRequests this
// instance dispatches: it is §4.5 step 2 (unpack to the originating
// dependency, verify it's still open and matches the live child, else
// ErrStaleAnswer — logged and dropped per DESIGN.md's Open Question
// decision) followed by notifying the parent and, if it was the last
// outstanding dependency, re-entering dispatch on the parent.
func (i *Instance) ReceiveAnswer(ctx *sim.Context, ans *sim.RequestAnswer) {
	child := ans.Request
	dep := child.Dependency
	delete(i.outgoingSends, child.ID)
	if dep == nil {
		return
	}
	if dep.ChildRequest != child || dep.Satisfied || child.Canceled {
		logrus.Warnf("instance %s: %v for dependency %s", i.id, sim.ErrStaleAnswer, dep.Target.Operation)
		return
	}
	parent := dep.Parent
	if _, owned := i.currentRequestsToHandle[parent.ID]; !owned {
		logrus.Warnf("instance %s: %v, parent %s no longer owned", i.id, sim.ErrStaleAnswer, parent.ID)
		return
	}

	if cfg := i.depConfig[dep]; cfg != nil && cfg.CircuitBreakerWindow > 0 {
		i.breakerFor(dep.Target, cfg).RecordOutcome(ctx, true)
	}

	if parent.NotifyDependencyHasFinished(dep) {
		i.dispatch(ctx, parent)
	}
}

// ReceiveFailure implements sim.RequestSender: a dependency's
// InternalRequest failed (timeout, connection reset, or a refusal from
// its target). The failure runs the CircuitBreaker then Retry listener
// chain (§4.6 composition order); if neither recovers it, the owning
// request is canceled with ReasonDependencyNotAvailable and the failure
// propagates to its own requester (§7).
func (i *Instance) ReceiveFailure(ctx *sim.Context, req *sim.Request, reason sim.RequestFailedReason) {
	dep := req.Dependency
	delete(i.outgoingSends, req.ID)
	if dep == nil {
		return
	}
	if dep.Satisfied || req.Canceled {
		return
	}
	i.onDependencyFailed(ctx, dep, reason)
}

// onDependencyFailed runs the §4.6 CircuitBreaker->Retry chain. A true
// from the breaker means only "don't bother retrying against a breaker
// that just rejected this at the gate" — it must not by itself swallow
// the failure, or a request behind an OPEN breaker with no retry
// configured would hang forever instead of failing fast. Only Retry
// scheduling an actual future redispatch may suppress propagation.
func (i *Instance) onDependencyFailed(ctx *sim.Context, dep *sim.ServiceDependencyInstance, reason sim.RequestFailedReason) {
	cfg := i.depConfig[dep]
	skipRetry := false
	if cfg != nil && cfg.CircuitBreakerWindow > 0 {
		if reason == sim.ReasonCircuitIsOpen {
			// Refused at this breaker's own gate: the attempt never reached
			// the target, so there is no outcome to record (recording one
			// would let a refused concurrent attempt decide a HALF_OPEN probe).
			skipRetry = true
		} else {
			skipRetry = i.breakerFor(dep.Target, cfg).OnRequestFailed(ctx, dep, reason)
		}
	}
	retried := false
	if !skipRetry && cfg != nil && cfg.RetryMaxAttempts > 0 {
		retried = i.retryFor(dep.Target, cfg).OnRequestFailed(ctx, dep, reason)
	}
	if retried {
		return
	}
	i.cancelUnrecoverable(ctx, dep.Parent)
}

// cancelUnrecoverable cancels req (cascading to any other still-live
// sibling dependency per I7) and notifies req's own requester that it
// failed with ReasonDependencyNotAvailable, continuing the failure
// propagation up the call chain.
func (i *Instance) cancelUnrecoverable(ctx *sim.Context, req *sim.Request) {
	_, wasHandling := i.currentRequestsToHandle[req.ID]

	req.Cancel(ctx, func(ctx *sim.Context, child *sim.Request) {
		if inflight, ok := i.outgoingSends[child.ID]; ok {
			inflight.Cancel(ctx)
			delete(i.outgoingSends, child.ID)
		}
	})
	i.cleanupDeps(req)

	if wasHandling {
		delete(i.currentRequestsToHandle, req.ID)
		i.reportInSystem(ctx)
		i.maybeFinishShutdown(ctx)
	}
	if req.Requester != nil {
		req.Requester.ReceiveFailure(ctx, req, sim.ReasonDependencyNotAvail)
	}
}

// completeRequest implements §4.5 step 4(a): every dependency resolved and
// the CPU finished. The answer is sent back over the network to whoever
// is waiting, and a drained SHUTTING_DOWN instance advances to SHUTDOWN.
func (i *Instance) completeRequest(ctx *sim.Context, req *sim.Request) {
	req.Completed = true
	i.cleanupDeps(req)
	delete(i.currentRequestsToHandle, req.ID)
	i.reportInSystem(ctx)

	ans := &sim.RequestAnswer{Request: req, Sender: string(i.id)}
	i.outgoingAnswers[req.ID] = i.net.SendAnswer(ctx, ans, i.owner.Name, req.RequesterID, req.Requester)

	i.maybeFinishShutdown(ctx)
}
