package sim

// OperationRef names an operation within an architecture: the service
// that owns it and the operation's name inside that service. Requests
// target an OperationRef rather than holding a direct pointer into
// sim/cluster's Operation type, keeping sim free of any dependency on
// the cluster layer built on top of it.
type OperationRef struct {
	Service   string
	Operation string
}

// RequestHandler is implemented by whatever can accept a Request for
// processing — a MicroserviceInstance in sim/cluster, or a resilience
// pattern decorating one. Kept as a one-method interface so patterns can
// wrap each other transparently (§4.6 composition).
type RequestHandler interface {
	HandleRequest(ctx *Context, req *Request)
}

// RequestSender is implemented by whoever is waiting for a Request's
// outcome — the instance that dispatched an InternalRequest, or an
// external load generator waiting on a top-level request.
type RequestSender interface {
	ReceiveAnswer(ctx *Context, ans *RequestAnswer)
	ReceiveFailure(ctx *Context, req *Request, reason RequestFailedReason)
}

// Request is the unit of work flowing through the service graph (§3).
// Identity (ID, Target, Parent, Dependency) is immutable after creation;
// everything else is mutable progress state.
type Request struct {
	ID        string
	Target    OperationRef
	Requester RequestSender
	Parent    *Request

	// Dependency is non-nil when this Request is an InternalRequest
	// created to satisfy one of Parent's ServiceDependencyInstances
	// (§3 "InternalRequest... subtype of Request tied to a specific
	// ServiceDependencyInstance").
	Dependency *ServiceDependencyInstance

	Dependencies []*ServiceDependencyInstance

	CreatedAt float64
	Handler   string // instance ID that accepted this request, set on arrival

	// RequesterID names the node the answer must be routed back to for
	// network latency lookup; Requester is the callback interface, kept
	// separate since sim.RequestSender exposes no identity of its own.
	RequesterID string

	ComputationDemand   float64 // work units this request's own computation requires
	ComputationProgress float64 // work units completed so far
	cpuSubmitted        bool

	// DependenciesExpanded is set once the handling instance has rolled
	// each declared dependency's probability and populated Dependencies
	// with the ones actually invoked this request (§3: "dependencies[]
	// ... with probability"). A dependency skipped by its probability
	// roll never appears in Dependencies at all.
	DependenciesExpanded bool

	Completed bool
	Canceled  bool
	Answered  bool
}

// NewRequest creates a fresh, unhandled Request targeting op. requesterID
// identifies the requester for network latency lookup on the eventual
// answer.
func NewRequest(id string, op OperationRef, requester RequestSender, requesterID string, createdAt float64, demand float64) *Request {
	return &Request{
		ID:                id,
		Target:            op,
		Requester:         requester,
		RequesterID:       requesterID,
		CreatedAt:         createdAt,
		ComputationDemand: demand,
	}
}

// NewInternalRequest creates the InternalRequest a handler dispatches to
// satisfy one unresolved dependency of parent.
func NewInternalRequest(id string, dep *ServiceDependencyInstance, requester RequestSender, requesterID string, now float64, demand float64) *Request {
	r := NewRequest(id, dep.Target, requester, requesterID, now, demand)
	r.Parent = dep.Parent
	r.Dependency = dep
	return r
}

// CPUSubmitted reports whether this request's own computation has already
// been handed to a CPU (idempotence guard against double-submission on
// re-dispatch).
func (r *Request) CPUSubmitted() bool { return r.cpuSubmitted }

// MarkCPUSubmitted records that the request's computation has been
// submitted to a CPU.
func (r *Request) MarkCPUSubmitted() { r.cpuSubmitted = true }

// AreDependenciesCompleted is true when every dependency's Satisfied flag
// is set (§4.3, lazy evaluation — call sites check this rather than
// maintaining an eagerly-updated counter).
func (r *Request) AreDependenciesCompleted() bool {
	for _, d := range r.Dependencies {
		if !d.Satisfied {
			return false
		}
	}
	return true
}

// IsComputationComplete is true once the request's own CPU work has
// finished.
func (r *Request) IsComputationComplete() bool {
	return r.ComputationDemand == 0 || r.ComputationProgress >= r.ComputationDemand
}

// ComputedCompleted is the §4.3 completion predicate: every dependency
// resolved AND the CPU has finished this request's own computation.
func (r *Request) ComputedCompleted() bool {
	return r.AreDependenciesCompleted() && r.IsComputationComplete()
}

// NotifyDependencyHasFinished marks dep satisfied and reports whether
// this was the last outstanding dependency (§4.3).
func (r *Request) NotifyDependencyHasFinished(dep *ServiceDependencyInstance) bool {
	dep.Satisfied = true
	return r.AreDependenciesCompleted()
}

// Cancel marks the request canceled and recursively cancels any
// in-flight child internal requests (I7: a request whose parent was
// canceled is itself canceled before any further side effect).
func (r *Request) Cancel(ctx *Context, onCancelChild func(ctx *Context, child *Request)) {
	if r.Canceled {
		return
	}
	r.Canceled = true
	for _, dep := range r.Dependencies {
		if dep.ChildRequest != nil && !dep.ChildRequest.Canceled {
			child := dep.ChildRequest
			child.Cancel(ctx, onCancelChild)
			if onCancelChild != nil {
				onCancelChild(ctx, child)
			}
		}
	}
}

// ServiceDependencyInstance concretizes one of an Operation's declared
// dependencies for a specific parent Request (§3). At most one
// ChildRequest may be live at a time (I8): a new child may be created
// only after the previous one failed-and-is-being-retried, or succeeded.
type ServiceDependencyInstance struct {
	Parent      *Request
	Target      OperationRef
	Probability float64

	ChildRequest *Request
	Satisfied    bool

	// Attempt counts dispatch attempts made so far for this dependency,
	// including ones that found no RUNNING target instance (attempts
	// refused by a circuit breaker are not counted); consulted by the
	// Retry pattern against its max.
	Attempt int
}

// NewServiceDependencyInstance creates the per-request concretization of
// a declared dependency on target, owned by parent.
func NewServiceDependencyInstance(parent *Request, target OperationRef, probability float64) *ServiceDependencyInstance {
	return &ServiceDependencyInstance{Parent: parent, Target: target, Probability: probability}
}

// RequestAnswer wraps a completed Request on its way back to the
// requester (§3). Destroyed on arrival.
type RequestAnswer struct {
	Request *Request
	Sender  string // instance ID that computed the answer
}
