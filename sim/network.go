package sim

// NetworkListener receives the four lifecycle notifications the network
// layer emits, in order, for every send (§4.4): OnSend, OnArrivalAtTarget
// (at which point the target's HandleRequest is invoked), OnResult...
// AtRequester (for answers), OnFailed. OnFailed fires only when a send's
// timeout elapses before it arrives; a send canceled through
// InFlight.Cancel and a request refused by its target are not reported to
// listeners. Returning true vetoes further propagation of that step.
//
// Resilience patterns implement this partially by embedding NoopListener
// and overriding only the methods they care about (§9's "capability set
// that any pattern may implement partially").
type NetworkListener interface {
	OnSend(ctx *Context, req *Request) (veto bool)
	OnArrivalAtTarget(ctx *Context, req *Request) (veto bool)
	OnResultAtRequester(ctx *Context, ans *RequestAnswer) (veto bool)
	OnFailed(ctx *Context, req *Request, reason RequestFailedReason) (veto bool)
}

// NoopListener is the zero-effect NetworkListener; embed it to implement
// only a subset of the interface.
type NoopListener struct{}

func (NoopListener) OnSend(*Context, *Request) bool                  { return false }
func (NoopListener) OnArrivalAtTarget(*Context, *Request) bool        { return false }
func (NoopListener) OnResultAtRequester(*Context, *RequestAnswer) bool { return false }
func (NoopListener) OnFailed(*Context, *Request, RequestFailedReason) bool {
	return false
}

type linkKey struct{ From, To string }

// Network models send/arrive/answer/fail as scheduled events (§4.4). It
// carries per-pair latency (default 0) and fires listener callbacks in
// order around every transition.
type Network struct {
	Latencies map[linkKey]float64
	Listeners []NetworkListener

	// ExtraLatency adds a temporary per-target latency surcharge inbound
	// to a service, keyed by target name. Used by sim/experiment's
	// DelayInjection fault to raise and later revert latency for a
	// window without the caller needing to know every link that targets
	// a service (§4.8 DELAY faultload).
	ExtraLatency map[string]float64
}

// NewNetwork creates a Network with zero default latency between every
// pair not explicitly configured.
func NewNetwork() *Network {
	return &Network{Latencies: make(map[linkKey]float64), ExtraLatency: make(map[string]float64)}
}

// SetLatency configures the one-way latency from `from` to `to`.
func (n *Network) SetLatency(from, to string, latency float64) {
	n.Latencies[linkKey{from, to}] = latency
}

// SetExtraLatency sets the temporary latency surcharge applied to every
// send targeting `to`, regardless of sender.
func (n *Network) SetExtraLatency(to string, extra float64) {
	if extra <= 0 {
		delete(n.ExtraLatency, to)
		return
	}
	n.ExtraLatency[to] = extra
}

func (n *Network) latency(from, to string) float64 {
	return n.Latencies[linkKey{from, to}] + n.ExtraLatency[to]
}

// AddListener registers l to receive future send/arrive/answer/fail
// notifications.
func (n *Network) AddListener(l NetworkListener) {
	n.Listeners = append(n.Listeners, l)
}

func (n *Network) fireSend(ctx *Context, req *Request) bool {
	for _, l := range n.Listeners {
		if l.OnSend(ctx, req) {
			return true
		}
	}
	return false
}

func (n *Network) fireArrival(ctx *Context, req *Request) bool {
	for _, l := range n.Listeners {
		if l.OnArrivalAtTarget(ctx, req) {
			return true
		}
	}
	return false
}

func (n *Network) fireResult(ctx *Context, ans *RequestAnswer) bool {
	for _, l := range n.Listeners {
		if l.OnResultAtRequester(ctx, ans) {
			return true
		}
	}
	return false
}

func (n *Network) fireFailed(ctx *Context, req *Request, reason RequestFailedReason) bool {
	for _, l := range n.Listeners {
		if l.OnFailed(ctx, req, reason) {
			return true
		}
	}
	return false
}

// arrivalEvent delivers req to target at its scheduled time, canceling
// the paired timeout if still pending.
type arrivalEvent struct {
	BaseEvent
	net     *Network
	req     *Request
	target  RequestHandler
	timeout Event
}

func (e *arrivalEvent) Execute(ctx *Context) {
	if e.timeout != nil {
		ctx.Cancel(e.timeout)
	}
	if e.req.Canceled {
		return
	}
	if e.net.fireArrival(ctx, e.req) {
		return
	}
	e.target.HandleRequest(ctx, e.req)
}

// timeoutEvent fires ReasonTimeout at the sender if the arrival hasn't
// already canceled it (§5: first of {arrival, timeout, explicit cancel}
// wins, the others are canceled).
type timeoutEvent struct {
	BaseEvent
	net     *Network
	req     *Request
	sender  RequestSender
	arrival Event
}

func (e *timeoutEvent) Execute(ctx *Context) {
	if e.arrival != nil {
		ctx.Cancel(e.arrival)
	}
	if e.req.Canceled || e.req.Answered {
		return
	}
	if e.net.fireFailed(ctx, e.req, ReasonTimeout) {
		return
	}
	if e.sender != nil {
		e.sender.ReceiveFailure(ctx, e.req, ReasonTimeout)
	}
}

// InFlight is a handle to the event(s) a send produced, letting a caller
// (e.g. Instance.die) cancel an in-flight send as a unit.
type InFlight struct {
	Arrival Event
	Timeout Event
}

// Cancel tombstones every event in the handle that hasn't fired yet.
func (f InFlight) Cancel(ctx *Context) {
	if f.Arrival != nil {
		ctx.Cancel(f.Arrival)
	}
	if f.Timeout != nil {
		ctx.Cancel(f.Timeout)
	}
}

// Send schedules req's arrival at `to` after the configured latency from
// `from`, racing a timeout scheduled `timeoutDelta` ticks out (0 disables
// the timeout). fireSend runs synchronously before either event is
// scheduled, matching §4.4's "emits ... onSend ... in order."
func (n *Network) Send(ctx *Context, req *Request, from, to string, target RequestHandler, sender RequestSender, timeoutDelta float64) InFlight {
	if n.fireSend(ctx, req) {
		return InFlight{}
	}
	latency := n.latency(from, to)
	arr := &arrivalEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + latency), net: n, req: req, target: target}
	var timeoutEv *timeoutEvent
	if timeoutDelta > 0 {
		timeoutEv = &timeoutEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + timeoutDelta), net: n, req: req, sender: sender}
		arr.timeout = timeoutEv
		timeoutEv.arrival = arr
		ctx.Schedule(timeoutEv)
	}
	ctx.Schedule(arr)
	if timeoutEv != nil {
		return InFlight{Arrival: arr, Timeout: timeoutEv}
	}
	return InFlight{Arrival: arr}
}

// SendAnswer schedules ans's arrival back at the requester (the reply
// path of §4.4), invoking OnResultAtRequester instead of
// OnArrivalAtTarget.
func (n *Network) SendAnswer(ctx *Context, ans *RequestAnswer, from, to string, requester RequestSender) Event {
	req := ans.Request
	req.Answered = true
	ev := &answerEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + n.latency(from, to)), net: n, ans: ans, requester: requester}
	ctx.Schedule(ev)
	return ev
}

type answerEvent struct {
	BaseEvent
	net       *Network
	ans       *RequestAnswer
	requester RequestSender
}

func (e *answerEvent) Execute(ctx *Context) {
	if e.ans.Request.Canceled {
		return
	}
	if e.net.fireResult(ctx, e.ans) {
		return
	}
	if e.requester != nil {
		e.requester.ReceiveAnswer(ctx, e.ans)
	}
}
