package cluster

import (
	"fmt"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/patterns"
	"github.com/misim/misim/sim/report"
)

// Microservice is a named service deployment (§3, §4.7): a fixed
// per-instance CPU capacity, a set of Operations, and a pool of Instances
// it scales and kills through. It is itself a sim.RequestHandler so
// external load generators and other microservices' dependency dispatch
// can target it by name and let its LoadBalancer pick the concrete
// Instance.
type Microservice struct {
	Name         string
	Capacity     float64
	Operations   map[string]*Operation
	LoadBalancer patterns.LoadBalancer
	Autoscaler   patterns.AutoscalingStrategy

	net      *sim.Network
	resolver ServiceResolver

	// order preserves instance creation order so scaleToInstancesCount can
	// apply the "oldest-first shutdown" policy (§4.7).
	order         []InstanceID
	instancesByID map[InstanceID]*Instance
	nextSeq       int
}

// NewMicroservice creates a Microservice with no operations or instances
// yet. lb must not be nil; as may be nil to disable autoscaling.
func NewMicroservice(name string, capacity float64, lb patterns.LoadBalancer, as patterns.AutoscalingStrategy, net *sim.Network) *Microservice {
	return &Microservice{
		Name:          name,
		Capacity:      capacity,
		Operations:    make(map[string]*Operation),
		LoadBalancer:  lb,
		Autoscaler:    as,
		net:           net,
		instancesByID: make(map[InstanceID]*Instance),
	}
}

// AddOperation registers op under its own name.
func (m *Microservice) AddOperation(op *Operation) { m.Operations[op.Name] = op }

// Operation looks up a declared operation by name, or nil if undeclared.
func (m *Microservice) Operation(name string) *Operation { return m.Operations[name] }

// Instances returns every instance this microservice owns, oldest first.
func (m *Microservice) Instances() []*Instance {
	out := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instancesByID[id])
	}
	return out
}

func (m *Microservice) instanceViews() []patterns.InstanceView {
	views := make([]patterns.InstanceView, 0, len(m.order))
	for _, id := range m.order {
		views = append(views, m.instancesByID[id])
	}
	return views
}

func (m *Microservice) runningCount() int {
	n := 0
	for _, id := range m.order {
		switch m.instancesByID[id].State() {
		case StateCreated, StateStarting, StateRunning:
			n++
		}
	}
	return n
}

func (m *Microservice) nextInstanceID() InstanceID {
	m.nextSeq++
	return InstanceID(fmt.Sprintf("%s-%d", m.Name, m.nextSeq))
}

// HandleRequest implements sim.RequestHandler: it routes an incoming
// request to one RUNNING instance via LoadBalancer and forwards it over
// the network (§4.6 composition: LoadBalancer sits directly in front of
// the Network for the send path).
func (m *Microservice) HandleRequest(ctx *sim.Context, req *sim.Request) {
	chosen, err := m.LoadBalancer.SelectInstance(ctx, m.instanceViews())
	if err != nil {
		if req.Requester != nil {
			req.Requester.ReceiveFailure(ctx, req, sim.ReasonNoInstance)
		}
		return
	}
	target := chosen.(*Instance)
	m.net.Send(ctx, req, req.RequesterID, target.ID(), target, req.Requester, DefaultDependencyTimeout)
}

// spawnInstance creates and starts a fresh instance, appending it to the
// oldest-first order.
func (m *Microservice) spawnInstance(ctx *sim.Context) *Instance {
	id := m.nextInstanceID()
	inst := NewInstance(id, m, m.Capacity, m.net, m.resolver)
	m.instancesByID[id] = inst
	m.order = append(m.order, id)
	inst.Start(ctx)
	return inst
}

// ScaleToInstancesCount spawns or starts shutting down instances to reach
// target running instances (§4.7). Scaling down shuts down the oldest
// RUNNING instances first rather than the newest, so long-lived instances
// don't get starved out by a churn of fresh ones.
func (m *Microservice) ScaleToInstancesCount(ctx *sim.Context, target int) {
	current := m.runningCount()
	switch {
	case target > current:
		for k := 0; k < target-current; k++ {
			m.spawnInstance(ctx)
		}
	case target < current:
		remaining := current - target
		for _, id := range m.order {
			if remaining == 0 {
				break
			}
			inst := m.instancesByID[id]
			if inst.State() == StateRunning {
				inst.StartShutdown(ctx)
				remaining--
			}
		}
	}
	ctx.Report.Record(report.ServiceInstancesRunningSeries(m.Name), ctx.Now(), m.runningCount())
}

// StartInstances spawns n fresh instances in addition to however many
// are already running — an absolute increment, unlike
// ScaleToInstancesCount's absolute target (§4.8 "START" faultload).
func (m *Microservice) StartInstances(ctx *sim.Context, n int) {
	for k := 0; k < n; k++ {
		m.spawnInstance(ctx)
	}
	ctx.Report.Record(report.ServiceInstancesRunningSeries(m.Name), ctx.Now(), m.runningCount())
}

// RunningCount reports how many instances are currently
// CREATED/STARTING/RUNNING.
func (m *Microservice) RunningCount() int { return m.runningCount() }

// KillInstances selects n RUNNING instances uniformly at random (drawn
// from the deterministic "chaos" RNG stream, §5) and kills each — no
// replacement is spawned; recovery, if any, is the Autoscaler's job on
// its next tick.
func (m *Microservice) KillInstances(ctx *sim.Context, n int) {
	pool := make([]InstanceID, 0, len(m.order))
	for _, id := range m.order {
		if m.instancesByID[id].State() == StateRunning {
			pool = append(pool, id)
		}
	}
	rng := ctx.RNG.ForSubsystem(sim.SubsystemChaos)
	victims := make([]*Instance, 0, n)
	for k := 0; k < n && len(pool) > 0; k++ {
		idx := rng.Intn(len(pool))
		victims = append(victims, m.instancesByID[pool[idx]])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	for _, inst := range victims {
		inst.Die(ctx)
	}
}

// autoscalerTickEvent re-fires every Autoscaler.Period() ticks for as
// long as the owning Microservice keeps an Autoscaler configured (§4.6,
// service-scoped periodic).
type autoscalerTickEvent struct {
	sim.BaseEvent
	svc *Microservice
}

func (e *autoscalerTickEvent) Execute(ctx *sim.Context) {
	e.svc.tickAutoscaler(ctx)
	if e.svc.Autoscaler != nil {
		next := &autoscalerTickEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + e.svc.Autoscaler.Period()), svc: e.svc}
		ctx.Schedule(next)
	}
}

func (m *Microservice) tickAutoscaler(ctx *sim.Context) {
	if m.Autoscaler == nil {
		return
	}
	demand := 0.0
	for _, id := range m.order {
		inst := m.instancesByID[id]
		if inst.State() == StateRunning {
			demand += inst.RelativeWorkDemand()
		}
	}
	ctx.Report.Record(report.ServiceRelativeWorkDemandSeries(m.Name), ctx.Now(), demand)
	current := m.runningCount()
	if target := m.Autoscaler.Tick(ctx, demand, current, ctx.Now()); target != current {
		m.ScaleToInstancesCount(ctx, target)
	}
}

// StartAutoscaler schedules the first autoscaler tick. A no-op if the
// microservice has no Autoscaler configured.
func (m *Microservice) StartAutoscaler(ctx *sim.Context) {
	if m.Autoscaler == nil {
		return
	}
	ev := &autoscalerTickEvent{BaseEvent: ctx.NewBaseEvent(ctx.Now() + m.Autoscaler.Period()), svc: m}
	ctx.Schedule(ev)
}

// Cluster is the in-memory architecture registry: every Microservice in
// the simulated system, looked up by name. It implements ServiceResolver
// so instance.go's dependency dispatch never needs a direct reference to
// the whole architecture.
type Cluster struct {
	services map[string]*Microservice
}

// NewCluster creates an empty Cluster.
func NewCluster() *Cluster {
	return &Cluster{services: make(map[string]*Microservice)}
}

// Register adds svc to the cluster and wires it as svc's resolver, so its
// instances can route dependencies to any other registered service.
func (c *Cluster) Register(svc *Microservice) {
	c.services[svc.Name] = svc
	svc.resolver = c
}

// Resolve implements ServiceResolver.
func (c *Cluster) Resolve(name string) *Microservice { return c.services[name] }

// Microservice returns the registered service by name, or nil.
func (c *Cluster) Microservice(name string) *Microservice { return c.services[name] }

// All returns every registered microservice, in no particular order.
func (c *Cluster) All() []*Microservice {
	out := make([]*Microservice, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	return out
}
