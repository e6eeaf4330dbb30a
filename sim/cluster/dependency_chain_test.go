package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/patterns"
)

// TestEndToEnd_MinimalPassThrough builds spec.md §8's first literal
// scenario: a single service with one dependency-free operation. A
// request of demand 1 against a capacity-1 instance must come back to the
// requester at exactly t=1.0.
func TestEndToEnd_MinimalPassThrough(t *testing.T) {
	net := sim.NewNetwork()
	cl := NewCluster()
	svc := NewMicroservice("A", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)
	svc.AddOperation(&Operation{Name: "op", Demand: 1})
	cl.Register(svc)

	ctx := sim.NewContext(0, 1, nil)
	svc.ScaleToInstancesCount(ctx, 1)
	inst := svc.Instances()[0]

	sender := &recordingSender{}
	req := sim.NewRequest("top", sim.OperationRef{Service: "A", Operation: "op"}, sender, "ext", ctx.Now(), 0)
	inst.HandleRequest(ctx, req)

	ctx.Run(func(c *sim.Context) bool { return c.Queue.Len() == 0 })

	require.Len(t, sender.answers, 1)
	assert.Equal(t, 1.0, ctx.Now())
}

// TestEndToEnd_DependencyChain_ArrivesAtExactlyFiveSeconds builds spec.md
// §8's second literal scenario: a three-service chain A.op -> B.op ->
// C.op, each operation demanding 1 unit of work on a capacity-1 instance,
// every hop (both directions) carrying 0.5 network latency. The request
// originates already at A (no external send latency). The answer must
// reach the original requester at exactly t = 0.5 (A->B) + 0.5 (B->C) + 1
// (C) + 0.5 (C->B) + 1 (B) + 0.5 (B->A) + 1 (A) = 5.0.
func TestEndToEnd_DependencyChain_ArrivesAtExactlyFiveSeconds(t *testing.T) {
	net := sim.NewNetwork()
	net.SetLatency("A", "B", 0.5)
	net.SetLatency("B", "A", 0.5)
	net.SetLatency("B", "C", 0.5)
	net.SetLatency("C", "B", 0.5)

	cl := NewCluster()
	svcA := NewMicroservice("A", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)
	svcB := NewMicroservice("B", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)
	svcC := NewMicroservice("C", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)

	svcA.AddOperation(&Operation{
		Name:   "op",
		Demand: 1,
		Dependencies: []Dependency{
			{Target: sim.OperationRef{Service: "B", Operation: "op"}, Probability: 1.0},
		},
	})
	svcB.AddOperation(&Operation{
		Name:   "op",
		Demand: 1,
		Dependencies: []Dependency{
			{Target: sim.OperationRef{Service: "C", Operation: "op"}, Probability: 1.0},
		},
	})
	svcC.AddOperation(&Operation{Name: "op", Demand: 1})

	cl.Register(svcA)
	cl.Register(svcB)
	cl.Register(svcC)

	ctx := sim.NewContext(0, 1, nil)
	svcA.ScaleToInstancesCount(ctx, 1)
	svcB.ScaleToInstancesCount(ctx, 1)
	svcC.ScaleToInstancesCount(ctx, 1)

	sender := &recordingSender{}
	req := sim.NewRequest("top", sim.OperationRef{Service: "A", Operation: "op"}, sender, "ext", ctx.Now(), 0)
	svcA.Instances()[0].HandleRequest(ctx, req)

	ctx.Run(func(c *sim.Context) bool { return c.Queue.Len() == 0 })

	require.Len(t, sender.answers, 1)
	require.Empty(t, sender.failures)
	assert.Equal(t, "top", sender.answers[0].Request.ID)
	assert.Equal(t, 5.0, ctx.Now())
}

// killFaultEvent is a minimal scheduled fault used to pin down a KILL at
// an exact simulated time, mirroring sim/experiment.KillEvent's shape
// without pulling sim/experiment into a sim/cluster test.
type killFaultEvent struct {
	sim.BaseEvent
	svc *Microservice
	n   int
}

func (e *killFaultEvent) Execute(ctx *sim.Context) { e.svc.KillInstances(ctx, e.n) }

// TestEndToEnd_KillDuringFlight builds spec.md §8's third literal
// scenario: the same A.op -> B.op -> C.op chain as scenario 2, but B is
// killed via a "KILL B 1 @1.0" fault while A's request is still in flight
// through it. B's death notifies A of the internal request it was
// handling with ReasonConnectionReset; with no retry or circuit breaker
// configured on A's dependency, that cascades to A canceling its own
// top-level request and failing it up to the original requester with
// ReasonDependencyNotAvailable. No answer ever reaches the requester.
func TestEndToEnd_KillDuringFlight(t *testing.T) {
	net := sim.NewNetwork()
	net.SetLatency("A", "B", 0.5)
	net.SetLatency("B", "A", 0.5)
	net.SetLatency("B", "C", 0.5)
	net.SetLatency("C", "B", 0.5)

	cl := NewCluster()
	svcA := NewMicroservice("A", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)
	svcB := NewMicroservice("B", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)
	svcC := NewMicroservice("C", 1, patterns.NewRoundRobinLoadBalancer(), nil, net)

	svcA.AddOperation(&Operation{
		Name:   "op",
		Demand: 1,
		Dependencies: []Dependency{
			{Target: sim.OperationRef{Service: "B", Operation: "op"}, Probability: 1.0},
		},
	})
	svcB.AddOperation(&Operation{
		Name:   "op",
		Demand: 1,
		Dependencies: []Dependency{
			{Target: sim.OperationRef{Service: "C", Operation: "op"}, Probability: 1.0},
		},
	})
	svcC.AddOperation(&Operation{Name: "op", Demand: 1})

	cl.Register(svcA)
	cl.Register(svcB)
	cl.Register(svcC)

	ctx := sim.NewContext(0, 1, nil)
	svcA.ScaleToInstancesCount(ctx, 1)
	svcB.ScaleToInstancesCount(ctx, 1)
	svcC.ScaleToInstancesCount(ctx, 1)

	// WHEN B is killed at t=1.0, after A's request has already dispatched
	// into B but before B's dependency on C has answered
	ctx.Schedule(&killFaultEvent{BaseEvent: ctx.NewBaseEvent(1.0), svc: svcB, n: 1})

	sender := &recordingSender{}
	req := sim.NewRequest("top", sim.OperationRef{Service: "A", Operation: "op"}, sender, "ext", ctx.Now(), 0)
	svcA.Instances()[0].HandleRequest(ctx, req)

	ctx.Run(func(c *sim.Context) bool { return c.Queue.Len() == 0 })

	// THEN the request fails up to the original requester with
	// DependencyNotAvailable, and no answer ever arrives
	assert.Empty(t, sender.answers)
	require.Len(t, sender.failures, 1)
	assert.Equal(t, sim.ReasonDependencyNotAvail, sender.failures[0])
	assert.Equal(t, StateKilled, svcB.Instances()[0].State())
}
