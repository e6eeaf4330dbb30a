// Package patterns implements the resilience-pattern interceptors that
// compose around the microservice instance and request lifecycle: Retry,
// CircuitBreaker, LoadBalancer, AutoscalingStrategy (§4.6). The package
// depends only on sim — it knows nothing about sim/cluster's concrete
// Microservice/MicroserviceInstance types, so sim/cluster can depend on
// patterns without creating a cycle.
package patterns

import (
	"fmt"

	"github.com/misim/misim/sim"
)

// InstanceView is the minimal read-only view of a microservice instance a
// LoadBalancer needs: identity, whether it's eligible for routing, and
// its current load. sim/cluster's Instance satisfies this directly.
type InstanceView interface {
	ID() string
	Running() bool
	CPUUsage() float64
}

// LoadBalancer maps an incoming request arriving at a Microservice to one
// of its RUNNING instances (§4.6, service-scoped).
type LoadBalancer interface {
	SelectInstance(ctx *sim.Context, candidates []InstanceView) (InstanceView, error)
}

// RoundRobinLoadBalancer cycles through RUNNING instances in a stable
// order.
type RoundRobinLoadBalancer struct {
	next int
}

func NewRoundRobinLoadBalancer() *RoundRobinLoadBalancer { return &RoundRobinLoadBalancer{} }

func (lb *RoundRobinLoadBalancer) SelectInstance(_ *sim.Context, candidates []InstanceView) (InstanceView, error) {
	running := runningOnly(candidates)
	if len(running) == 0 {
		return nil, sim.ErrNoAvailableInstance
	}
	chosen := running[lb.next%len(running)]
	lb.next++
	return chosen, nil
}

// RandomLoadBalancer picks uniformly at random among RUNNING instances,
// drawing from the simulation's "loadbalancer" RNG stream so routing
// stays reproducible given a fixed seed (§5 Determinism). Grounded on the
// teacher's RandomLoadBalancer (sim/loadbalancer.go), generalized from a
// fixed replica count to the live RUNNING set.
type RandomLoadBalancer struct{}

func NewRandomLoadBalancer() *RandomLoadBalancer { return &RandomLoadBalancer{} }

func (lb *RandomLoadBalancer) SelectInstance(ctx *sim.Context, candidates []InstanceView) (InstanceView, error) {
	running := runningOnly(candidates)
	if len(running) == 0 {
		return nil, sim.ErrNoAvailableInstance
	}
	rng := ctx.RNG.ForSubsystem(sim.SubsystemLoadBalancer)
	return running[rng.Intn(len(running))], nil
}

// LeastUtilizedLoadBalancer picks the RUNNING instance with the lowest
// CPUUsage(), breaking ties by candidate order for determinism.
type LeastUtilizedLoadBalancer struct{}

func NewLeastUtilizedLoadBalancer() *LeastUtilizedLoadBalancer { return &LeastUtilizedLoadBalancer{} }

func (lb *LeastUtilizedLoadBalancer) SelectInstance(_ *sim.Context, candidates []InstanceView) (InstanceView, error) {
	running := runningOnly(candidates)
	if len(running) == 0 {
		return nil, sim.ErrNoAvailableInstance
	}
	best := running[0]
	for _, inst := range running[1:] {
		if inst.CPUUsage() < best.CPUUsage() {
			best = inst
		}
	}
	return best, nil
}

func runningOnly(candidates []InstanceView) []InstanceView {
	out := make([]InstanceView, 0, len(candidates))
	for _, c := range candidates {
		if c.Running() {
			out = append(out, c)
		}
	}
	return out
}

// NewLoadBalancer creates a LoadBalancer by strategy name. Empty string
// defaults to round-robin. Panics on an unrecognized name, matching the
// teacher's named-strategy-factory convention (sim/priority.go).
func NewLoadBalancer(strategy string) LoadBalancer {
	switch strategy {
	case "", "round-robin":
		return NewRoundRobinLoadBalancer()
	case "random":
		return NewRandomLoadBalancer()
	case "least-utilized":
		return NewLeastUtilizedLoadBalancer()
	default:
		panic(fmt.Sprintf("unknown load balancer strategy %q", strategy))
	}
}
