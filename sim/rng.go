package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a simulation run and controls all
// randomness drawn during it (§5: determinism given a fixed seed).
type SimulationKey struct {
	Seed int64
}

// NewSimulationKey builds a SimulationKey from a single experiment seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey{Seed: seed}
}

// PartitionedRNG provides isolated RNG streams per subsystem so that, e.g.,
// the load balancer's "random" strategy, the retry jitter and the
// kill-victim selector each draw from their own deterministic stream —
// adding or removing draws in one subsystem never perturbs another's
// sequence (§5 Determinism).
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a partitioned RNG rooted at key.Seed.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: key.Seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the *rand.Rand for the named subsystem, creating it
// lazily. Repeated calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// ForInstance returns the RNG stream scoped to one microservice instance.
// No pattern draws from it; retry jitter uses the shared
// SubsystemRetryJitter stream.
func (p *PartitionedRNG) ForInstance(id string) *rand.Rand {
	return p.ForSubsystem("instance_" + id)
}

// deriveSeed derives an order-independent subsystem seed: XOR-ing the
// master seed with a hash of the subsystem name means the set of
// subsystems that happen to be touched, and in what order, never changes
// any individual subsystem's stream.
func (p *PartitionedRNG) deriveSeed(subsystem string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(subsystem))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem name constants for the streams MiSim's core and patterns draw
// from. SubsystemAutoscaler is reserved: the autoscaler draws no random
// numbers.
const (
	SubsystemLoadBalancer   = "loadbalancer"
	SubsystemAutoscaler     = "autoscaler"
	SubsystemChaos          = "chaos"
	SubsystemRetryJitter    = "retry_jitter"
	SubsystemWorkload       = "workload"
	SubsystemDependencyRoll = "dependency_probability"
	SubsystemFault          = "fault"
)
