package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misim/misim/sim"
	"github.com/misim/misim/sim/patterns"
	"github.com/misim/misim/sim/report"
)

func newTestMicroservice(t *testing.T, capacity float64, as patterns.AutoscalingStrategy) *Microservice {
	t.Helper()
	net := sim.NewNetwork()
	cl := NewCluster()
	svc := NewMicroservice("svc", capacity, patterns.NewRoundRobinLoadBalancer(), as, net)
	svc.AddOperation(&Operation{Name: "op", Demand: 50})
	cl.Register(svc)
	return svc
}

func TestMicroservice_ScaleToInstancesCount_ScalesDownOldestFirst(t *testing.T) {
	// GIVEN three RUNNING instances
	ctx := sim.NewContext(0, 1, nil)
	svc := newTestMicroservice(t, 1, nil)
	svc.ScaleToInstancesCount(ctx, 3)
	instances := svc.Instances()
	require.Len(t, instances, 3)

	// WHEN scaling down to one
	svc.ScaleToInstancesCount(ctx, 1)

	// THEN the two oldest instances shut down (idle, so they drain straight
	// to SHUTDOWN) while the newest stays RUNNING (§4.7 "oldest-first
	// shutdown")
	assert.Equal(t, StateShutdown, instances[0].State())
	assert.Equal(t, StateShutdown, instances[1].State())
	assert.Equal(t, StateRunning, instances[2].State())
	assert.Equal(t, 1, svc.RunningCount())
}

func TestMicroservice_KillInstances_VictimsDieAndChoiceIsDeterministic(t *testing.T) {
	build := func(seed int64) *Microservice {
		svc := newTestMicroservice(t, 1, nil)
		ctx := sim.NewContext(0, seed, nil)
		svc.ScaleToInstancesCount(ctx, 3)
		svc.KillInstances(ctx, 1)
		return svc
	}
	killed := func(svc *Microservice) []InstanceID {
		var ids []InstanceID
		for _, inst := range svc.Instances() {
			if inst.State() == StateKilled {
				ids = append(ids, inst.id)
			}
		}
		return ids
	}

	// GIVEN two identically-seeded 3-instance services
	svcA := build(7)
	svcB := build(7)

	// WHEN one victim is killed in each
	killedA := killed(svcA)
	killedB := killed(svcB)

	// THEN exactly one instance died in each, the identical seed picked the
	// identical victim (§5 determinism via the "chaos" RNG stream), and the
	// other two instances are untouched
	require.Len(t, killedA, 1)
	assert.Equal(t, killedA, killedB)
	assert.Equal(t, 2, svcA.RunningCount())
}

func TestMicroservice_KillInstances_SelectsVictimFromChaosRNGStream(t *testing.T) {
	// GIVEN three RUNNING instances
	ctx := sim.NewContext(0, 13, nil)
	svc := newTestMicroservice(t, 1, nil)
	svc.ScaleToInstancesCount(ctx, 3)
	pool := append([]InstanceID{}, svc.order...)

	// independently replay the exact draw KillInstances will make, off the
	// same seed's "chaos" subsystem stream
	independent := sim.NewPartitionedRNG(sim.NewSimulationKey(13))
	wantIdx := independent.ForSubsystem(sim.SubsystemChaos).Intn(len(pool))
	wantVictim := pool[wantIdx]

	// WHEN one instance is killed
	svc.KillInstances(ctx, 1)

	// THEN it is the one the chaos stream would deterministically pick
	assert.Equal(t, StateKilled, svc.instancesByID[wantVictim].State())
}

// TestMicroservice_Autoscaler_ScalesUpAcrossTicksNeverExceedingMax builds
// spec.md §8's "Autoscaler up" literal scenario: min=1, max=3, high=0.8,
// sustained load drives relative work demand above High for one period;
// instance count becomes 2 at the next tick, 3 at the following tick, and
// never exceeds 3. Drives the real autoscalerTickEvent machinery via
// StartAutoscaler rather than calling tickAutoscaler directly.
func TestMicroservice_Autoscaler_ScalesUpAcrossTicksNeverExceedingMax(t *testing.T) {
	as := patterns.NewWatermarkAutoscaler(1, 3, 0.2, 0.8, 10, 0)
	svc := newTestMicroservice(t, 1, as)
	sink := report.NewSink()
	ctx := sim.NewContext(35, 1, sink)

	svc.ScaleToInstancesCount(ctx, 1)
	svc.StartAutoscaler(ctx)

	// a single long-running request (demand 50 against capacity 1) keeps
	// the original instance's relative work demand above High for the
	// whole test window, since remaining demand only drops on completion
	sender := &recordingSender{}
	req := sim.NewRequest("busy", sim.OperationRef{Service: svc.Name, Operation: "op"}, sender, "gen", 0, 0)
	svc.Instances()[0].HandleRequest(ctx, req)

	// WHEN the autoscaler ticks at t=10, 20, 30
	ctx.Run(nil)

	// THEN the running-instance series climbs 1 -> 2 -> 3 and never records
	// a value past Max
	pts := sink.Series(report.ServiceInstancesRunningSeries(svc.Name))
	require.Len(t, pts, 3)
	assert.Equal(t, 1, pts[0].Value)
	assert.Equal(t, 2, pts[1].Value)
	assert.Equal(t, 3, pts[2].Value)
	assert.Equal(t, 3, svc.RunningCount())
}
