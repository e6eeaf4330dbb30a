// Package sim provides the core discrete-event simulation engine for MiSim.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - eventqueue.go: the Event interface, BaseEvent, and the
//     (time, seq)-ordered priority queue. Concrete event types live next
//     to the component that schedules them (completionEvent in cpu.go,
//     arrivalEvent/timeoutEvent/answerEvent in network.go).
//   - context.go: Context, the explicit (non-global) bundle of
//     clock, event queue, RNG and reporter passed to every component.
//   - cpu.go: the per-instance CPU scheduler.
//   - request.go: Request, RequestAnswer, InternalRequest and
//     ServiceDependencyInstance — the request/dependency graph.
//
// # Architecture
//
// sim defines the engine primitives; the request-routing state machine
// lives in sim/cluster, resilience patterns in sim/patterns, workload and
// fault drivers in sim/experiment, and the datapoint sink in sim/report.
package sim
