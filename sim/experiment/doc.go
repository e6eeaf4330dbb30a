// Package experiment implements the experiment drivers that inject
// workload and faults over simulated time (§4.8): Limbo-style load
// generators, single-shot fault injectors (KillEvent, StartEvent,
// RestartEvent, DelayInjection), and the ATAM scenario-string compiler
// (§6). Mirrors the teacher's sim/workload package in spirit —
// self-scheduling arrival generators built on the kernel primitives in
// sim — but experiment additionally owns the chaos layer the teacher has
// no analog for.
package experiment
