// Package report provides the append-only datapoint sink the simulation
// kernel and everything built on top of it write to (§6, "Reporter Sink").
// This package has no dependency on sim/ or sim/cluster/ — it stores pure
// data, mirroring the teacher's sim/trace package's
// "no dependency on sim/ or sim/cluster/" convention.
package report

import "fmt"

// Datapoint is a single (series, time, value) triple (§3 Data Model,
// §6 Outputs). Value is numeric for continuous series (e.g. queue
// depth) or a string label for state-transition series.
type Datapoint struct {
	Series string
	Time   float64
	Value  any
}

// Sink is the append-only collection of datapoints produced over the
// course of a run. It satisfies sim.Reporter.
type Sink struct {
	points []Datapoint
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{points: make([]Datapoint, 0, 1024)}
}

// Record appends one datapoint. Implements sim.Reporter.
func (s *Sink) Record(series string, time float64, value any) {
	s.points = append(s.points, Datapoint{Series: series, Time: time, Value: value})
}

// All returns every datapoint recorded so far, in emission order.
func (s *Sink) All() []Datapoint {
	return s.points
}

// Len reports how many datapoints have been recorded.
func (s *Sink) Len() int { return len(s.points) }

// Series returns only the datapoints recorded under the given series
// name, in emission order.
func (s *Sink) Series(name string) []Datapoint {
	out := make([]Datapoint, 0)
	for _, p := range s.points {
		if p.Series == name {
			out = append(out, p)
		}
	}
	return out
}

// The following build the stable series names used throughout sim/cluster
// and sim/experiment, kept here so every caller shares one canonical
// naming scheme next to the sink that stores them.

// InstanceStateSeries names the per-instance lifecycle-state series.
func InstanceStateSeries(instanceID string) string {
	return fmt.Sprintf("I[%s]_State", instanceID)
}

// InstanceRequestsInSystemSeries names the per-instance in-flight-request
// count series.
func InstanceRequestsInSystemSeries(instanceID string) string {
	return fmt.Sprintf("I[%s]_Requests_InSystem", instanceID)
}

// ServiceInstancesRunningSeries names the per-service running-instance
// count series the Microservice emits on every scaling decision.
func ServiceInstancesRunningSeries(serviceName string) string {
	return fmt.Sprintf("S[%s]_Instances_Running", serviceName)
}

// ServiceRelativeWorkDemandSeries names the per-service aggregate relative
// work demand series the autoscaler reads and reports on every tick.
func ServiceRelativeWorkDemandSeries(serviceName string) string {
	return fmt.Sprintf("S[%s]_RelativeWorkDemand", serviceName)
}

// GeneratorRequestsSentSeries names the count of requests a load
// generator has emitted so far.
func GeneratorRequestsSentSeries(name string) string {
	return fmt.Sprintf("G[%s]_Requests_Sent", name)
}

// GeneratorRequestsCompletedSeries names the count of a load generator's
// requests that answered successfully.
func GeneratorRequestsCompletedSeries(name string) string {
	return fmt.Sprintf("G[%s]_Requests_Completed", name)
}

// GeneratorRequestsFailedSeries names the failure-reason label series for
// a load generator's requests that never answered.
func GeneratorRequestsFailedSeries(name string) string {
	return fmt.Sprintf("G[%s]_Requests_Failed", name)
}
