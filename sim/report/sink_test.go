package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_Record_AppendsInEmissionOrder(t *testing.T) {
	// GIVEN an empty sink
	s := NewSink()

	// WHEN three datapoints are recorded
	s.Record("a", 1, 10)
	s.Record("b", 2, "RUNNING")
	s.Record("a", 3, 20)

	// THEN All() preserves emission order and Len() matches
	require.Equal(t, 3, s.Len())
	all := s.All()
	assert.Equal(t, Datapoint{Series: "a", Time: 1, Value: 10}, all[0])
	assert.Equal(t, Datapoint{Series: "b", Time: 2, Value: "RUNNING"}, all[1])
	assert.Equal(t, Datapoint{Series: "a", Time: 3, Value: 20}, all[2])
}

func TestSink_Series_FiltersByName(t *testing.T) {
	// GIVEN a sink with interleaved series
	s := NewSink()
	s.Record("a", 1, 10)
	s.Record("b", 2, 20)
	s.Record("a", 3, 30)

	// WHEN filtering for series "a"
	got := s.Series("a")

	// THEN only its datapoints are returned, in order
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Time)
	assert.Equal(t, 3.0, got[1].Time)
}

func TestSink_Series_UnknownNameReturnsEmpty(t *testing.T) {
	s := NewSink()
	s.Record("a", 1, 10)

	got := s.Series("nope")

	assert.Empty(t, got)
}

func TestSeriesNameHelpers_ProduceStableLabels(t *testing.T) {
	// THEN each helper follows the documented Kind[name]_Metric convention
	assert.Equal(t, "I[svc-1]_State", InstanceStateSeries("svc-1"))
	assert.Equal(t, "I[svc-1]_Requests_InSystem", InstanceRequestsInSystemSeries("svc-1"))
	assert.Equal(t, "S[checkout]_Instances_Running", ServiceInstancesRunningSeries("checkout"))
	assert.Equal(t, "S[checkout]_RelativeWorkDemand", ServiceRelativeWorkDemandSeries("checkout"))
	assert.Equal(t, "G[gen1]_Requests_Sent", GeneratorRequestsSentSeries("gen1"))
	assert.Equal(t, "G[gen1]_Requests_Completed", GeneratorRequestsCompletedSeries("gen1"))
	assert.Equal(t, "G[gen1]_Requests_Failed", GeneratorRequestsFailedSeries("gen1"))
}
