package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/misim/misim/sim"
)

func TestWatermarkAutoscaler_ScalesUpWhenDemandExceedsHigh(t *testing.T) {
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 0)

	target := a.Tick(ctx, 9, 2, 0)

	assert.Equal(t, 3, target)
}

func TestWatermarkAutoscaler_ScalesDownWhenDemandBelowLow(t *testing.T) {
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 0)

	target := a.Tick(ctx, 1, 3, 0)

	assert.Equal(t, 2, target)
}

func TestWatermarkAutoscaler_HoldsWithinWatermarkBand(t *testing.T) {
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 0)

	target := a.Tick(ctx, 5, 3, 0)

	assert.Equal(t, 3, target)
}

func TestWatermarkAutoscaler_NeverExceedsMax(t *testing.T) {
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 0)

	target := a.Tick(ctx, 100, 5, 0)

	assert.Equal(t, 5, target)
}

func TestWatermarkAutoscaler_NeverGoesBelowMin(t *testing.T) {
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 0)

	target := a.Tick(ctx, 0, 1, 0)

	assert.Equal(t, 1, target)
}

func TestWatermarkAutoscaler_RespectsCooldownBetweenAdjustments(t *testing.T) {
	// GIVEN an autoscaler with a 20-tick cooldown
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 20)

	// WHEN it scales up at t=0
	first := a.Tick(ctx, 9, 2, 0)
	assert.Equal(t, 3, first)

	// WHEN demand still calls for scaling again at t=5 (within cooldown)
	second := a.Tick(ctx, 9, first, 5)

	// THEN it holds, since the cooldown hasn't elapsed
	assert.Equal(t, first, second)

	// WHEN enough time passes (t=25, past the 20-tick cooldown from t=0)
	third := a.Tick(ctx, 9, first, 25)

	// THEN it is free to adjust again
	assert.Equal(t, first+1, third)
}

func TestWatermarkAutoscaler_FirstTickIgnoresCooldown(t *testing.T) {
	// GIVEN a freshly-created autoscaler (never adjusted) with a long
	// cooldown
	ctx := sim.NewContext(0, 1, nil)
	a := NewWatermarkAutoscaler(1, 5, 2, 8, 10, 1000)

	// WHEN the very first tick calls for scaling
	target := a.Tick(ctx, 9, 2, 0)

	// THEN it is not blocked by a cooldown that never started
	assert.Equal(t, 3, target)
}

func TestNewAutoscalingStrategy_FactoryDefaultsAndPanicsOnUnknown(t *testing.T) {
	assert.IsType(t, &WatermarkAutoscaler{}, NewAutoscalingStrategy("", 1, 5, 2, 8, 10, 0))
	assert.IsType(t, &WatermarkAutoscaler{}, NewAutoscalingStrategy("watermark", 1, 5, 2, 8, 10, 0))
	assert.Panics(t, func() { NewAutoscalingStrategy("nonexistent", 1, 5, 2, 8, 10, 0) })
}
