package patterns

import "github.com/misim/misim/sim"

// AutoscalingStrategy reads aggregate relative work demand across a
// service's instances every Period and compares it to low/high
// watermarks, scaling the instance count within [Min, Max] and respecting
// a cooldown window between adjustments (§4.6, service-scoped, periodic).
type AutoscalingStrategy interface {
	// Tick computes the desired instance count given the current demand
	// signal, the current instance count, and now. Returns the same
	// currentCount if no adjustment should happen (e.g. still in
	// cooldown).
	Tick(ctx *sim.Context, demand float64, currentCount int, now float64) (targetCount int)
	Period() float64
}

// WatermarkAutoscaler scales up when demand exceeds High and down when it
// falls below Low, one instance per tick, bounded by [Min, Max] and a
// cooldown between any two adjustments.
type WatermarkAutoscaler struct {
	Min, Max         int
	Low, High        float64
	PeriodTicks      float64
	CooldownTicks    float64
	lastAdjustmentAt float64
	hasAdjusted      bool
}

// NewWatermarkAutoscaler creates an autoscaler with the given bounds,
// watermarks, period, and cooldown (all in simulation ticks).
func NewWatermarkAutoscaler(min, max int, low, high, period, cooldown float64) *WatermarkAutoscaler {
	return &WatermarkAutoscaler{Min: min, Max: max, Low: low, High: high, PeriodTicks: period, CooldownTicks: cooldown}
}

func (a *WatermarkAutoscaler) Period() float64 { return a.PeriodTicks }

// Tick implements AutoscalingStrategy.
func (a *WatermarkAutoscaler) Tick(_ *sim.Context, demand float64, currentCount int, now float64) int {
	if a.hasAdjusted && now-a.lastAdjustmentAt < a.CooldownTicks {
		return currentCount
	}
	target := currentCount
	switch {
	case demand > a.High && currentCount < a.Max:
		target = currentCount + 1
	case demand < a.Low && currentCount > a.Min:
		target = currentCount - 1
	}
	if target < a.Min {
		target = a.Min
	}
	if target > a.Max {
		target = a.Max
	}
	if target != currentCount {
		a.lastAdjustmentAt = now
		a.hasAdjusted = true
	}
	return target
}

// NewAutoscalingStrategy creates an AutoscalingStrategy by name.
// Currently only "watermark" (the default) is defined; empty string also
// defaults to it. Panics on an unrecognized name.
func NewAutoscalingStrategy(name string, min, max int, low, high, period, cooldown float64) AutoscalingStrategy {
	switch name {
	case "", "watermark":
		return NewWatermarkAutoscaler(min, max, low, high, period, cooldown)
	default:
		panic("unknown autoscaling strategy " + name)
	}
}
