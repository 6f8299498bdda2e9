package models

import (
	"fmt"
	"time"
)

// MetricName identifies one monitored sensor signal.
type MetricName string

const (
	MetricTemperature MetricName = "temperature_c"
	MetricHumidity    MetricName = "humidity_pct"
	MetricWeight      MetricName = "avg_weight_kg"
	MetricEggs        MetricName = "eggs_produced"
	MetricMortality   MetricName = "mortality_rate"
	MetricFeed        MetricName = "feed_kg_total"
	MetricWater       MetricName = "water_liters_total"
)

// AllMetrics lists every signal analyzed per room.
func AllMetrics() []MetricName {
	return []MetricName{
		MetricTemperature, MetricHumidity, MetricWeight,
		MetricEggs, MetricMortality, MetricFeed, MetricWater,
	}
}

// IsValidMetric returns true if m is a supported metric name.
func IsValidMetric(m MetricName) bool {
	for _, known := range AllMetrics() {
		if m == known {
			return true
		}
	}
	return false
}

// MetricPoint is one time-stamped sensor observation.
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// SignalWindow is an immutable snapshot of recent history for one
// (room, metric) pair. Points are ordered by timestamp ascending.
type SignalWindow struct {
	RoomID  string
	FarmID  string
	Metric  MetricName
	Points  []MetricPoint
	Days    int
	Cadence time.Duration
}

// Validate enforces the window invariant: timestamps strictly increasing.
func (w *SignalWindow) Validate() error {
	for i := 1; i < len(w.Points); i++ {
		if !w.Points[i].Timestamp.After(w.Points[i-1].Timestamp) {
			return fmt.Errorf("window %s/%s: timestamps not strictly increasing at index %d",
				w.RoomID, w.Metric, i)
		}
	}
	return nil
}

// Values returns the raw value series in window order.
func (w *SignalWindow) Values() []float64 {
	vs := make([]float64, len(w.Points))
	for i, p := range w.Points {
		vs[i] = p.Value
	}
	return vs
}

// Len returns the number of observations in the window.
func (w *SignalWindow) Len() int { return len(w.Points) }
