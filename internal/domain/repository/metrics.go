package repository

// Metrics records operational telemetry for the detection pipeline.
type Metrics interface {
	RecordDetection(target, scope string) // scope: "room" or "farm"
	RecordAnomaly(severity string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordRegistry(event string) // "hit", "miss", "coalesced", "fit_failure"
}
