package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flockwatch",
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Detection passes by target scope",
		},
		[]string{"scope"},
	)

	AnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flockwatch",
			Subsystem: "detection",
			Name:      "anomalies_total",
			Help:      "Persisted anomalies by severity",
		},
		[]string{"severity"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flockwatch",
			Subsystem: "detection",
			Name:      "errors_total",
			Help:      "Errors by pipeline stage",
		},
		[]string{"stage"},
	)

	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flockwatch",
			Subsystem: "detection",
			Name:      "latency_seconds",
			Help:      "Latency of detection operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	RegistryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flockwatch",
			Subsystem: "registry",
			Name:      "events_total",
			Help:      "Detector registry cache events",
		},
		[]string{"event"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(DetectionsTotal, AnomaliesTotal, ErrorsTotal, Latency, RegistryEvents)
	})
}

// Recorder adapts the Prometheus vectors to the repository.Metrics interface.
type Recorder struct{}

func NewRecorder() *Recorder {
	Register()
	return &Recorder{}
}

func (Recorder) RecordDetection(_, scope string) { DetectionsTotal.WithLabelValues(scope).Inc() }

func (Recorder) RecordAnomaly(severity string) { AnomaliesTotal.WithLabelValues(severity).Inc() }

func (Recorder) RecordError(stage string) { ErrorsTotal.WithLabelValues(stage).Inc() }

func (Recorder) RecordLatency(op string, seconds float64) {
	Latency.WithLabelValues(op).Observe(seconds)
}

func (Recorder) RecordRegistry(event string) { RegistryEvents.WithLabelValues(event).Inc() }
