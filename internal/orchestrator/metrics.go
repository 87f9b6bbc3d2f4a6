package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
type Metrics struct {
	tasksActive       prometheus.Gauge
	statusTransitions *prometheus.CounterVec
	streamFrames      prometheus.Counter
	parseFailures     prometheus.Counter
	eventFlushes      prometheus.Counter
	notifyFailures    *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when orchestrators are instantiated
// repeatedly (e.g. in unit tests).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Callers needing unique metric names (tests) supply a fresh registry. Any
// registration error panics, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	tasksActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "tasks_active",
		Help:      "Number of tasks currently consuming an agent stream.",
	})
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "status_transitions_total",
		Help:      "Task status transitions by resulting status.",
	}, []string{"status"})
	streamFrames := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "stream_frames_total",
		Help:      "Decoded SSE frames consumed from agent streams.",
	})
	parseFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "stream_parse_failures_total",
		Help:      "Malformed SSE frames skipped.",
	})
	eventFlushes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "event_flushes_total",
		Help:      "Full-record persistence writes of the event log.",
	})
	notifyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "orchestrator",
		Name:      "notify_failures_total",
		Help:      "Status notifications that failed, by severity.",
	}, []string{"severity"})

	collectors := []prometheus.Collector{
		tasksActive, statusTransitions, streamFrames,
		parseFailures, eventFlushes, notifyFailures,
	}
	for _, c := range collectors {
		reg.MustRegister(c)
	}

	return &Metrics{
		tasksActive:       tasksActive,
		statusTransitions: statusTransitions,
		streamFrames:      streamFrames,
		parseFailures:     parseFailures,
		eventFlushes:      eventFlushes,
		notifyFailures:    notifyFailures,
	}
}
