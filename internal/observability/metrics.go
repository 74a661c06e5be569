package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "medanalyzer"

// Metrics holds the service's Prometheus instruments.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	BackendAttemptsTotal    *prometheus.CounterVec
	BackendProbesTotal      *prometheus.CounterVec
	TurnsTotal              *prometheus.CounterVec
	TurnDurationSeconds     *prometheus.HistogramVec
	TimeToFirstFragment     prometheus.Histogram
	GuardrailHitsTotal      *prometheus.CounterVec
	SynthesisTotal          *prometheus.CounterVec
	WorkerTasksTotal        *prometheus.CounterVec
	EventsPublishedTotal    *prometheus.CounterVec
	SubscribersActive       prometheus.Gauge
	SubscribersDroppedTotal *prometheus.CounterVec
	ReportsTotal            *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		BackendAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "attempts_total",
				Help:      "Backend call attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		BackendProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "probes_total",
				Help:      "Backend reachability probes by result",
			},
			[]string{"reachable"},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "orchestrator",
				Name:      "turns_total",
				Help:      "Assistant turns by route and final state",
			},
			[]string{"route", "outcome"},
		),
		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "orchestrator",
				Name:      "turn_duration_seconds",
				Help:      "Time from turn start to finalization",
				Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"route"},
		),
		TimeToFirstFragment: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "orchestrator",
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from backend call to first streamed fragment",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),
		GuardrailHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "guardrail",
				Name:      "hits_total",
				Help:      "Output substitutions by category",
			},
			[]string{"category"},
		),
		SynthesisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tts",
				Name:      "synthesis_total",
				Help:      "Speech synthesis runs by outcome",
			},
			[]string{"outcome"},
		),
		WorkerTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "worker",
				Name:      "tasks_total",
				Help:      "Background tasks by outcome",
			},
			[]string{"outcome"},
		),
		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events handed to subscribers by type",
			},
			[]string{"type"},
		),
		SubscribersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "events",
				Name:      "subscribers_active",
				Help:      "Currently connected event subscribers",
			},
		),
		SubscribersDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "events",
				Name:      "subscribers_dropped_total",
				Help:      "Subscribers removed by reason",
			},
			[]string{"reason"},
		),
		ReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "reports",
				Name:      "finished_total",
				Help:      "Batch reports by final status",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) BackendAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.BackendAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) BackendProbe(reachable bool) {
	if m == nil {
		return
	}
	m.BackendProbesTotal.WithLabelValues(strconv.FormatBool(reachable)).Inc()
}

func (m *Metrics) TurnFinished(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(route, outcome).Inc()
	m.TurnDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) FirstFragment(d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstFragment.Observe(d.Seconds())
}

func (m *Metrics) GuardrailHit(category string) {
	if m == nil {
		return
	}
	m.GuardrailHitsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) Synthesis(outcome string) {
	if m == nil {
		return
	}
	m.SynthesisTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WorkerTask(outcome string) {
	if m == nil {
		return
	}
	m.WorkerTasksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.SubscribersActive.Inc()
}

func (m *Metrics) SubscriberRemoved(reason string) {
	if m == nil {
		return
	}
	m.SubscribersActive.Dec()
	m.SubscribersDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReportFinished(status string) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(status).Inc()
}
