package performance

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launchtrack"

// Attribution outcome labels
const (
	OutcomeMatchedEmail       = "matched_email"
	OutcomeMatchedFingerprint = "matched_fingerprint"
	OutcomeMatchedExisting    = "matched_existing"
	OutcomeUnmatched          = "unmatched"
)

// Tracker owns the Prometheus collectors for one process. Each tracker has its own
// registry so tests can build isolated instances.
type Tracker struct {
	registry *prometheus.Registry

	operationDuration    *prometheus.HistogramVec
	operationErrors      *prometheus.CounterVec
	attributionOutcomes  *prometheus.CounterVec
	schedulerTransitions *prometheus.CounterVec
	schedulerTicks       *prometheus.CounterVec
	cacheLookups         *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewTracker creates a tracker with all collectors registered, including the Go runtime
// and process collectors.
func NewTracker() *Tracker {
	t := &Tracker{
		registry: prometheus.NewRegistry(),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of tracked core operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation", "success"},
		),
		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Total number of tracked operations that failed",
			},
			[]string{"operation"},
		),
		attributionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribution_outcomes_total",
				Help:      "Attribution results by outcome",
			},
			[]string{"outcome"},
		),
		schedulerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_transitions_total",
				Help:      "Launch status transitions applied by the scheduler",
			},
			[]string{"to"},
		),
		schedulerTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_ticks_total",
				Help:      "Scheduler passes by result",
			},
			[]string{"result"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metrics_cache_lookups_total",
				Help:      "Metrics cache lookups by result",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}

	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		t.operationDuration,
		t.operationErrors,
		t.attributionOutcomes,
		t.schedulerTransitions,
		t.schedulerTicks,
		t.cacheLookups,
		t.httpRequests,
		t.httpDuration,
	)
	return t
}

// StartOperation creates a marker that reports to this tracker when completed
func (t *Tracker) StartOperation(operation, accountID string) *Marker {
	return &Marker{
		Operation: operation,
		AccountID: accountID,
		StartTime: time.Now(),
		Success:   true, // Assume success until proven otherwise
		tracker:   t,
	}
}

// CompleteOperation completes marker, recording err when non-nil
func (t *Tracker) CompleteOperation(marker *Marker, err error) {
	if marker == nil {
		return
	}
	marker.SetError(err)
	marker.Complete()
}

func (t *Tracker) observe(m *Marker) {
	t.operationDuration.WithLabelValues(m.Operation, strconv.FormatBool(m.Success)).Observe(m.Duration.Seconds())
	if !m.Success {
		t.operationErrors.WithLabelValues(m.Operation).Inc()
	}
	if m.CacheHits > 0 {
		t.cacheLookups.WithLabelValues("hit").Add(float64(m.CacheHits))
	}
	if m.CacheMisses > 0 {
		t.cacheLookups.WithLabelValues("miss").Add(float64(m.CacheMisses))
	}
}

// RecordAttribution increments the attribution outcome counter
func (t *Tracker) RecordAttribution(outcome string) {
	t.attributionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSchedulerTick records one scheduler pass and the transitions it applied
func (t *Tracker) RecordSchedulerTick(activated, completed int, err error) {
	if err != nil {
		t.schedulerTicks.WithLabelValues("error").Inc()
		return
	}
	t.schedulerTicks.WithLabelValues("ok").Inc()
	t.schedulerTransitions.WithLabelValues("active").Add(float64(activated))
	t.schedulerTransitions.WithLabelValues("completed").Add(float64(completed))
}

// RecordCacheLookup increments the metrics cache hit or miss counter
func (t *Tracker) RecordCacheLookup(hit bool) {
	if hit {
		t.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	t.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (t *Tracker) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	t.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	t.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus exposition handler for this tracker's registry
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Registry exposes the underlying registry
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}
