package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the
// scheduling core. The embedder mounts Handler() wherever it serves
// metrics from.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	optimizationRuns     *prometheus.CounterVec
	optimizationDuration prometheus.Histogram
	sessionsAssigned     prometheus.Counter
	clientsUnassigned    prometheus.Counter
	conflictsDetected    *prometheus.CounterVec
	publishAttempts      *prometheus.CounterVec
}

// NewMetricsService registers the core collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	optimizationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_optimization_runs_total",
		Help: "Total optimization runs by outcome",
	}, []string{"outcome"})

	optimizationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduling_optimization_duration_seconds",
		Help:    "Duration of optimization runs",
		Buckets: prometheus.DefBuckets,
	})

	sessionsAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_sessions_assigned_total",
		Help: "Total sessions placed by the optimizer",
	})

	clientsUnassigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduling_clients_unassigned_total",
		Help: "Total clients left below quota by optimization runs",
	})

	conflictsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_conflicts_detected_total",
		Help: "Conflicts found by detection runs, by type",
	}, []string{"type", "severity"})

	publishAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_publish_attempts_total",
		Help: "Publish attempts by outcome",
	}, []string{"outcome"})

	registry.MustRegister(optimizationRuns, optimizationDuration, sessionsAssigned, clientsUnassigned, conflictsDetected, publishAttempts)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		optimizationRuns:     optimizationRuns,
		optimizationDuration: optimizationDuration,
		sessionsAssigned:     sessionsAssigned,
		clientsUnassigned:    clientsUnassigned,
		conflictsDetected:    conflictsDetected,
		publishAttempts:      publishAttempts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveOptimizationRun records one completed run.
func (m *MetricsService) ObserveOptimizationRun(duration time.Duration, result *models.OptimizationResult) {
	if m == nil || result == nil {
		return
	}
	outcome := "partial"
	if result.Success {
		outcome = "success"
	}
	m.optimizationRuns.WithLabelValues(outcome).Inc()
	m.optimizationDuration.Observe(duration.Seconds())
	m.sessionsAssigned.Add(float64(result.Metrics.TotalSessions))
	m.clientsUnassigned.Add(float64(len(result.UnassignedClients)))
}

// ObserveConflictDetection records detected conflicts by type.
func (m *MetricsService) ObserveConflictDetection(conflicts []models.ScheduleConflict) {
	if m == nil {
		return
	}
	for _, conflict := range conflicts {
		m.conflictsDetected.WithLabelValues(string(conflict.Type), string(conflict.Severity)).Inc()
	}
}

// ObservePublish records a publish attempt.
func (m *MetricsService) ObservePublish(ok bool) {
	if m == nil {
		return
	}
	outcome := "refused"
	if ok {
		outcome = "published"
	}
	m.publishAttempts.WithLabelValues(outcome).Inc()
}
