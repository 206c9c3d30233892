package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all production-service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka / outbox metrics
	KafkaEventsPublished  *prometheus.CounterVec
	KafkaPublishDuration  *prometheus.HistogramVec
	OutboxPending         prometheus.Gauge
	OutboxRetries         *prometheus.CounterVec
	OutboxPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Temporal metrics
	ActivitiesCompleted *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec

	// Business metrics
	BatchesCreated          *prometheus.CounterVec
	BatchTransitions        *prometheus.CounterVec
	QualityChecksRecorded   *prometheus.CounterVec
	Reconciliations         *prometheus.CounterVec
	ReconciliationDuration  prometheus.Histogram
	ReconciliationCostDrift prometheus.Histogram

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "mealprogram",
	}
}

// New creates a new Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}
	ns := config.Namespace

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)
	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished outbox events seen on the last poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_retries_total", Help: "Outbox publish retries"},
		[]string{"service", "event_type"},
	)
	m.OutboxPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Outbox relay publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "event_type", "status"},
	)

	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations"},
		[]string{"service", "collection", "operation", "status"},
	)
	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.ActivitiesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "temporal_activities_completed_total", Help: "Total number of Temporal activities completed"},
		[]string{"service", "activity_type", "status"},
	)
	m.ActivityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "temporal_activity_duration_seconds",
			Help:      "Temporal activity duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"service", "activity_type"},
	)

	m.BatchesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "batches_created_total", Help: "Production batches created"},
		[]string{"service", "program"},
	)
	m.BatchTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "batch_transitions_total", Help: "Batch status transitions committed"},
		[]string{"service", "from", "to"},
	)
	m.QualityChecksRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "quality_checks_recorded_total", Help: "Quality checks recorded"},
		[]string{"service", "check_type", "passed"},
	)
	m.Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "reconciliations_total", Help: "Cost and stock reconciliation outcomes"},
		[]string{"service", "outcome"},
	)
	m.ReconciliationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "reconciliation_duration_seconds",
		Help:        "Reconciliation duration including collaborator lookups",
		Buckets:     []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.ReconciliationCostDrift = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "reconciliation_cost_variance_percent",
		Help:        "Realised cost variance against the menu estimate",
		Buckets:     []float64{-50, -25, -10, -5, 0, 5, 10, 25, 50, 100},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.OutboxRetries,
		m.OutboxPublishDuration,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.ActivitiesCompleted,
		m.ActivityDuration,
		m.BatchesCreated,
		m.BatchTransitions,
		m.QualityChecksRecorded,
		m.Reconciliations,
		m.ReconciliationDuration,
		m.ReconciliationCostDrift,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() { m.HTTPRequestsInFlight.Inc() }

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.HTTPRequestsInFlight.Dec() }

// RecordKafkaPublish records a Kafka publish attempt
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetOutboxPending sets the number of unpublished outbox events
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	m.OutboxPublishDuration.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Observe(duration.Seconds())
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordActivityCompleted records a Temporal activity completion
func (m *Metrics) RecordActivityCompleted(activityType string, success bool, duration time.Duration) {
	m.ActivitiesCompleted.WithLabelValues(m.serviceName, activityType, statusLabel(success)).Inc()
	m.ActivityDuration.WithLabelValues(m.serviceName, activityType).Observe(duration.Seconds())
}

// RecordBatchCreated records a batch creation
func (m *Metrics) RecordBatchCreated(programID string) {
	m.BatchesCreated.WithLabelValues(m.serviceName, programID).Inc()
}

// RecordBatchTransition records a committed status transition
func (m *Metrics) RecordBatchTransition(from, to string) {
	m.BatchTransitions.WithLabelValues(m.serviceName, from, to).Inc()
}

// RecordQualityCheck records a quality check
func (m *Metrics) RecordQualityCheck(checkType string, passed bool) {
	m.QualityChecksRecorded.WithLabelValues(m.serviceName, checkType, strconv.FormatBool(passed)).Inc()
}

// RecordReconciliation records a reconciliation outcome (reconciled, replayed, deferred, failed)
func (m *Metrics) RecordReconciliation(outcome string, duration time.Duration) {
	m.Reconciliations.WithLabelValues(m.serviceName, outcome).Inc()
	m.ReconciliationDuration.Observe(duration.Seconds())
}

// ObserveCostVariance records the realised cost variance percentage
func (m *Metrics) ObserveCostVariance(pct float64) {
	m.ReconciliationCostDrift.Observe(pct)
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}
