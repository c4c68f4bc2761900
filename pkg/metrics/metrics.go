// Package metrics provides Prometheus metrics for the attendance kiosk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the kiosk.
type Manager struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer

	// Check-in metrics
	checkInsAccepted prometheus.Counter
	checkInsRejected *prometheus.CounterVec
	checkInsQueued   prometheus.Counter

	// Sync metrics
	syncCycles       prometheus.Counter
	mutationsApplied prometheus.Counter
	mutationsFailed  prometheus.Counter
	queueDepth       prometheus.Gauge

	// Remote backend health
	remoteUp             prometheus.Gauge
	remoteRequestLatency *prometheus.HistogramVec

	// Throttle metrics
	attemptsBlocked prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "dojo",
		subsystem: "kiosk",
		registry:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.checkInsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "checkins_accepted_total",
		Help:      "Total number of check-ins accepted (synced and pending combined)",
	})

	m.checkInsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "checkins_rejected_total",
			Help:      "Total number of check-ins rejected by reason",
		},
		[]string{"reason"},
	)

	m.checkInsQueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "checkins_queued_total",
		Help:      "Total number of check-ins accepted into the local queue while offline",
	})

	m.syncCycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_cycles_total",
		Help:      "Total number of sync cycles started",
	})

	m.mutationsApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_mutations_applied_total",
		Help:      "Total number of queued mutations replayed to the backend",
	})

	m.mutationsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_mutations_failed_total",
		Help:      "Total number of queued mutations that failed to replay",
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of pending mutations in the local queue",
	})

	m.remoteUp = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "remote_up",
		Help:      "Whether the membership backend is reachable (1) or not (0)",
	})

	m.remoteRequestLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "remote_request_duration_milliseconds",
			Help:      "Membership backend request latency in milliseconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.attemptsBlocked = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "attempts_blocked_total",
		Help:      "Total number of check-in attempts blocked by the throttle",
	})
}

// RecordCheckInAccepted increments the accepted check-ins counter.
func RecordCheckInAccepted() {
	globalManager.checkInsAccepted.Inc()
}

// RecordCheckInRejected increments the rejected check-ins counter for a reason.
func RecordCheckInRejected(reason string) {
	globalManager.checkInsRejected.WithLabelValues(reason).Inc()
}

// RecordCheckInQueued increments the queued check-ins counter.
func RecordCheckInQueued() {
	globalManager.checkInsQueued.Inc()
}

// RecordSyncCycle increments the sync cycles counter.
func RecordSyncCycle() {
	globalManager.syncCycles.Inc()
}

// RecordMutationApplied increments the applied mutations counter.
func RecordMutationApplied() {
	globalManager.mutationsApplied.Inc()
}

// RecordMutationFailed increments the failed mutations counter.
func RecordMutationFailed() {
	globalManager.mutationsFailed.Inc()
}

// UpdateQueueDepth sets the current pending mutation count.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// UpdateRemoteUp records whether the membership backend is reachable.
func UpdateRemoteUp(up bool) {
	if up {
		globalManager.remoteUp.Set(1)
	} else {
		globalManager.remoteUp.Set(0)
	}
}

// RecordRemoteRequestLatency records backend request latency for an operation.
func RecordRemoteRequestLatency(operation string, latencyMs float64) {
	globalManager.remoteRequestLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordAttemptBlocked increments the throttled attempts counter.
func RecordAttemptBlocked() {
	globalManager.attemptsBlocked.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
