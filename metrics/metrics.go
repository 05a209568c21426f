package metrics

import (
	"time"

	"github.com/crmarques/remotable/faults"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remotable"

// Metrics holds the counters shared by the remote gateway and the
// reconcilers. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	remoteRequests      *prometheus.CounterVec
	remoteDuration      *prometheus.HistogramVec
	syncFetches         *prometheus.CounterVec
	syncWrites          *prometheus.CounterVec
	duplicateRecoveries *prometheus.CounterVec
	coalescedFetches    *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Remote requests by HTTP method and response status.",
		}, []string{"method", "status"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Remote request latency by HTTP method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		syncFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "fetches_total",
			Help:      "Fetch decisions by record type and outcome.",
		}, []string{"record_type", "outcome"}),
		syncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "writes_total",
			Help:      "Remote writes by record type, operation and outcome.",
		}, []string{"record_type", "operation", "outcome"}),
		duplicateRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duplicate_recoveries_total",
			Help:      "Creates that lost a unique-key race and re-read the winning row.",
		}, []string{"record_type"}),
		coalescedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "coalesced_fetches_total",
			Help:      "Fetches served by an identical in-flight request.",
		}, []string{"record_type"}),
	}
	m.registry.MustRegister(
		m.remoteRequests,
		m.remoteDuration,
		m.syncFetches,
		m.syncWrites,
		m.duplicateRecoveries,
		m.coalescedFetches,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRemoteRequest(method string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(method, status).Inc()
	m.remoteDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFetch(recordType string, outcome string) {
	if m == nil {
		return
	}
	m.syncFetches.WithLabelValues(recordType, outcome).Inc()
}

func (m *Metrics) ObserveWrite(recordType string, operation string, outcome string) {
	if m == nil {
		return
	}
	m.syncWrites.WithLabelValues(recordType, operation, outcome).Inc()
}

func (m *Metrics) ObserveDuplicateRecovery(recordType string) {
	if m == nil {
		return
	}
	m.duplicateRecoveries.WithLabelValues(recordType).Inc()
}

func (m *Metrics) ObserveCoalescedFetch(recordType string) {
	if m == nil {
		return
	}
	m.coalescedFetches.WithLabelValues(recordType).Inc()
}

// WriteTextfile dumps the registry in the Prometheus text format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return faults.NewTypedError(faults.InternalError, "metrics are not configured", nil)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to write metrics textfile", err)
	}
	return nil
}
