// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal  *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec
	TaxedTransfers   prometheus.Counter
	TaxCollected     prometheus.Gauge
	ReflectionDust   prometheus.Gauge
	Holders          prometheus.Gauge
	LastSeq          prometheus.Gauge
	Launched         prometheus.Gauge
	TransferDuration prometheus.Histogram

	// Sink metrics
	SinkErrors  *prometheus.CounterVec
	SinkLatency *prometheus.HistogramVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge
	FeedDropped     prometheus.Counter

	// Mirror metrics
	MirrorApplied    prometheus.Counter
	MirrorDuplicates prometheus.Counter
	MirrorPending    prometheus.Gauge
	MirrorBackfilled prometheus.Counter

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "reflection_token"
	}
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of committed ledger operations by kind",
		}, []string{"kind"}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected ledger operations by kind and reason",
		}, []string{"kind", "reason"}),
		TaxedTransfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "taxed_transfers_total",
			Help:      "Total number of transfers that paid tax",
		}),
		TaxCollected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tax_collected_tokens",
			Help:      "Tax collected so far, in whole tokens",
		}),
		ReflectionDust: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reflection",
			Name:      "dust_tokens",
			Help:      "Undistributed reflection remainder, in whole tokens",
		}),
		Holders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "holders",
			Help:      "Number of accounts with a non-zero balance",
		}),
		LastSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_seq",
			Help:      "Sequence number of the last journaled operation",
		}),
		Launched: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "launched",
			Help:      "1 once trading has been launched",
		}),
		TransferDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfer_duration_seconds",
			Help:      "Transfer handling time including sinks, in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Total number of failed sink writes by sink",
		}, []string{"sink"}),
		SinkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "latency_seconds",
			Help:      "Sink write latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),

		FeedSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of websocket subscribers",
		}),
		FeedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_clients_total",
			Help:      "Total number of slow websocket clients dropped",
		}),

		MirrorApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "applied_total",
			Help:      "Total number of operations applied by the mirror",
		}),
		MirrorDuplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "duplicates_total",
			Help:      "Total number of already applied operations received",
		}),
		MirrorPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "pending",
			Help:      "Operations buffered behind a seq gap",
		}),
		MirrorBackfilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "backfilled_total",
			Help:      "Total number of operations fetched from the upstream journal",
		}),

		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation counts a committed operation.
func (m *Metrics) RecordOperation(kind string, lastSeq int64) {
	m.OperationsTotal.WithLabelValues(kind).Inc()
	m.LastSeq.Set(float64(lastSeq))
}

// RecordOperationError counts a rejected operation.
func (m *Metrics) RecordOperationError(kind, reason string) {
	m.OperationErrors.WithLabelValues(kind, reason).Inc()
}

// RecordSink records a sink write and its outcome.
func (m *Metrics) RecordSink(sink string, seconds float64, err error) {
	m.SinkLatency.WithLabelValues(sink).Observe(seconds)
	if err != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// UpdateLedger refreshes the ledger state gauges. Token amounts are
// passed already scaled to whole tokens.
func (m *Metrics) UpdateLedger(taxCollected, dust float64, holders int, launched bool) {
	m.TaxCollected.Set(taxCollected)
	m.ReflectionDust.Set(dust)
	m.Holders.Set(float64(holders))
	if launched {
		m.Launched.Set(1)
	} else {
		m.Launched.Set(0)
	}
}

// TrackUptime adds elapsed seconds to UptimeSeconds every interval until
// ctx is done.
func (m *Metrics) TrackUptime(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.UptimeSeconds.Add(now.Sub(last).Seconds())
			last = now
		}
	}
}

// TrackUptime tracks uptime on the default metrics every 15 seconds.
func TrackUptime(ctx context.Context) {
	DefaultMetrics.TrackUptime(ctx, 15*time.Second)
}

// RecordOperation increments the default operations counter.
func RecordOperation(kind string, lastSeq int64) {
	DefaultMetrics.RecordOperation(kind, lastSeq)
}

// RecordSink records a sink write on the default metrics.
func RecordSink(sink string, seconds float64, err error) {
	DefaultMetrics.RecordSink(sink, seconds, err)
}
