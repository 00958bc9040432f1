// Package metrics holds the Prometheus collectors shared by the pool, the indexer and
// the replayer. Commands run to completion, so collectors live on a private registry
// that is written out as a textfile when the run ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stableswap"

// Outcomes of a pool operation.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFatal    = "fatal"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	logsIndexed      prometheus.Counter
	decodeFailures   prometheus.Counter
	indexedBlock     prometheus.Gauge
	replayResults    *prometheus.CounterVec
	reseeds          prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "operations_total",
			Help:      "Pool operations by name and outcome.",
		}, []string{"pool", "op", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "operation_seconds",
			Help:      "Time spent inside the pool critical section.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		logsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "logs_total",
			Help:      "Pool logs written by the indexer.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "decode_failures_total",
			Help:      "Pool logs with a known topic that failed to decode.",
		}),
		indexedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_block",
			Help:      "Last block the indexer completed.",
		}),
		replayResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "results_total",
			Help:      "Replayed events by status.",
		}, []string{"status"}),
		reseeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "reseeds_total",
			Help:      "Times the local pool was reloaded from chain state.",
		}),
	}
	m.registry.MustRegister(
		m.operations,
		m.operationLatency,
		m.logsIndexed,
		m.decodeFailures,
		m.indexedBlock,
		m.replayResults,
		m.reseeds,
	)
	return m
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteFile writes every collector in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) ObserveOperation(pool, op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(pool, op, outcome).Inc()
	m.operationLatency.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) AddIndexed(logs, decodeFailures int, lastBlock uint64) {
	if m == nil {
		return
	}
	m.logsIndexed.Add(float64(logs))
	m.decodeFailures.Add(float64(decodeFailures))
	m.indexedBlock.Set(float64(lastBlock))
}

func (m *Metrics) ObserveReplay(status string) {
	if m == nil {
		return
	}
	m.replayResults.WithLabelValues(status).Inc()
}

func (m *Metrics) Reseeded() {
	if m == nil {
		return
	}
	m.reseeds.Inc()
}
