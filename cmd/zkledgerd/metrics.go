// metrics.go - Prometheus metrics for the ledger daemon
package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/zerocash"
)

const namespace = "zkledger"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	submissions     *prometheus.CounterVec
	verifyDuration  prometheus.Histogram
	templateInvalid *prometheus.CounterVec
	blocksSealed    prometheus.Counter
	sealDuration    prometheus.Histogram
	pending         prometheus.Gauge
	height          prometheus.Gauge
	lastFees        prometheus.Gauge
	lastNetBalance  prometheus.Gauge
	errors          *prometheus.CounterVec
}

// NewMetrics creates and registers the daemon collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Transaction submissions by result.",
		}, []string{"result"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_verify_seconds",
			Help:      "Time spent verifying a single transaction proof.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		templateInvalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_invalid_total",
			Help:      "Block templates that failed validation, by reason.",
		}, []string{"reason"}),
		blocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_sealed_total",
			Help:      "Blocks applied to the ledger.",
		}),
		sealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_seal_seconds",
			Help:      "Time spent validating and applying a block.",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions waiting for the next block.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_height",
			Help:      "Number of applied blocks.",
		}),
		lastFees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_fees_microcredits",
			Help:      "Fees of the last sealed block.",
		}),
		lastNetBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_net_value_balance_microcredits",
			Help:      "Net value balance of the last sealed block.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Handler errors by type.",
		}, []string{"type"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions, m.verifyDuration, m.templateInvalid, m.blocksSealed, m.sealDuration,
		m.pending, m.height, m.lastFees, m.lastNetBalance, m.errors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) RecordSubmission(result string) {
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordInvalidTemplate(reason block.Reason) {
	m.templateInvalid.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) RecordSeal(rec *ledger.BlockRecord, d time.Duration) {
	m.blocksSealed.Inc()
	m.sealDuration.Observe(d.Seconds())
	m.height.Set(float64(rec.Height))
	m.lastFees.Set(float64(rec.Fees))
	m.lastNetBalance.Set(float64(rec.NetValueBalance))
}

func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

func (m *Metrics) SetHeight(h uint64) {
	m.height.Set(float64(h))
}

func (m *Metrics) RecordError(errorType string) {
	m.errors.WithLabelValues(errorType).Inc()
}

// instrumentedVerifier times every proof verification.
type instrumentedVerifier struct {
	next    block.Verifier
	metrics *Metrics
}

func (v instrumentedVerifier) VerifyTransaction(tx *zerocash.Transaction) error {
	start := time.Now()
	defer func() { v.metrics.verifyDuration.Observe(time.Since(start).Seconds()) }()
	return v.next.VerifyTransaction(tx)
}
