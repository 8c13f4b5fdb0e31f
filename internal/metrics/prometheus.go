package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "aegis"
	subsystem = "scheduler"
)

// PrometheusExporter mirrors an Aggregator's state into scrape-ready
// collectors. Every metric lives on its own registry (spec §9: "no
// process-wide singletons") rather than prometheus.DefaultRegisterer, so a
// test can spin up multiple schedulers in one process without collector
// registration panics.
type PrometheusExporter struct {
	registry *prometheus.Registry

	admittedTotal  prometheus.Counter
	rejectedTotal  *prometheus.CounterVec
	outputTokens   prometheus.Counter
	batchSize      prometheus.Histogram
	gpuUtilization prometheus.Gauge
	jainsFairness  prometheus.Gauge
	costPerMillion prometheus.Gauge
}

// NewPrometheusExporter constructs and registers the aegis_* collector set.
func NewPrometheusExporter() *PrometheusExporter {
	reg := prometheus.NewRegistry()
	return &PrometheusExporter{
		registry: reg,
		admittedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "admitted_total",
			Help:      "Total number of requests admitted past the token bucket.",
		}),
		rejectedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Total number of requests rejected, by reason.",
		}, []string{"reason"}),
		outputTokens: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "output_tokens_total",
			Help:      "Total output tokens generated across all completed batches.",
		}),
		batchSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_size",
			Help:      "Distribution of dispatched batch sizes.",
			Buckets:   []float64{1, 2, 4, 8, 12, 16, 24, 32},
		}),
		gpuUtilization: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gpu_utilization",
			Help:      "Fraction of wall-clock time the backend spent busy processing batches.",
		}),
		jainsFairness: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jains_fairness_index",
			Help:      "Jain's fairness index over per-tenant output token throughput.",
		}),
		costPerMillion: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cost_per_million_tokens_usd",
			Help:      "Estimated USD cost per million output tokens at the current throughput.",
		}),
	}
}

// Registry exposes the exporter's private registry for wiring into an
// http.Handler (promhttp.HandlerFor) in cmd/.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveAdmission updates the admitted/rejected counters from one
// admission decision.
func (p *PrometheusExporter) ObserveAdmission(admitted bool, reason RejectionReason) {
	if admitted {
		p.admittedTotal.Inc()
		return
	}
	p.rejectedTotal.WithLabelValues(string(reason)).Inc()
}

// ObserveBatch updates the batch-size histogram and output-token counter
// from one completed batch.
func (p *PrometheusExporter) ObserveBatch(batchSize int, outputTokens int) {
	p.batchSize.Observe(float64(batchSize))
	p.outputTokens.Add(float64(outputTokens))
}

// Sync republishes the gauge-valued metrics from a fresh Snapshot. Callers
// should invoke this on a timer or before every scrape.
func (p *PrometheusExporter) Sync(s Snapshot) {
	p.gpuUtilization.Set(s.GPUUtilization)
	p.jainsFairness.Set(s.JainsFairnessIndex)
	p.costPerMillion.Set(s.CostPerMillionTokensUSD)
}
