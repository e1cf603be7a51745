package prometheusmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/config"
)

// Metrics defines the actual Prometheus metrics we will be using.
// Satisfies interface auditmetrics.MetricsEngine
type Metrics struct {
	Registry     *prometheus.Registry
	connCounter  prometheus.Gauge
	connError    *prometheus.CounterVec
	scanEvents   *prometheus.CounterVec
	requests     *prometheus.CounterVec
	reqTimer     *prometheus.HistogramVec
	auditTimer   *prometheus.HistogramVec
	verdicts     *prometheus.CounterVec
	scores       *prometheus.HistogramVec
	duplicates   *prometheus.CounterVec
	stackedPairs *prometheus.CounterVec
	storeResults *prometheus.CounterVec
}

// NewMetrics constructs the Prometheus metrics vectors and registers them on
// a fresh registry. Needs to be fed the prometheus config.
func NewMetrics(cfg config.Prometheus) *Metrics {
	// define the buckets for timers
	timerBuckets := prometheus.LinearBuckets(0.05, 0.05, 20)
	timerBuckets = append(timerBuckets, []float64{1.5, 2.0, 3.0, 5.0, 10.0, 50.0}...)

	standardLabelNames := []string{"type", "pubid", "browser", "status"}
	scanLabelNames := []string{"pubid", "verdict", "classification"}

	metrics := Metrics{}
	metrics.Registry = prometheus.NewRegistry()
	metrics.connCounter = newConnCounter(cfg)
	metrics.Registry.MustRegister(metrics.connCounter)
	metrics.connError = newCounter(cfg, "connection_errors_total",
		"Errors reported on the connections coming in.",
		[]string{"ErrorType"},
	)
	metrics.Registry.MustRegister(metrics.connError)
	metrics.scanEvents = newCounter(cfg, "scan_events_total",
		"Total number of collector events accepted for audit.",
		standardLabelNames,
	)
	metrics.Registry.MustRegister(metrics.scanEvents)
	metrics.requests = newCounter(cfg, "requests_total",
		"Total number of requests made to the audit server.",
		standardLabelNames,
	)
	metrics.Registry.MustRegister(metrics.requests)
	metrics.reqTimer = newHistogram(cfg, "request_time_seconds",
		"Seconds to resolve each incoming request.",
		standardLabelNames, timerBuckets,
	)
	metrics.Registry.MustRegister(metrics.reqTimer)
	metrics.auditTimer = newHistogram(cfg, "audit_time_seconds",
		"Seconds to run the audit pipeline over one scan.",
		scanLabelNames, timerBuckets,
	)
	metrics.Registry.MustRegister(metrics.auditTimer)
	metrics.verdicts = newCounter(cfg, "verdicts_total",
		"Number of completed audits by verdict.",
		scanLabelNames,
	)
	metrics.Registry.MustRegister(metrics.verdicts)
	metrics.scores = newHistogram(cfg, "verdict_scores",
		"Severity scores of completed audits.",
		scanLabelNames, prometheus.LinearBuckets(5, 5, 24),
	)
	metrics.Registry.MustRegister(metrics.scores)
	metrics.duplicates = newCounter(cfg, "duplicates_suppressed_total",
		"Number of duplicate ad events suppressed by the dedup ledger.",
		scanLabelNames,
	)
	metrics.Registry.MustRegister(metrics.duplicates)
	metrics.stackedPairs = newCounter(cfg, "stacked_pairs_total",
		"Number of overlapping ad frame pairs found by geometry analysis.",
		scanLabelNames,
	)
	metrics.Registry.MustRegister(metrics.stackedPairs)
	metrics.storeResults = newCounter(cfg, "datastore_lookups_total",
		"Publisher config lookups by cache outcome.",
		[]string{"result"},
	)
	metrics.Registry.MustRegister(metrics.storeResults)

	return &metrics
}

func newConnCounter(cfg config.Prometheus) prometheus.Gauge {
	opts := prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "active_connections",
		Help:      "Current number of active (open) connections.",
	}
	return prometheus.NewGauge(opts)
}

func newCounter(cfg config.Prometheus, name string, help string, labels []string) *prometheus.CounterVec {
	opts := prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
	}
	return prometheus.NewCounterVec(opts, labels)
}

func newHistogram(cfg config.Prometheus, name string, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	opts := prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
	return prometheus.NewHistogramVec(opts, labels)
}

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.connCounter.Inc()
	} else {
		me.connError.WithLabelValues("accept_error").Inc()
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.connCounter.Dec()
	} else {
		me.connError.WithLabelValues("close_error").Inc()
	}
}

func (me *Metrics) RecordRequest(labels auditmetrics.Labels) {
	me.requests.With(resolveLabels(labels)).Inc()
}

func (me *Metrics) RecordRequestTime(labels auditmetrics.Labels, length time.Duration) {
	time := float64(length) / float64(time.Second)
	me.reqTimer.With(resolveLabels(labels)).Observe(time)
}

func (me *Metrics) RecordScanEvents(labels auditmetrics.Labels, numEvents int) {
	me.scanEvents.With(resolveLabels(labels)).Add(float64(numEvents))
}

func (me *Metrics) RecordAuditTime(labels auditmetrics.ScanLabels, length time.Duration) {
	time := float64(length) / float64(time.Second)
	me.auditTimer.With(resolveScanLabels(labels)).Observe(time)
}

func (me *Metrics) RecordVerdict(labels auditmetrics.ScanLabels) {
	me.verdicts.With(resolveScanLabels(labels)).Inc()
}

func (me *Metrics) RecordVerdictScore(labels auditmetrics.ScanLabels, score int) {
	me.scores.With(resolveScanLabels(labels)).Observe(float64(score))
}

func (me *Metrics) RecordDuplicates(labels auditmetrics.ScanLabels, suppressed int) {
	me.duplicates.With(resolveScanLabels(labels)).Add(float64(suppressed))
}

func (me *Metrics) RecordStackedPairs(labels auditmetrics.ScanLabels, pairs int) {
	me.stackedPairs.With(resolveScanLabels(labels)).Add(float64(pairs))
}

func (me *Metrics) RecordStoreResult(result auditmetrics.StoreResult, inc int) {
	me.storeResults.WithLabelValues(string(result)).Add(float64(inc))
}

func resolveLabels(labels auditmetrics.Labels) prometheus.Labels {
	return prometheus.Labels{
		"type":    string(labels.RType),
		"pubid":   labels.PubID,
		"browser": string(labels.Browser),
		"status":  string(labels.RequestStatus),
	}
}

func resolveScanLabels(labels auditmetrics.ScanLabels) prometheus.Labels {
	return prometheus.Labels{
		"pubid":          labels.PubID,
		"verdict":        string(labels.Verdict),
		"classification": labels.Classification,
	}
}
