package auditmetrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/vrischmann/go-metrics-influxdb"

	"github.com/adverify/adverify-server/config"
)

// Metrics is the go-metrics implementation of MetricsEngine.
type Metrics struct {
	MetricsRegistry            metrics.Registry
	ConnectionCounter          metrics.Counter
	ConnectionAcceptErrorMeter metrics.Meter
	ConnectionCloseErrorMeter  metrics.Meter
	EventMeter                 metrics.Meter
	SafariRequestMeter         metrics.Meter
	RequestTimer               metrics.Timer
	// Request meters per endpoint and status. So we can track what % of
	// traffic each endpoint carries and how much of it is rejected input.
	RequestStatuses map[RequestType]map[RequestStatus]metrics.Meter

	AuditTimer       metrics.Timer
	VerdictMeters    map[VerdictLabel]metrics.Meter
	ScoreHistogram   metrics.Histogram
	DuplicateMeter   metrics.Meter
	StackedPairMeter metrics.Meter
	StoreResultMeters map[StoreResult]metrics.Meter

	// Don't export publisherMetrics because we need helper functions here
	// to insure its properly populated dynamically
	publisherMetrics        map[string]*publisherMetrics
	publisherMetricsRWMutex sync.RWMutex
}

type publisherMetrics struct {
	requestMeter   metrics.Meter
	auditTimer     metrics.Timer
	verdictMeters  map[VerdictLabel]metrics.Meter
	scoreHistogram metrics.Histogram
}

// NewBlankMetrics creates a new Metrics object with all blank metrics
// objects. This may also be useful for testing routines to ensure that no
// metrics are written anywhere.
func NewBlankMetrics(registry metrics.Registry) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:            registry,
		ConnectionCounter:          metrics.NilCounter{},
		ConnectionAcceptErrorMeter: blankMeter,
		ConnectionCloseErrorMeter:  blankMeter,
		EventMeter:                 blankMeter,
		SafariRequestMeter:         blankMeter,
		RequestTimer:               &metrics.NilTimer{},
		RequestStatuses:            make(map[RequestType]map[RequestStatus]metrics.Meter),

		AuditTimer:        &metrics.NilTimer{},
		VerdictMeters:     make(map[VerdictLabel]metrics.Meter),
		ScoreHistogram:    &metrics.NilHistogram{},
		DuplicateMeter:    blankMeter,
		StackedPairMeter:  blankMeter,
		StoreResultMeters: make(map[StoreResult]metrics.Meter),

		publisherMetrics: make(map[string]*publisherMetrics),
	}
	for _, t := range RequestTypes() {
		newMetrics.RequestStatuses[t] = make(map[RequestStatus]metrics.Meter)
		for _, s := range RequestStatuses() {
			newMetrics.RequestStatuses[t][s] = blankMeter
		}
	}
	for _, v := range VerdictLabels() {
		newMetrics.VerdictMeters[v] = blankMeter
	}
	for _, r := range StoreResults() {
		newMetrics.StoreResultMeters[r] = blankMeter
	}
	return newMetrics
}

// NewMetrics creates a new Metrics object with needed metrics defined.
func NewMetrics(registry metrics.Registry) *Metrics {
	newMetrics := NewBlankMetrics(registry)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.ConnectionAcceptErrorMeter = metrics.GetOrRegisterMeter("connection_accept_errors", registry)
	newMetrics.ConnectionCloseErrorMeter = metrics.GetOrRegisterMeter("connection_close_errors", registry)
	newMetrics.EventMeter = metrics.GetOrRegisterMeter("scan_events", registry)
	newMetrics.SafariRequestMeter = metrics.GetOrRegisterMeter("safari_requests", registry)
	newMetrics.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)
	for typ, statusMap := range newMetrics.RequestStatuses {
		for stat := range statusMap {
			statusMap[stat] = metrics.GetOrRegisterMeter("requests."+string(stat)+"."+string(typ), registry)
		}
	}

	newMetrics.AuditTimer = metrics.GetOrRegisterTimer("audit_time", registry)
	for _, v := range VerdictLabels() {
		newMetrics.VerdictMeters[v] = metrics.GetOrRegisterMeter("verdicts."+string(v), registry)
	}
	newMetrics.ScoreHistogram = metrics.GetOrRegisterHistogram("verdict_scores", registry, metrics.NewExpDecaySample(1028, 0.015))
	newMetrics.DuplicateMeter = metrics.GetOrRegisterMeter("duplicates_suppressed", registry)
	newMetrics.StackedPairMeter = metrics.GetOrRegisterMeter("stacked_pairs", registry)
	for _, r := range StoreResults() {
		newMetrics.StoreResultMeters[r] = metrics.GetOrRegisterMeter("datastore."+string(r), registry)
	}
	return newMetrics
}

// Export begins exporting all the metrics to InfluxDB. This blocks
// indefinitely, so it should probably be run inside a goroutine.
func (me *Metrics) Export(cfg config.Metrics) {
	influxdb.InfluxDB(
		me.MetricsRegistry, // metrics registry
		time.Second*10,     // interval
		cfg.Host,           // the InfluxDB url
		cfg.Database,       // your InfluxDB database
		cfg.Username,       // your InfluxDB user
		cfg.Password,       // your InfluxDB password
	)
}

// getPublisherMetrics gets or registers the metrics for publisher "id".
// There is no blank variant as all publisher metrics are generated
// dynamically.
func (me *Metrics) getPublisherMetrics(id string) *publisherMetrics {
	var pm *publisherMetrics
	var ok bool

	me.publisherMetricsRWMutex.RLock()
	pm, ok = me.publisherMetrics[id]
	me.publisherMetricsRWMutex.RUnlock()

	if ok {
		return pm
	}

	me.publisherMetricsRWMutex.Lock()
	defer me.publisherMetricsRWMutex.Unlock()

	pm, ok = me.publisherMetrics[id]
	if ok {
		return pm
	}
	pm = &publisherMetrics{}
	pm.requestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("publisher.%s.requests", id), me.MetricsRegistry)
	pm.auditTimer = metrics.GetOrRegisterTimer(fmt.Sprintf("publisher.%s.audit_time", id), me.MetricsRegistry)
	pm.scoreHistogram = metrics.GetOrRegisterHistogram(fmt.Sprintf("publisher.%s.verdict_scores", id), me.MetricsRegistry, metrics.NewExpDecaySample(1028, 0.015))
	pm.verdictMeters = make(map[VerdictLabel]metrics.Meter, len(VerdictLabels()))
	for _, v := range VerdictLabels() {
		pm.verdictMeters[v] = metrics.GetOrRegisterMeter(fmt.Sprintf("publisher.%s.verdicts.%s", id, string(v)), me.MetricsRegistry)
	}

	me.publisherMetrics[id] = pm

	return pm
}

// Implement the MetricsEngine interface

func (me *Metrics) RecordConnectionAccept(success bool) {
	if success {
		me.ConnectionCounter.Inc(1)
	} else {
		me.ConnectionAcceptErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordConnectionClose(success bool) {
	if success {
		me.ConnectionCounter.Dec(1)
	} else {
		me.ConnectionCloseErrorMeter.Mark(1)
	}
}

func (me *Metrics) RecordRequest(labels Labels) {
	me.RequestStatuses[labels.RType][labels.RequestStatus].Mark(1)
	if labels.Browser == BrowserSafari {
		me.SafariRequestMeter.Mark(1)
	}
	if labels.PubID != "" {
		me.getPublisherMetrics(labels.PubID).requestMeter.Mark(1)
	}
}

func (me *Metrics) RecordRequestTime(labels Labels, length time.Duration) {
	// Only record times for successful requests, as we don't have labels to
	// screen out bad requests which will skew the numbers.
	if labels.RequestStatus == RequestStatusOK {
		me.RequestTimer.Update(length)
	}
}

func (me *Metrics) RecordScanEvents(labels Labels, numEvents int) {
	me.EventMeter.Mark(int64(numEvents))
}

func (me *Metrics) RecordAuditTime(labels ScanLabels, length time.Duration) {
	me.AuditTimer.Update(length)
	if labels.PubID != "" {
		me.getPublisherMetrics(labels.PubID).auditTimer.Update(length)
	}
}

func (me *Metrics) RecordVerdict(labels ScanLabels) {
	if meter, ok := me.VerdictMeters[labels.Verdict]; ok {
		meter.Mark(1)
	}
	if labels.PubID != "" {
		if meter, ok := me.getPublisherMetrics(labels.PubID).verdictMeters[labels.Verdict]; ok {
			meter.Mark(1)
		}
	}
}

func (me *Metrics) RecordVerdictScore(labels ScanLabels, score int) {
	me.ScoreHistogram.Update(int64(score))
	if labels.PubID != "" {
		me.getPublisherMetrics(labels.PubID).scoreHistogram.Update(int64(score))
	}
}

func (me *Metrics) RecordDuplicates(labels ScanLabels, suppressed int) {
	me.DuplicateMeter.Mark(int64(suppressed))
}

func (me *Metrics) RecordStackedPairs(labels ScanLabels, pairs int) {
	me.StackedPairMeter.Mark(int64(pairs))
}

func (me *Metrics) RecordStoreResult(result StoreResult, inc int) {
	if meter, ok := me.StoreResultMeters[result]; ok {
		meter.Mark(int64(inc))
	}
}
