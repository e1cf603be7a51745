package auditmetrics

import (
	"time"
)

// MultiMetricsEngine logs metrics to every engine in the list.
type MultiMetricsEngine []MetricsEngine

func (me *MultiMetricsEngine) RecordConnectionAccept(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionAccept(success)
	}
}

func (me *MultiMetricsEngine) RecordConnectionClose(success bool) {
	for _, thisME := range *me {
		thisME.RecordConnectionClose(success)
	}
}

func (me *MultiMetricsEngine) RecordRequest(labels Labels) {
	for _, thisME := range *me {
		thisME.RecordRequest(labels)
	}
}

func (me *MultiMetricsEngine) RecordRequestTime(labels Labels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordRequestTime(labels, length)
	}
}

func (me *MultiMetricsEngine) RecordScanEvents(labels Labels, numEvents int) {
	for _, thisME := range *me {
		thisME.RecordScanEvents(labels, numEvents)
	}
}

func (me *MultiMetricsEngine) RecordAuditTime(labels ScanLabels, length time.Duration) {
	for _, thisME := range *me {
		thisME.RecordAuditTime(labels, length)
	}
}

func (me *MultiMetricsEngine) RecordVerdict(labels ScanLabels) {
	for _, thisME := range *me {
		thisME.RecordVerdict(labels)
	}
}

func (me *MultiMetricsEngine) RecordVerdictScore(labels ScanLabels, score int) {
	for _, thisME := range *me {
		thisME.RecordVerdictScore(labels, score)
	}
}

func (me *MultiMetricsEngine) RecordDuplicates(labels ScanLabels, suppressed int) {
	for _, thisME := range *me {
		thisME.RecordDuplicates(labels, suppressed)
	}
}

func (me *MultiMetricsEngine) RecordStackedPairs(labels ScanLabels, pairs int) {
	for _, thisME := range *me {
		thisME.RecordStackedPairs(labels, pairs)
	}
}

func (me *MultiMetricsEngine) RecordStoreResult(result StoreResult, inc int) {
	for _, thisME := range *me {
		thisME.RecordStoreResult(result, inc)
	}
}

// DummyMetricsEngine is a blank metrics engine so the rest of the code can
// record metrics without worrying about whether any backend is configured.
type DummyMetricsEngine struct{}

func (me *DummyMetricsEngine) RecordConnectionAccept(success bool) {
}

func (me *DummyMetricsEngine) RecordConnectionClose(success bool) {
}

func (me *DummyMetricsEngine) RecordRequest(labels Labels) {
}

func (me *DummyMetricsEngine) RecordRequestTime(labels Labels, length time.Duration) {
}

func (me *DummyMetricsEngine) RecordScanEvents(labels Labels, numEvents int) {
}

func (me *DummyMetricsEngine) RecordAuditTime(labels ScanLabels, length time.Duration) {
}

func (me *DummyMetricsEngine) RecordVerdict(labels ScanLabels) {
}

func (me *DummyMetricsEngine) RecordVerdictScore(labels ScanLabels, score int) {
}

func (me *DummyMetricsEngine) RecordDuplicates(labels ScanLabels, suppressed int) {
}

func (me *DummyMetricsEngine) RecordStackedPairs(labels ScanLabels, pairs int) {
}

func (me *DummyMetricsEngine) RecordStoreResult(result StoreResult, inc int) {
}
