package auditmetrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsEngineMock is mock for the MetricsEngine interface
type MetricsEngineMock struct {
	mock.Mock
}

// RecordConnectionAccept mock
func (me *MetricsEngineMock) RecordConnectionAccept(success bool) {
	me.Called(success)
	return
}

// RecordConnectionClose mock
func (me *MetricsEngineMock) RecordConnectionClose(success bool) {
	me.Called(success)
	return
}

// RecordRequest mock
func (me *MetricsEngineMock) RecordRequest(labels Labels) {
	me.Called(labels)
	return
}

// RecordRequestTime mock
func (me *MetricsEngineMock) RecordRequestTime(labels Labels, length time.Duration) {
	me.Called(labels, length)
	return
}

// RecordScanEvents mock
func (me *MetricsEngineMock) RecordScanEvents(labels Labels, numEvents int) {
	me.Called(labels, numEvents)
	return
}

// RecordAuditTime mock
func (me *MetricsEngineMock) RecordAuditTime(labels ScanLabels, length time.Duration) {
	me.Called(labels, length)
	return
}

// RecordVerdict mock
func (me *MetricsEngineMock) RecordVerdict(labels ScanLabels) {
	me.Called(labels)
	return
}

// RecordVerdictScore mock
func (me *MetricsEngineMock) RecordVerdictScore(labels ScanLabels, score int) {
	me.Called(labels, score)
	return
}

// RecordDuplicates mock
func (me *MetricsEngineMock) RecordDuplicates(labels ScanLabels, suppressed int) {
	me.Called(labels, suppressed)
	return
}

// RecordStackedPairs mock
func (me *MetricsEngineMock) RecordStackedPairs(labels ScanLabels, pairs int) {
	me.Called(labels, pairs)
	return
}

// RecordStoreResult mock
func (me *MetricsEngineMock) RecordStoreResult(result StoreResult, inc int) {
	me.Called(result, inc)
	return
}
