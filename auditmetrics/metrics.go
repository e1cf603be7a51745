package auditmetrics

import (
	"time"
)

// Labels defines the labels that can be attached to the request metrics.
type Labels struct {
	RType         RequestType
	PubID         string // publisher ids come from the wire, so we cannot compile in values
	Browser       Browser
	RequestStatus RequestStatus
}

// ScanLabels defines the labels that can be attached to the per-scan
// pipeline metrics.
type ScanLabels struct {
	PubID          string
	Verdict        VerdictLabel
	Classification string
}

// Label typecasting. See below the type definitions for possible values

// RequestType : Request type enumeration
type RequestType string

// Browser type enumeration
type Browser string

// RequestStatus : The request return status
type RequestStatus string

// VerdictLabel : The verdict a finished audit resolved to
type VerdictLabel string

// StoreResult : Publisher-config cache lookup outcome
type StoreResult string

// The request types (endpoints)
const (
	ReqTypeAudit    RequestType = "audit"
	ReqTypeValidate RequestType = "validate"
	ReqTypeReport   RequestType = "report"
	ReqTypeStatus   RequestType = "status"
)

func RequestTypes() []RequestType {
	return []RequestType{
		ReqTypeAudit,
		ReqTypeValidate,
		ReqTypeReport,
		ReqTypeStatus,
	}
}

// Browser flag; at this point we only care about identifying Safari
const (
	BrowserSafari Browser = "safari"
	BrowserOther  Browser = "other"
)

func BrowserTypes() []Browser {
	return []Browser{
		BrowserSafari,
		BrowserOther,
	}
}

// Request/return status
const (
	RequestStatusOK       RequestStatus = "ok"
	RequestStatusBadInput RequestStatus = "badinput"
	RequestStatusErr      RequestStatus = "err"
)

func RequestStatuses() []RequestStatus {
	return []RequestStatus{
		RequestStatusOK,
		RequestStatusBadInput,
		RequestStatusErr,
	}
}

// Verdict outcomes as metric labels
const (
	VerdictLabelPass         VerdictLabel = "pass"
	VerdictLabelWarn         VerdictLabel = "warn"
	VerdictLabelFail         VerdictLabel = "fail"
	VerdictLabelInsufficient VerdictLabel = "insufficient_evidence"
)

func VerdictLabels() []VerdictLabel {
	return []VerdictLabel{
		VerdictLabelPass,
		VerdictLabelWarn,
		VerdictLabelFail,
		VerdictLabelInsufficient,
	}
}

// Publisher-config cache outcomes
const (
	StoreHit   StoreResult = "hit"
	StoreMiss  StoreResult = "miss"
	StoreError StoreResult = "error"
)

func StoreResults() []StoreResult {
	return []StoreResult{
		StoreHit,
		StoreMiss,
		StoreError,
	}
}

// MetricsEngine is a generic interface to record audit metrics into the
// desired backend. The request metrics fire once per incoming HTTP request,
// so their totals equal the number of incoming requests. The scan metrics
// fire once per completed audit, so comparing numbers between the two groups
// is generally not useful.
type MetricsEngine interface {
	RecordConnectionAccept(success bool)
	RecordConnectionClose(success bool)
	RecordRequest(labels Labels)
	RecordRequestTime(labels Labels, length time.Duration)
	// RecordScanEvents counts raw collector events accepted for audit,
	// before classification drops the unrecognizable ones.
	RecordScanEvents(labels Labels, numEvents int)
	RecordAuditTime(labels ScanLabels, length time.Duration)
	RecordVerdict(labels ScanLabels)
	RecordVerdictScore(labels ScanLabels, score int)
	RecordDuplicates(labels ScanLabels, suppressed int)
	RecordStackedPairs(labels ScanLabels, pairs int)
	RecordStoreResult(result StoreResult, inc int)
}
