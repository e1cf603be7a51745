package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/resultcache"
)

// ReportDeps wires the report retrieval endpoint to the result cache.
type ReportDeps struct {
	Cache          resultcache.Client
	DefaultTimeout time.Duration
	Metrics        auditmetrics.MetricsEngine
}

// Report handles GET /audit/:scanId, serving a previously computed audit
// report out of the result cache.
func (deps *ReportDeps) Report(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	w.Header().Add("Content-Type", "application/json")

	start := time.Now()
	labels := auditmetrics.Labels{
		RType:         auditmetrics.ReqTypeReport,
		Browser:       browserOf(r),
		RequestStatus: auditmetrics.RequestStatusOK,
	}
	defer func() {
		deps.Metrics.RecordRequest(labels)
		deps.Metrics.RecordRequestTime(labels, time.Since(start))
	}()

	scanID := params.ByName("scanId")
	if scanID == "" {
		labels.RequestStatus = auditmetrics.RequestStatusBadInput
		writeAuditError(w, http.StatusBadRequest, "Missing scan id", nil)
		return
	}

	if deps.Cache == nil {
		labels.RequestStatus = auditmetrics.RequestStatusErr
		writeAuditError(w, http.StatusServiceUnavailable, "Result cache not configured", nil)
		return
	}

	timeout := deps.DefaultTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := deps.Cache.Get(ctx, scanID)
	if err == resultcache.ErrNotFound {
		labels.RequestStatus = auditmetrics.RequestStatusBadInput
		writeAuditError(w, http.StatusNotFound, "No report for scan "+scanID, nil)
		return
	}
	if err != nil {
		labels.RequestStatus = auditmetrics.RequestStatusErr
		writeAuditError(w, http.StatusInternalServerError, "Result cache error", err)
		return
	}

	labels.PubID = result.PublisherID
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(result)
}
