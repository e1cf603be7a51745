package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	useragent "github.com/mssola/user_agent"

	"github.com/adverify/adverify-server/analytics"
	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/errortypes"
	"github.com/adverify/adverify-server/resultcache"
	"github.com/adverify/adverify-server/scan"
	"github.com/adverify/adverify-server/store"
	"github.com/adverify/adverify-server/verdict"
)

// AuditDeps wires the audit endpoint to its collaborators. Store, Cache and
// Analytics may be nil; the endpoint then runs with defaults and skips
// persistence.
type AuditDeps struct {
	AuditCfg            audit.Config
	VerdictDefaults     verdict.Config
	MinCollectorVersion string
	DefaultTimeout      time.Duration

	Store     store.Store
	Cache     resultcache.Client
	Analytics analytics.AuditLogger
	Metrics   auditmetrics.MetricsEngine
}

type auditError struct {
	Status string `json:"status"`
}

func writeAuditError(w http.ResponseWriter, code int, s string, err error) {
	var resp auditError
	if err != nil {
		resp.Status = fmt.Sprintf("%s: %v", s, err)
	} else {
		resp.Status = s
	}
	w.WriteHeader(code)
	b, err := json.Marshal(&resp)
	if err != nil {
		glog.Errorf("Failed to marshal audit error JSON: %s", err)
	} else {
		w.Write(b)
	}
}

func statusOf(err error) (int, auditmetrics.RequestStatus) {
	switch errortypes.ReadCode(err) {
	case errortypes.BadInputErrorCode:
		return http.StatusBadRequest, auditmetrics.RequestStatusBadInput
	default:
		return http.StatusInternalServerError, auditmetrics.RequestStatusErr
	}
}

func browserOf(r *http.Request) auditmetrics.Browser {
	ua := useragent.New(r.Header.Get("User-Agent"))
	if name, _ := ua.Browser(); name == "Safari" {
		return auditmetrics.BrowserSafari
	}
	return auditmetrics.BrowserOther
}

// Audit handles POST /audit. It parses the collector payload, runs the full
// pipeline under the publisher's profile and writes the report back, saving
// and caching it on the side.
func (deps *AuditDeps) Audit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Add("Content-Type", "application/json")

	start := time.Now()
	labels := auditmetrics.Labels{
		RType:         auditmetrics.ReqTypeAudit,
		Browser:       browserOf(r),
		RequestStatus: auditmetrics.RequestStatusOK,
	}
	ao := analytics.AuditObject{Status: http.StatusOK}
	defer func() {
		deps.Metrics.RecordRequest(labels)
		deps.Metrics.RecordRequestTime(labels, time.Since(start))
		if deps.Analytics != nil {
			deps.Analytics.LogAuditObject(&ao)
		}
	}()

	defer r.Body.Close()
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		labels.RequestStatus = auditmetrics.RequestStatusErr
		ao.Status = http.StatusInternalServerError
		ao.Errors = append(ao.Errors, err.Error())
		writeAuditError(w, http.StatusInternalServerError, "Unable to read body", err)
		return
	}

	// Label the transaction even if the full decode fails below.
	ao.ScanID, ao.PublisherID = scan.PeekIDs(body)
	labels.PubID = ao.PublisherID

	payload, err := scan.ParsePayload(body, deps.MinCollectorVersion)
	if err != nil {
		if glog.V(2) {
			glog.Infof("Failed to parse /audit request: %v", err)
		}
		code, rs := statusOf(err)
		labels.RequestStatus = rs
		ao.Status = code
		ao.Errors = append(ao.Errors, err.Error())
		writeAuditError(w, code, "Error parsing scan payload", err)
		return
	}
	deps.Metrics.RecordScanEvents(labels, len(payload.Events))

	ctx, cancel := context.WithTimeout(context.Background(), deps.timeout())
	defer cancel()

	runner := deps.runnerFor(ctx, payload.PublisherID)

	result, err := runner.Run(payload)
	if err != nil {
		code, rs := statusOf(err)
		labels.RequestStatus = rs
		ao.Status = code
		ao.Errors = append(ao.Errors, err.Error())
		writeAuditError(w, code, "Audit failed", err)
		return
	}
	ao.Result = result

	scanLabels := auditmetrics.ScanLabels{
		PubID:          payload.PublisherID,
		Verdict:        verdictLabel(result.Verdict.Verdict),
		Classification: result.Verdict.Classification.Primary,
	}
	deps.Metrics.RecordAuditTime(scanLabels, time.Since(start))
	deps.Metrics.RecordVerdict(scanLabels)
	deps.Metrics.RecordVerdictScore(scanLabels, result.Verdict.Score)
	deps.Metrics.RecordDuplicates(scanLabels, totalDuplicates(result))
	deps.Metrics.RecordStackedPairs(scanLabels, result.AdStacking.StackedPairsCount)

	deps.persist(ctx, result)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(result)
}

func (deps *AuditDeps) timeout() time.Duration {
	if deps.DefaultTimeout <= 0 {
		return 250 * time.Millisecond
	}
	return deps.DefaultTimeout
}

// runnerFor builds the pipeline under the publisher's stored profile. A
// missing or unreachable profile falls back to the server defaults.
func (deps *AuditDeps) runnerFor(ctx context.Context, publisherID string) *audit.Runner {
	cfg := deps.AuditCfg
	verdictCfg := deps.VerdictDefaults

	if deps.Store != nil {
		profile, err := deps.Store.Publishers().Get(ctx, publisherID)
		if err != nil {
			if glog.V(2) {
				glog.Infof("No stored profile for publisher %s: %v", publisherID, err)
			}
		} else if profile != nil {
			verdictCfg = profile.Verdict
			cfg.BenignVendors = append(cfg.BenignVendors, profile.BenignVendors...)
		}
	}

	return audit.NewRunner(cfg, verdict.NewEngine(verdictCfg))
}

// persist is best effort. A datastore or cache failure never fails the
// request; the caller already has the report in the response body.
func (deps *AuditDeps) persist(ctx context.Context, result *audit.Result) {
	if deps.Store != nil {
		if err := deps.Store.Reports().SaveResult(ctx, result); err != nil {
			glog.Errorf("Failed to save audit result for scan %s: %v", result.ScanID, err)
		}
	}
	if deps.Cache != nil {
		if err := deps.Cache.Put(ctx, result); err != nil {
			glog.Errorf("Failed to cache audit result for scan %s: %v", result.ScanID, err)
		}
	}
}

func verdictLabel(v string) auditmetrics.VerdictLabel {
	switch v {
	case verdict.VerdictPass:
		return auditmetrics.VerdictLabelPass
	case verdict.VerdictWarn:
		return auditmetrics.VerdictLabelWarn
	case verdict.VerdictFail:
		return auditmetrics.VerdictLabelFail
	default:
		return auditmetrics.VerdictLabelInsufficient
	}
}

func totalDuplicates(result *audit.Result) int {
	total := 0
	for _, n := range result.Summary.DuplicateCounts {
		total += n
	}
	return total
}
