package endpoints

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/adverify/adverify-server/analytics"
	"github.com/adverify/adverify-server/auditmetrics"
)

// ValidateDeps wires the schema validation endpoint. Schema may be nil when
// the schema file failed to load at startup; the endpoint then reports that
// instead of validating.
type ValidateDeps struct {
	Schema    *gojsonschema.Schema
	Analytics analytics.AuditLogger
	Metrics   auditmetrics.MetricsEngine
}

// Validate handles POST /validate. It checks a scan payload against the
// request schema and writes a plain text report, one line per violation.
func (deps *ValidateDeps) Validate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Add("Content-Type", "text/plain")

	start := time.Now()
	labels := auditmetrics.Labels{
		RType:         auditmetrics.ReqTypeValidate,
		Browser:       browserOf(r),
		RequestStatus: auditmetrics.RequestStatusOK,
	}
	vo := analytics.ValidateObject{Status: http.StatusOK}
	defer func() {
		deps.Metrics.RecordRequest(labels)
		deps.Metrics.RecordRequestTime(labels, time.Since(start))
		if deps.Analytics != nil {
			deps.Analytics.LogValidateObject(&vo)
		}
	}()

	defer r.Body.Close()
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		labels.RequestStatus = auditmetrics.RequestStatusErr
		vo.Errors = append(vo.Errors, err.Error())
		fmt.Fprintf(w, "Unable to read body\n")
		return
	}

	if deps.Schema == nil {
		labels.RequestStatus = auditmetrics.RequestStatusErr
		vo.Errors = append(vo.Errors, "validation schema not loaded")
		fmt.Fprintf(w, "Validation schema not loaded\n")
		return
	}

	js := gojsonschema.NewStringLoader(string(b))
	result, err := deps.Schema.Validate(js)
	if err != nil {
		labels.RequestStatus = auditmetrics.RequestStatusBadInput
		vo.Errors = append(vo.Errors, err.Error())
		fmt.Fprintf(w, "Error parsing json: %v\n", err)
		return
	}

	if result.Valid() {
		vo.Valid = true
		fmt.Fprintf(w, "Validation successful\n")
		return
	}

	labels.RequestStatus = auditmetrics.RequestStatusBadInput
	for _, err := range result.Errors() {
		vo.Errors = append(vo.Errors, err.String())
		fmt.Fprintf(w, "Error: %s %v\n", err.Context().String(), err)
	}
}
