package analytics

import (
	"encoding/json"

	"github.com/golang/glog"

	"github.com/adverify/adverify-server/audit"
)

// AuditLogger must be implemented by analytics modules to extract the
// required information and perform transactional logging. Modules should not
// hold references to the parameter objects past the call.
type AuditLogger interface {
	LogAuditObject(*AuditObject)
	LogValidateObject(*ValidateObject)
}

// Loggable object of a transaction at the /audit endpoint
type AuditObject struct {
	Status      int           `json:"status"`
	ScanID      string        `json:"scanId"`
	PublisherID string        `json:"publisherId"`
	Errors      []string      `json:"errors,omitempty"`
	Result      *audit.Result `json:"result,omitempty"`
}

// Loggable object of a transaction at the /validate endpoint
type ValidateObject struct {
	Status int      `json:"status"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (ao *AuditObject) ToJson() string {
	return toJson(ao)
}

func (vo *ValidateObject) ToJson() string {
	return toJson(vo)
}

func toJson(obj interface{}) string {
	b, err := json.Marshal(obj)
	if err != nil {
		glog.Errorf("Transactional logs error: unable to marshal %T: %v", obj, err)
		return ""
	}
	return string(b)
}
