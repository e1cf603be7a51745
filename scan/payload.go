package scan

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/blang/semver"
	"github.com/buger/jsonparser"
	"github.com/golang/glog"

	"github.com/adverify/adverify-server/errortypes"
)

// Payload is one collector-submitted scan: everything observed on a single
// page load, plus the identifiers the audit is keyed by. All records inside
// it are scoped to ScanID; nothing is shared across scans.
type Payload struct {
	ScanID           string                   `json:"scanId"`
	PublisherID      string                   `json:"publisherId"`
	PageURL          string                   `json:"pageUrl,omitempty"`
	CollectorVersion string                   `json:"collectorVersion,omitempty"`
	UserAgent        string                   `json:"userAgent,omitempty"`
	StartedAt        int64                    `json:"startedAt,omitempty"`
	Events           []RawRequestEvent        `json:"events"`
	SlotRenders      []SlotRenderRecord       `json:"slotRenders,omitempty"`
	GamRequests      []GamRequestRecord       `json:"gamRequests,omitempty"`
	Iframes          []IframeGeometrySnapshot `json:"iframes,omitempty"`
	Viewport         Viewport                 `json:"viewport,omitempty"`
	Clicks           []ClickEvent             `json:"clicks,omitempty"`
	Telemetry        Telemetry                `json:"telemetry,omitempty"`
	ConsentString    string                   `json:"consentString,omitempty"`
}

// PeekIDs extracts the scan and publisher ids without decoding the whole
// payload, so metrics and logs can be labeled before the (much larger) full
// decode runs.
func PeekIDs(body []byte) (scanID string, publisherID string) {
	scanID, _ = jsonparser.GetString(body, "scanId")
	publisherID, _ = jsonparser.GetString(body, "publisherId")
	return
}

// ParsePayload decodes and validates a collector submission.
//
// Missing scan identifiers are a contract violation by the caller and fail
// fast with errortypes.BadInput. Individual malformed events are dropped and
// logged; they never fail the payload.
func ParsePayload(body []byte, minCollectorVersion string) (*Payload, error) {
	if len(body) == 0 {
		return nil, &errortypes.BadInput{Message: "empty request body"}
	}

	payload := &Payload{}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, &errortypes.BadInput{Message: fmt.Sprintf("invalid scan payload: %v", err)}
	}

	if payload.ScanID == "" {
		return nil, &errortypes.BadInput{Message: "scan payload is missing required field: scanId"}
	}
	if payload.PublisherID == "" {
		return nil, &errortypes.BadInput{Message: "scan payload is missing required field: publisherId"}
	}

	if err := checkCollectorVersion(payload.CollectorVersion, minCollectorVersion); err != nil {
		return nil, err
	}

	payload.Events = dropMalformedEvents(payload.ScanID, payload.Events)
	return payload, nil
}

func checkCollectorVersion(have string, min string) error {
	if have == "" || min == "" {
		return nil
	}
	haveVer, err := semver.ParseTolerant(have)
	if err != nil {
		// An unparseable version is collector noise, not a hard failure.
		glog.Warningf("Unparseable collector version %q; skipping version check", have)
		return nil
	}
	minVer, err := semver.ParseTolerant(min)
	if err != nil {
		glog.Errorf("Bad min_collector_version config %q: %v", min, err)
		return nil
	}
	if haveVer.LT(minVer) {
		return &errortypes.BadInput{
			Message: fmt.Sprintf("collector version %s is older than the minimum supported %s", have, min),
		}
	}
	return nil
}

// dropMalformedEvents filters out events the pipeline cannot use. These are
// recovered locally: a bad event is never an error for the scan.
func dropMalformedEvents(scanID string, events []RawRequestEvent) []RawRequestEvent {
	kept := events[:0]
	dropped := 0
	for _, evt := range events {
		if evt.URL == "" || evt.Timestamp <= 0 {
			dropped++
			continue
		}
		if evt.Hostname == "" || evt.Path == "" {
			if u, err := url.Parse(evt.URL); err == nil {
				if evt.Hostname == "" {
					evt.Hostname = u.Hostname()
				}
				if evt.Path == "" {
					evt.Path = u.Path
				}
			}
		}
		kept = append(kept, evt)
	}
	if dropped > 0 && glog.V(2) {
		glog.Infof("Scan %s: dropped %d malformed events", scanID, dropped)
	}
	return kept
}
