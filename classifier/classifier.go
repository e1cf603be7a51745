package classifier

import (
	"net/url"
	"strings"

	validator "github.com/asaskevich/govalidator"

	"github.com/adverify/adverify-server/scan"
)

// A rule pairs a predicate with the category, vendor resolver and confidence
// it assigns. Rules are evaluated strictly in order and the first match wins;
// no rule is ever re-evaluated for an event.
type rule struct {
	name       string
	match      func(evt *scan.RawRequestEvent, lower string) bool
	category   scan.Category
	vendor     func(evt *scan.RawRequestEvent) string
	confidence float64
}

var rules = []rule{
	{
		// A script resource is always a tag library, regardless of URL
		// content. This guards against tag-library URLs that coincidentally
		// match click or impression path patterns (gpt.js?adurl=... is still
		// a tag library).
		name: "script-resource",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			return evt.ResourceType == "script"
		},
		category:   scan.CategoryTagLibrary,
		confidence: 0.95,
	},
	{
		name: "tag-library-signature",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			return matchesAny(lower, tagLibrarySignatures)
		},
		category:   scan.CategoryTagLibrary,
		confidence: 0.9,
	},
	{
		name: "id-sync",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			if !matchesAny(lower, idSyncKeywords) {
				return false
			}
			return matchesAny(strings.ToLower(evt.Path), idSyncPaths) || IsKnownAdDomain(evt.Hostname)
		},
		category:   scan.CategoryIDSync,
		confidence: 0.9,
	},
	{
		name: "click-redirect",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			// Applies to any non-script resource type, including document
			// (captured via navigation), xhr and image.
			return matchesAny(lower, clickRedirectPatterns)
		},
		category:   scan.CategoryClickRedirect,
		confidence: 0.85,
	},
	{
		name: "gam-ad-request",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			return matchesAny(lower, gamRequestPatterns)
		},
		category:   scan.CategoryGAMAdRequest,
		vendor:     func(*scan.RawRequestEvent) string { return "Google" },
		confidence: 0.85,
	},
	{
		name: "impression-beacon",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			if !beaconResourceTypes[evt.ResourceType] {
				return false
			}
			return matchesAny(lower, impressionPathPatterns)
		},
		category:   scan.CategoryImpressionBeacon,
		confidence: 0.8,
	},
	{
		name: "generic-ad-request",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			return matchesAny(lower, adRequestPatterns)
		},
		category:   scan.CategoryAdRequest,
		confidence: 0.7,
	},
	{
		name: "known-ad-domain",
		match: func(evt *scan.RawRequestEvent, lower string) bool {
			return strings.EqualFold(evt.Method, "GET") && IsKnownAdDomain(evt.Hostname)
		},
		category:   scan.CategoryOther,
		confidence: 0.3,
	},
}

var beaconResourceTypes = map[string]bool{
	"image":  true,
	"xhr":    true,
	"fetch":  true,
	"beacon": true,
	"ping":   true,
}

// Classify labels one raw event, or returns nil when the event is not a
// beacon. Malformed URLs yield nil; classification never fails.
func Classify(evt scan.RawRequestEvent) *scan.ClassifiedEvent {
	if evt.URL == "" || !validator.IsRequestURL(evt.URL) {
		return nil
	}
	u, err := url.Parse(evt.URL)
	if err != nil {
		return nil
	}
	if evt.Hostname == "" {
		evt.Hostname = u.Hostname()
	}
	if evt.Path == "" {
		evt.Path = u.Path
	}

	lower := strings.ToLower(evt.URL)
	for _, r := range rules {
		if !r.match(&evt, lower) {
			continue
		}
		vendor := ""
		if r.vendor != nil {
			vendor = r.vendor(&evt)
		} else {
			vendor = ResolveVendor(evt.Hostname, lower)
		}
		return &scan.ClassifiedEvent{
			RawRequestEvent: evt,
			Category:        r.category,
			Vendor:          vendor,
			Confidence:      r.confidence,
			Identifiers:     extractIdentifiers(u),
		}
	}
	return nil
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var creativeIDParams = []string{"creative_id", "creativeid", "crid", "cr_id"}
var lineItemIDParams = []string{"line_item_id", "lineitemid", "line_item", "lid"}
var placementParams = []string{"placement", "placement_id", "plc"}
var slotIDParams = []string{"slot", "slot_id", "slotname"}
var adUnitParams = []string{"iu", "adunit", "ad_unit", "adunitpath"}

// extractIdentifiers recovers ad-serving ids from the query string. Absent
// params simply leave fields empty.
func extractIdentifiers(u *url.URL) scan.Identifiers {
	q := u.Query()
	first := func(keys []string) string {
		for _, k := range keys {
			if v := q.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return scan.Identifiers{
		SlotID:     first(slotIDParams),
		AdUnitPath: first(adUnitParams),
		CreativeID: first(creativeIDParams),
		LineItemID: first(lineItemIDParams),
		Placement:  first(placementParams),
	}
}
