package audit

import (
	"github.com/adverify/adverify-server/aggregate"
	"github.com/adverify/adverify-server/consent"
	"github.com/adverify/adverify-server/scan"
	"github.com/adverify/adverify-server/stacking"
	"github.com/adverify/adverify-server/verdict"
)

// Result is the complete audit output for one scan. Plain data, JSON
// serializable, consumed by the reporting and export collaborators.
type Result struct {
	ScanID        string `json:"scanId"`
	PublisherID   string `json:"publisherId"`
	ReportID      string `json:"reportId"`
	GeneratedAtMs int64  `json:"generatedAtMs"`

	Sequences  []*scan.ClassifiedEvent     `json:"sequences"`
	Summary    Summary                     `json:"summary"`
	Flags      []ViewabilityFlag           `json:"flags"`
	AdStacking stacking.Findings           `json:"adStackingFindings"`
	Aggregates []aggregate.VendorAggregate `json:"vendorAggregates"`
	Verdict    verdict.Result              `json:"verdict"`
	Consent    consent.Analysis            `json:"consent"`
}

// Summary is the impression accounting for one scan.
type Summary struct {
	ServedImpressions   int `json:"servedImpressions"`
	VerifiedImpressions int `json:"verifiedImpressions"`
	TotalImpressions    int `json:"totalImpressions"`
	ViewableImpressions int `json:"viewableImpressions"`

	Clicks         int `json:"clicks"`
	VerifiedClicks int `json:"verifiedClicks"`
	SuspectClicks  int `json:"suspectClicks"`

	// Ad-request accounting: requests answered by a render of the same slot
	// within the correlation window, versus requests no render ever answered.
	CorrelatedGamRequests   int `json:"correlatedGamRequests"`
	UncorrelatedGamRequests int `json:"uncorrelatedGamRequests"`

	// DiscrepancyPct is |served-verified| relative to served.
	DiscrepancyPct float64 `json:"discrepancyPct"`

	CategoryCounts map[scan.Category]int `json:"categoryCounts"`
	DuplicateCounts map[scan.Category]int `json:"duplicateCounts"`
}

// ViewabilityFlag marks one creative whose render count and beacon count
// disagree beyond the configured threshold.
type ViewabilityFlag struct {
	CreativeID     string  `json:"creativeId"`
	RenderCount    int     `json:"renderCount"`
	BeaconCount    int     `json:"beaconCount"`
	DiscrepancyPct float64 `json:"discrepancyPct"`
}
