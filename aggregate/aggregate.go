package aggregate

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/adverify/adverify-server/dedup"
	"github.com/adverify/adverify-server/scan"
)

// VendorAggregate summarizes one (vendorHost, adSlotId) group for one scan.
// Recomputed wholesale per scan; never incrementally patched.
type VendorAggregate struct {
	ScanID      string `json:"scanId"`
	PublisherID string `json:"publisherId"`
	VendorHost  string `json:"vendorHost"`
	AdSlotID    string `json:"adSlotId"`

	Impressions        int     `json:"impressions"`
	UniqueFingerprints int     `json:"uniqueFingerprints"`
	DuplicateCount     int     `json:"duplicateCount"`
	DuplicationRate    float64 `json:"duplicationRate"`

	// MaxPerSecond is the max events in any fixed 1-second bucket;
	// BurstEvents1s is the max within any sliding 1-second window. Bucket
	// boundaries can hide true bursts, so both are reported and neither is
	// collapsed into the other.
	MaxPerSecond       int     `json:"maxPerSecond"`
	BurstEvents1s      int     `json:"burstEvents1s"`
	MedianInterEventMs float64 `json:"medianInterEventMs"`

	FirstSeen int64 `json:"firstSeen"`
	LastSeen  int64 `json:"lastSeen"`

	StackingSuspected bool `json:"stackingSuspected"`

	// Brand attribution stays at its conservative defaults: no defensible
	// signal exists for guessing a brand, and a wrong guess in an auditable
	// fraud report is worse than none.
	BrandGuess      string  `json:"brandGuess"`
	BrandConfidence float64 `json:"brandConfidence"`
	BrandMethod     string  `json:"brandMethod"`
}

// aggregatedCategories are the ad-traffic labels worth per-vendor statistics.
// Tag libraries and id syncs are page infrastructure, not impressions.
var aggregatedCategories = map[scan.Category]bool{
	scan.CategoryGAMAdRequest:     true,
	scan.CategoryImpressionBeacon: true,
	scan.CategoryAdRequest:        true,
}

// Aggregate folds the scan's classified events into per-(vendorHost, slot)
// aggregates. It is a pure function of its input: same events in, byte-
// identical aggregates out, with output sorted by (vendorHost, adSlotId).
func Aggregate(events []*scan.ClassifiedEvent, scanID string, publisherID string) []VendorAggregate {
	groups := make(map[string][]*scan.ClassifiedEvent)
	for _, evt := range events {
		if evt == nil || !aggregatedCategories[evt.Category] {
			continue
		}
		key := evt.Hostname + "\x00" + SlotIDFor(evt)
		groups[key] = append(groups[key], evt)
	}

	out := make([]VendorAggregate, 0, len(groups))
	for _, group := range groups {
		out = append(out, fold(group, scanID, publisherID))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorHost != out[j].VendorHost {
			return out[i].VendorHost < out[j].VendorHost
		}
		return out[i].AdSlotID < out[j].AdSlotID
	})
	return out
}

// SlotIDFor derives the grouping slot id by priority, falling back to a
// stable hash of vendorHost|url so every event gets a slot id without
// collapsing unrelated vendors together.
func SlotIDFor(evt *scan.ClassifiedEvent) string {
	ids := evt.Identifiers
	for _, candidate := range []string{ids.SlotID, ids.AdUnitPath, ids.Placement, ids.CreativeID} {
		if candidate != "" {
			return candidate
		}
	}
	h := fnv.New32a()
	h.Write([]byte(evt.Hostname))
	h.Write([]byte{'|'})
	h.Write([]byte(dedup.StripCacheBusters(evt.URL)))
	return fmt.Sprintf("slot-%08x", h.Sum32())
}

func fold(group []*scan.ClassifiedEvent, scanID string, publisherID string) VendorAggregate {
	sorted := make([]*scan.ClassifiedEvent, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	first := sorted[0]
	agg := VendorAggregate{
		ScanID:      scanID,
		PublisherID: publisherID,
		VendorHost:  first.Hostname,
		AdSlotID:    SlotIDFor(first),
		Impressions: len(sorted),
		FirstSeen:   sorted[0].Timestamp,
		LastSeen:    sorted[len(sorted)-1].Timestamp,
		BrandGuess:  "unknown",
		BrandMethod: "none",
	}

	fingerprints := make(map[string]bool, len(sorted))
	for _, evt := range sorted {
		fp := evt.Vendor + "\x00" + SlotIDFor(evt) + "\x00" + dedup.StripCacheBusters(evt.URL)
		fingerprints[fp] = true
	}
	agg.UniqueFingerprints = len(fingerprints)
	agg.DuplicateCount = agg.Impressions - agg.UniqueFingerprints
	if agg.Impressions > 0 {
		agg.DuplicationRate = float64(agg.DuplicateCount) / float64(agg.Impressions)
	}

	agg.MaxPerSecond = maxFixedBucket(sorted)
	agg.BurstEvents1s = maxSlidingWindow(sorted)
	agg.MedianInterEventMs = medianInterEvent(sorted)
	return agg
}

// maxFixedBucket counts events per fixed 1000ms bucket and returns the max.
func maxFixedBucket(sorted []*scan.ClassifiedEvent) int {
	buckets := make(map[int64]int)
	max := 0
	for _, evt := range sorted {
		b := evt.Timestamp / 1000
		buckets[b]++
		if buckets[b] > max {
			max = buckets[b]
		}
	}
	return max
}

// maxSlidingWindow finds the densest 1000ms window with a two-pointer scan
// over the timestamp-sorted events.
func maxSlidingWindow(sorted []*scan.ClassifiedEvent) int {
	max := 0
	lo := 0
	for hi := range sorted {
		for sorted[hi].Timestamp-sorted[lo].Timestamp >= 1000 {
			lo++
		}
		if n := hi - lo + 1; n > max {
			max = n
		}
	}
	return max
}

// medianInterEvent is the median of consecutive inter-event deltas, 0 for
// groups with fewer than two events.
func medianInterEvent(sorted []*scan.ClassifiedEvent) float64 {
	if len(sorted) < 2 {
		return 0
	}
	deltas := make([]int64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		deltas = append(deltas, sorted[i].Timestamp-sorted[i-1].Timestamp)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	mid := len(deltas) / 2
	if len(deltas)%2 == 1 {
		return float64(deltas[mid])
	}
	return float64(deltas[mid-1]+deltas[mid]) / 2
}
