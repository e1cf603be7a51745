package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverify/adverify-server/scan"
)

func beacon(host, url string, ts int64, ids scan.Identifiers) *scan.ClassifiedEvent {
	return &scan.ClassifiedEvent{
		RawRequestEvent: scan.RawRequestEvent{
			URL:       url,
			Hostname:  host,
			Timestamp: ts,
		},
		Category:    scan.CategoryImpressionBeacon,
		Vendor:      "Vendor",
		Identifiers: ids,
	}
}

func TestGroupingByVendorHostAndSlot(t *testing.T) {
	events := []*scan.ClassifiedEvent{
		beacon("a.com", "https://a.com/imp", 1000, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp", 2000, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp", 3000, scan.Identifiers{SlotID: "s2"}),
		beacon("b.com", "https://b.com/imp", 4000, scan.Identifiers{SlotID: "s1"}),
	}
	aggs := Aggregate(events, "scan-1", "pub-1")

	require.Len(t, aggs, 3)
	assert.Equal(t, "a.com", aggs[0].VendorHost)
	assert.Equal(t, "s1", aggs[0].AdSlotID)
	assert.Equal(t, 2, aggs[0].Impressions)
	assert.Equal(t, "s2", aggs[1].AdSlotID)
	assert.Equal(t, "b.com", aggs[2].VendorHost)
}

func TestNonAdTrafficExcluded(t *testing.T) {
	tagLib := &scan.ClassifiedEvent{
		RawRequestEvent: scan.RawRequestEvent{URL: "https://a.com/gpt.js", Hostname: "a.com", Timestamp: 1},
		Category:        scan.CategoryTagLibrary,
	}
	idSync := &scan.ClassifiedEvent{
		RawRequestEvent: scan.RawRequestEvent{URL: "https://a.com/getuid", Hostname: "a.com", Timestamp: 2},
		Category:        scan.CategoryIDSync,
	}
	aggs := Aggregate([]*scan.ClassifiedEvent{tagLib, idSync, nil}, "scan-1", "pub-1")
	assert.Empty(t, aggs)
}

func TestSlotIDPriority(t *testing.T) {
	tests := []struct {
		ids  scan.Identifiers
		want string
	}{
		{scan.Identifiers{SlotID: "s", AdUnitPath: "/a", Placement: "p", CreativeID: "c"}, "s"},
		{scan.Identifiers{AdUnitPath: "/a", Placement: "p", CreativeID: "c"}, "/a"},
		{scan.Identifiers{Placement: "p", CreativeID: "c"}, "p"},
		{scan.Identifiers{CreativeID: "c"}, "c"},
	}
	for _, tt := range tests {
		evt := beacon("a.com", "https://a.com/imp", 1, tt.ids)
		assert.Equal(t, tt.want, SlotIDFor(evt))
	}
}

func TestSlotIDHashFallbackIsStableAndVendorScoped(t *testing.T) {
	a := beacon("a.com", "https://a.com/imp?x=1&cb=123", 1, scan.Identifiers{})
	aAgain := beacon("a.com", "https://a.com/imp?x=1&cb=456", 2, scan.Identifiers{})
	b := beacon("b.com", "https://b.com/imp?x=1", 3, scan.Identifiers{})

	// Cache busters don't perturb the fallback id; different vendors never
	// share one.
	assert.Equal(t, SlotIDFor(a), SlotIDFor(aAgain))
	assert.NotEqual(t, SlotIDFor(a), SlotIDFor(b))
	assert.Contains(t, SlotIDFor(a), "slot-")
}

func TestDuplicateStatistics(t *testing.T) {
	// Four fires of the same logical beacon (cache busters differ) plus one
	// distinct creative.
	events := []*scan.ClassifiedEvent{
		beacon("a.com", "https://a.com/imp?creative=1&cb=1", 1000, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?creative=1&cb=2", 1100, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?creative=1&cb=3", 1200, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?creative=1&cb=4", 1300, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?creative=2", 2000, scan.Identifiers{SlotID: "s1"}),
	}
	aggs := Aggregate(events, "scan-1", "pub-1")

	require.Len(t, aggs, 1)
	agg := aggs[0]
	assert.Equal(t, 5, agg.Impressions)
	assert.Equal(t, 2, agg.UniqueFingerprints)
	assert.Equal(t, 3, agg.DuplicateCount)
	assert.Equal(t, 0.6, agg.DuplicationRate)
	assert.Equal(t, int64(1000), agg.FirstSeen)
	assert.Equal(t, int64(2000), agg.LastSeen)
}

func TestBurstMetricsFixedVsSliding(t *testing.T) {
	// Events at 900, 1100, 1300: fixed buckets split them 1/2, but a sliding
	// 1s window catches all three.
	events := []*scan.ClassifiedEvent{
		beacon("a.com", "https://a.com/imp?a=1", 900, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?a=2", 1100, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?a=3", 1300, scan.Identifiers{SlotID: "s1"}),
	}
	aggs := Aggregate(events, "scan-1", "pub-1")

	require.Len(t, aggs, 1)
	assert.Equal(t, 2, aggs[0].MaxPerSecond)
	assert.Equal(t, 3, aggs[0].BurstEvents1s)
}

func TestMedianInterEvent(t *testing.T) {
	events := []*scan.ClassifiedEvent{
		beacon("a.com", "https://a.com/imp?a=1", 0, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?a=2", 100, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?a=3", 300, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?a=4", 900, scan.Identifiers{SlotID: "s1"}),
	}
	aggs := Aggregate(events, "scan-1", "pub-1")

	require.Len(t, aggs, 1)
	// deltas 100, 200, 600 -> median 200
	assert.Equal(t, 200.0, aggs[0].MedianInterEventMs)
}

func TestBrandDefaultsAreConservative(t *testing.T) {
	aggs := Aggregate([]*scan.ClassifiedEvent{
		beacon("a.com", "https://a.com/imp", 1, scan.Identifiers{SlotID: "s1"}),
	}, "scan-1", "pub-1")

	require.Len(t, aggs, 1)
	assert.Equal(t, "unknown", aggs[0].BrandGuess)
	assert.Equal(t, 0.0, aggs[0].BrandConfidence)
	assert.Equal(t, "none", aggs[0].BrandMethod)
}

func TestAggregationIsIdempotent(t *testing.T) {
	events := []*scan.ClassifiedEvent{
		beacon("b.com", "https://b.com/imp?cb=2", 2000, scan.Identifiers{SlotID: "s2"}),
		beacon("a.com", "https://a.com/imp?cb=1", 1000, scan.Identifiers{SlotID: "s1"}),
		beacon("a.com", "https://a.com/imp?cb=3", 1500, scan.Identifiers{SlotID: "s1"}),
		beacon("c.com", "https://c.com/imp", 500, scan.Identifiers{}),
	}

	first, err := json.Marshal(Aggregate(events, "scan-1", "pub-1"))
	require.NoError(t, err)
	second, err := json.Marshal(Aggregate(events, "scan-1", "pub-1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEmptyInput(t *testing.T) {
	assert.Empty(t, Aggregate(nil, "scan-1", "pub-1"))
	assert.Empty(t, Aggregate([]*scan.ClassifiedEvent{}, "scan-1", "pub-1"))
}
