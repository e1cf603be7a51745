package verdict

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEngine() *Engine {
	return NewEngine(DefaultConfig())
}

func refs(n string) []string {
	return []string{"evt:" + n}
}

func TestMonetizedInflationFails(t *testing.T) {
	// Mirrors the lapatilla fixture: heavy duplicate impressions plus heavy
	// stacking, with citable evidence and no benign telemetry.
	ev := Evidence{
		ScanID:                 "scan-1",
		PublisherID:            "pub-1",
		DuplicateAdImpressions: Signal{Count: 12, Evidence: refs("dup")},
		AdStacking:             Signal{Count: 30, Evidence: refs("stack")},
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.Equal(t, VerdictFail, result.Verdict)
	assert.Equal(t, ClassMonetizedInflation, result.Classification.Primary)
	assert.True(t, result.Gates.G1)
	assert.True(t, result.Gates.G2)
	assert.True(t, result.Gates.G3)
	assert.True(t, result.Score >= 70, "score was %d", result.Score)
	assert.Equal(t, 80, result.Confidence)
	assert.NotEmpty(t, result.Classification.RuleTrace)
}

func TestGateG1IsMonotonic(t *testing.T) {
	// No evidence set lacking monetized signals may produce FAIL, even when
	// every other feature fires at maximum magnitude.
	ev := Evidence{
		HiddenFrames:      Signal{Count: 50, Evidence: refs("hidden")},
		PixelStuffing:     Signal{Count: 40, Evidence: refs("tiny")},
		AdStacking:        Signal{Count: 100, Evidence: refs("stack")},
		MaxOverlapRatio:   0.99,
		PhantomScroll:     Signal{Count: 9, Evidence: refs("scroll")},
		SessionInflation:  Signal{Count: 9, Evidence: refs("session")},
		GA4MeasurementIDs: 5,
		GTMContainers:     5,
		GA4PageViews:      20,
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.NotEqual(t, VerdictFail, result.Verdict)
	assert.Equal(t, VerdictWarn, result.Verdict)
	assert.False(t, result.Gates.G1)
}

func TestGateG2ForcesInsufficientEvidence(t *testing.T) {
	// Signals without a single evidence reference cannot support a verdict.
	ev := Evidence{
		DuplicateAdImpressions: Signal{Count: 12},
		AdStacking:             Signal{Count: 30},
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.Equal(t, VerdictInsufficientEvidence, result.Verdict)
	assert.False(t, result.Gates.G2)
	assert.True(t, result.Score <= 10, "score was %d", result.Score)
	assert.True(t, result.Confidence <= 40, "confidence was %d", result.Confidence)
}

func TestGateG2EvidenceOkFalse(t *testing.T) {
	ev := Evidence{
		DuplicateAdImpressions: Signal{Count: 12, Evidence: refs("dup")},
		AdStacking:             Signal{Count: 30, Evidence: refs("stack")},
	}
	result := defaultEngine().Evaluate(ev, false)

	assert.Equal(t, VerdictInsufficientEvidence, result.Verdict)
	assert.True(t, result.Score <= 10)
	assert.True(t, result.Confidence <= 40)
}

func TestEmptyEvidenceIsInsufficient(t *testing.T) {
	result := defaultEngine().Evaluate(Evidence{}, true)
	assert.Equal(t, VerdictInsufficientEvidence, result.Verdict)
	assert.Equal(t, ClassUnknown, result.Classification.Primary)
}

func TestGateG3BenignVendorDowngrade(t *testing.T) {
	// Structural anomalies alone plus benign consent telemetry: G3 keeps the
	// verdict out of FAIL territory.
	ev := Evidence{
		HiddenFrames:        Signal{Count: 50, Evidence: refs("hidden")},
		AdStacking:          Signal{Count: 100, Evidence: refs("stack")},
		PhantomScroll:       Signal{Count: 3, Evidence: refs("scroll")},
		GA4PageViews:        4,
		BenignVendorPresent: true,
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.NotEqual(t, VerdictFail, result.Verdict)
	assert.False(t, result.Gates.G3)
}

func TestGateG3DoesNotBlockMonetizedFail(t *testing.T) {
	// Benign vendors do not shield a scan with real monetized inflation.
	ev := Evidence{
		DuplicateAdImpressions: Signal{Count: 12, Evidence: refs("dup")},
		AdStacking:             Signal{Count: 30, Evidence: refs("stack")},
		BenignVendorPresent:    true,
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.Equal(t, VerdictFail, result.Verdict)
	assert.True(t, result.Gates.G3)
}

func TestInstrumentationDuplicationScenario(t *testing.T) {
	// Zero monetized/structural signals, benign consent vendor firing GA4
	// page views twice: classified as instrumentation duplication, never
	// FAIL.
	ev := Evidence{
		GA4PageViews:        2,
		GA4MeasurementIDs:   2,
		PhantomScroll:       Signal{Count: 1, Evidence: refs("scroll")},
		BenignVendorPresent: true,
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.Contains(t, []string{VerdictPass, VerdictWarn}, result.Verdict)
	assert.Equal(t, ClassInstrumentationDuplication, result.Classification.Primary)
}

func TestAmplifierOnlyEvidenceClearsG2(t *testing.T) {
	// A scan whose only findings are analytics amplifiers still carries
	// citable GA4/GTM identifiers, so it resolves to PASS or WARN rather
	// than INSUFFICIENT_EVIDENCE.
	ev := Evidence{
		GA4MeasurementIDs:   2,
		GA4PageViews:        3,
		Amplifiers:          Signal{Count: 5, Evidence: []string{"ga4:G-AAA111", "ga4:G-BBB222", "telemetry:ga4PageViews:3"}},
		BenignVendorPresent: true,
	}
	result := defaultEngine().Evaluate(ev, true)

	assert.True(t, result.Gates.G2)
	assert.Contains(t, []string{VerdictPass, VerdictWarn}, result.Verdict)
	assert.Equal(t, ClassInstrumentationDuplication, result.Classification.Primary)

	require.Len(t, result.TopSignals, 1)
	assert.Equal(t, "analytics_amplifiers", result.TopSignals[0].Name)
	assert.NotEmpty(t, result.TopSignals[0].Evidence)
}

func TestMixedRiskClassification(t *testing.T) {
	ev := Evidence{
		DuplicateAdImpressions: Signal{Count: 3, Evidence: refs("dup")},
	}
	result := defaultEngine().Evaluate(ev, true)
	assert.Equal(t, ClassMixedRisk, result.Classification.Primary)
}

func TestAutoRefreshRequiresAdRequests(t *testing.T) {
	withoutRequests := Evidence{AutoRefreshInflation: Signal{Count: 3, Evidence: refs("refresh")}}
	withRequests := withoutRequests
	withRequests.AdRequestsObserved = 7

	assert.False(t, defaultEngine().Evaluate(withoutRequests, true).Gates.G1)
	assert.True(t, defaultEngine().Evaluate(withRequests, true).Gates.G1)
}

func TestStructuralDisjunction(t *testing.T) {
	tests := []struct {
		description string
		ev          Evidence
		structural  bool
	}{
		{"hidden below threshold", Evidence{HiddenFrames: Signal{Count: 4, Evidence: refs("h")}}, false},
		{"hidden at threshold", Evidence{HiddenFrames: Signal{Count: 5, Evidence: refs("h")}}, true},
		{"pixel stuffing at threshold", Evidence{PixelStuffing: Signal{Count: 3, Evidence: refs("p")}}, true},
		{"stacking at threshold", Evidence{AdStacking: Signal{Count: 10, Evidence: refs("s")}}, true},
		{"overlap at threshold", Evidence{MaxOverlapRatio: 0.60, HiddenFrames: Signal{Count: 1, Evidence: refs("h")}}, true},
		{"overlap below threshold", Evidence{MaxOverlapRatio: 0.59, HiddenFrames: Signal{Count: 1, Evidence: refs("h")}}, false},
	}
	for _, tt := range tests {
		result := defaultEngine().Evaluate(tt.ev, true)
		hasStructural := false
		for _, s := range result.TopSignals {
			if s.Name == "structural_abuse" {
				hasStructural = true
			}
		}
		assert.Equal(t, tt.structural, hasStructural, tt.description)
	}
}

func TestConfidenceFormula(t *testing.T) {
	// One active feature -> 65; all four -> capped at 95.
	one := Evidence{DuplicateAdImpressions: Signal{Count: 2, Evidence: refs("dup")}}
	assert.Equal(t, 65, defaultEngine().Evaluate(one, true).Confidence)

	four := Evidence{
		DuplicateAdImpressions: Signal{Count: 2, Evidence: refs("dup")},
		HiddenFrames:           Signal{Count: 5, Evidence: refs("h")},
		PhantomScroll:          Signal{Count: 1, Evidence: refs("s")},
		GA4MeasurementIDs:      2,
	}
	assert.Equal(t, 95, defaultEngine().Evaluate(four, true).Confidence)
}

func TestEvaluationIsDeterministic(t *testing.T) {
	ev := Evidence{
		DuplicateAdImpressions: Signal{Count: 12, Evidence: refs("dup")},
		AdStacking:             Signal{Count: 30, Evidence: refs("stack")},
		PhantomScroll:          Signal{Count: 2, Evidence: refs("scroll")},
	}
	first := defaultEngine().Evaluate(ev, true)
	for i := 0; i < 10; i++ {
		require.True(t, reflect.DeepEqual(first, defaultEngine().Evaluate(ev, true)))
	}
}

func TestPublisherOverridableThresholds(t *testing.T) {
	strict := NewEngine(Config{FailThreshold: 40, WarnThreshold: 20})
	ev := Evidence{DuplicateAdImpressions: Signal{Count: 3, Evidence: refs("dup")}}
	result := strict.Evaluate(ev, true)
	// 45 points from the monetized feature alone crosses the lowered bar.
	assert.Equal(t, VerdictFail, result.Verdict)
}
