package verdict

import "fmt"

// Verdict outcomes.
const (
	VerdictPass                 = "PASS"
	VerdictWarn                 = "WARN"
	VerdictFail                 = "FAIL"
	VerdictInsufficientEvidence = "INSUFFICIENT_EVIDENCE"
)

// Classification taxonomy. Informational only; it never gates.
const (
	ClassInstrumentationDuplication = "INSTRUMENTATION_DUPLICATION"
	ClassMonetizedInflation         = "MONETIZED_INFLATION"
	ClassMixedRisk                  = "MIXED_RISK"
	ClassUnknown                    = "UNKNOWN"
)

// Config carries the tunable weights and thresholds. Publisher-level
// overrides are merge-patched onto DefaultConfig by the store layer.
type Config struct {
	MonetizedWeight  int `mapstructure:"monetized_weight" json:"monetizedWeight"`
	StructuralWeight int `mapstructure:"structural_weight" json:"structuralWeight"`
	TelemetryWeight  int `mapstructure:"telemetry_weight" json:"telemetryWeight"`
	AmplifierWeight  int `mapstructure:"amplifier_weight" json:"amplifierWeight"`

	FailThreshold int `mapstructure:"fail_threshold" json:"failThreshold"`
	WarnThreshold int `mapstructure:"warn_threshold" json:"warnThreshold"`
}

func DefaultConfig() Config {
	return Config{
		MonetizedWeight:  45,
		StructuralWeight: 35,
		TelemetryWeight:  15,
		AmplifierWeight:  10,
		FailThreshold:    70,
		WarnThreshold:    35,
	}
}

// Gates records the three gate outcomes for the rule trace. Every verdict
// must be explainable post hoc, so gates are always surfaced even when they
// did not change the outcome.
type Gates struct {
	G1 bool `json:"g1"`
	G2 bool `json:"g2"`
	G3 bool `json:"g3"`
}

// Classification is the informational labeling attached to a result.
type Classification struct {
	Primary   string   `json:"primary"`
	Rationale string   `json:"rationale"`
	RuleTrace []string `json:"ruleTrace"`
}

// SignalSummary is one entry of the result's top-signals list.
type SignalSummary struct {
	Name     string   `json:"name"`
	Count    int      `json:"count"`
	Weight   int      `json:"weight"`
	Evidence []string `json:"evidence,omitempty"`
}

// Result is the engine output. Derived wholesale per evaluation, never
// partially updated.
type Result struct {
	Verdict        string          `json:"verdict"`
	Score          int             `json:"score"`
	Confidence     int             `json:"confidence"`
	Classification Classification  `json:"classification"`
	TopSignals     []SignalSummary `json:"topSignals"`
	Gates          Gates           `json:"gates"`
}

// Engine evaluates evidence into a verdict. Stateless: one deterministic
// function over its inputs.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = def.FailThreshold
	}
	if cfg.WarnThreshold == 0 {
		cfg.WarnThreshold = def.WarnThreshold
	}
	if cfg.MonetizedWeight == 0 {
		cfg.MonetizedWeight = def.MonetizedWeight
	}
	if cfg.StructuralWeight == 0 {
		cfg.StructuralWeight = def.StructuralWeight
	}
	if cfg.TelemetryWeight == 0 {
		cfg.TelemetryWeight = def.TelemetryWeight
	}
	if cfg.AmplifierWeight == 0 {
		cfg.AmplifierWeight = def.AmplifierWeight
	}
	return &Engine{cfg: cfg}
}

// Evaluate converts an evidence set into a gated, scored, classified verdict.
// evidenceOk is the caller's statement that the evidence was assembled from a
// structurally valid scan; when false, gate G2 forces INSUFFICIENT_EVIDENCE.
func (e *Engine) Evaluate(ev Evidence, evidenceOk bool) Result {
	trace := make([]string, 0, 16)

	// Feature booleans: each is a disjunction of underlying observations.
	monetized := ev.DuplicateAdImpressions.Active(2) ||
		ev.DuplicateSlotRenders.Active(1) ||
		(ev.AutoRefreshInflation.Active(1) && ev.AdRequestsObserved > 0)
	structural := ev.HiddenFrames.Active(5) ||
		ev.PixelStuffing.Active(3) ||
		ev.AdStacking.Active(10) ||
		ev.MaxOverlapRatio >= 0.60
	telemetry := ev.PhantomScroll.Active(1) || ev.SessionInflation.Active(1)
	amplifiers := ev.GA4MeasurementIDs >= 2 || ev.GTMContainers >= 2 || ev.GA4PageViews >= 2

	trace = append(trace,
		fmt.Sprintf("feature monetizedInflationSignals=%t (dupImpressions=%d dupRenders=%d autoRefresh=%d adRequests=%d)",
			monetized, ev.DuplicateAdImpressions.Count, ev.DuplicateSlotRenders.Count, ev.AutoRefreshInflation.Count, ev.AdRequestsObserved),
		fmt.Sprintf("feature structuralAbuseSignals=%t (hidden=%d pixelStuffing=%d stacking=%d maxOverlap=%.2f)",
			structural, ev.HiddenFrames.Count, ev.PixelStuffing.Count, ev.AdStacking.Count, ev.MaxOverlapRatio),
		fmt.Sprintf("feature telemetryManipulationSignals=%t (phantomScroll=%d sessionInflation=%d)",
			telemetry, ev.PhantomScroll.Count, ev.SessionInflation.Count),
		fmt.Sprintf("feature analyticsAmplifiers=%t (ga4Ids=%d gtmContainers=%d ga4PageViews=%d)",
			amplifiers, ev.GA4MeasurementIDs, ev.GTMContainers, ev.GA4PageViews),
	)

	// Additive score: baseline weight per active feature plus magnitude
	// bonuses. No explicit clamp; the gates bound severity.
	score := 0
	activeFeatures := 0
	topSignals := make([]SignalSummary, 0, 4)
	addFeature := func(name string, active bool, weight int, count int, refs []string) {
		if !active {
			return
		}
		score += weight
		activeFeatures++
		topSignals = append(topSignals, SignalSummary{Name: name, Count: count, Weight: weight, Evidence: refs})
		trace = append(trace, fmt.Sprintf("score +%d (%s)", weight, name))
	}
	addFeature("monetized_inflation", monetized, e.cfg.MonetizedWeight,
		ev.DuplicateAdImpressions.Count, ev.DuplicateAdImpressions.Evidence)
	addFeature("structural_abuse", structural, e.cfg.StructuralWeight,
		ev.HiddenFrames.Count+ev.PixelStuffing.Count+ev.AdStacking.Count, firstNonEmpty(ev.AdStacking.Evidence, ev.HiddenFrames.Evidence, ev.PixelStuffing.Evidence))
	addFeature("telemetry_manipulation", telemetry, e.cfg.TelemetryWeight,
		ev.PhantomScroll.Count+ev.SessionInflation.Count, firstNonEmpty(ev.PhantomScroll.Evidence, ev.SessionInflation.Evidence))
	addFeature("analytics_amplifiers", amplifiers, e.cfg.AmplifierWeight,
		ev.GA4MeasurementIDs+ev.GTMContainers+ev.GA4PageViews, ev.Amplifiers.Evidence)

	if ev.DuplicateAdImpressions.Count >= 10 {
		score += 10
		trace = append(trace, fmt.Sprintf("score +10 (duplicate impressions magnitude, count=%d)", ev.DuplicateAdImpressions.Count))
	}
	if ev.AdStacking.Count >= 20 {
		score += 5
		trace = append(trace, fmt.Sprintf("score +5 (ad stacking magnitude, count=%d)", ev.AdStacking.Count))
	}
	if ev.HiddenFrames.Count >= 10 {
		score += 5
		trace = append(trace, fmt.Sprintf("score +5 (hidden frames magnitude, count=%d)", ev.HiddenFrames.Count))
	}

	// Gates. Each is computed independently and surfaced in the trace.
	gates := Gates{
		G1: monetized,
		G2: evidenceOk && ev.hasEvidenceRefs(),
		G3: !(ev.BenignVendorPresent && !monetized),
	}
	trace = append(trace,
		fmt.Sprintf("gate G1 (monetization) pass=%t", gates.G1),
		fmt.Sprintf("gate G2 (evidence) pass=%t (evidenceOk=%t refs=%t)", gates.G2, evidenceOk, ev.hasEvidenceRefs()),
		fmt.Sprintf("gate G3 (benign vendor) pass=%t (benignPresent=%t)", gates.G3, ev.BenignVendorPresent),
	)

	verdict := VerdictPass
	switch {
	case score >= e.cfg.FailThreshold && gates.G1 && gates.G3:
		verdict = VerdictFail
	case score >= e.cfg.FailThreshold:
		// A would-be FAIL blocked by G1 or G3 downgrades, never passes.
		verdict = VerdictWarn
		if !gates.G1 {
			trace = append(trace, "gate G1 downgraded FAIL to WARN: no monetized inflation signals")
		}
		if gates.G1 && !gates.G3 {
			trace = append(trace, "gate G3 downgraded FAIL to WARN: benign telemetry vendors present")
		}
	case score >= e.cfg.WarnThreshold:
		verdict = VerdictWarn
	}

	if !gates.G2 {
		verdict = VerdictInsufficientEvidence
		if score > 10 {
			score = 10
		}
		trace = append(trace, "gate G2 forced INSUFFICIENT_EVIDENCE: no citable evidence")
	}

	primary, rationale := classify(monetized, structural, telemetry, amplifiers)
	trace = append(trace, fmt.Sprintf("classification %s", primary))

	confidence := 50 + 15*activeFeatures
	if confidence > 95 {
		confidence = 95
	}
	if verdict == VerdictInsufficientEvidence && confidence > 40 {
		confidence = 40
	}

	trace = append(trace, fmt.Sprintf("verdict %s score=%d confidence=%d", verdict, score, confidence))

	return Result{
		Verdict:        verdict,
		Score:          score,
		Confidence:     confidence,
		Classification: Classification{Primary: primary, Rationale: rationale, RuleTrace: trace},
		TopSignals:     topSignals,
		Gates:          gates,
	}
}

func classify(monetized, structural, telemetry, amplifiers bool) (string, string) {
	switch {
	case monetized && structural:
		return ClassMonetizedInflation, "monetized and structural signals both fired"
	case (amplifiers || telemetry) && !monetized:
		return ClassInstrumentationDuplication, "amplifier/telemetry signals fired without monetized impact"
	case monetized != structural:
		return ClassMixedRisk, "exactly one of monetized/structural signals fired"
	default:
		return ClassUnknown, "no classifying signal combination fired"
	}
}

func firstNonEmpty(refs ...[]string) []string {
	for _, r := range refs {
		if len(r) > 0 {
			return r
		}
	}
	return nil
}
