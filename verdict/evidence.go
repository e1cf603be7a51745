package verdict

// Signal is one aggregated observation feeding the rule engine: a count plus
// references to the raw findings that back it. A signal with no evidence
// references cannot support any verdict stronger than INSUFFICIENT_EVIDENCE.
type Signal struct {
	Count    int      `json:"count"`
	Evidence []string `json:"evidence,omitempty"`
}

// Active reports whether the signal fires at the given minimum count.
func (s Signal) Active(min int) bool {
	return s.Count >= min
}

// Evidence is the full signal set for one scan, assembled by the audit
// runner from aggregates, stacking findings and collector telemetry.
type Evidence struct {
	ScanID      string `json:"scanId"`
	PublisherID string `json:"publisherId"`

	// Monetized-inflation inputs.
	DuplicateAdImpressions Signal `json:"duplicateAdImpressions"`
	DuplicateSlotRenders   Signal `json:"duplicateSlotRenders"`
	AutoRefreshInflation   Signal `json:"autoRefreshInflation"`
	AdRequestsObserved     int    `json:"adRequestsObserved"`

	// Structural-abuse inputs.
	HiddenFrames    Signal  `json:"hiddenFrames"`
	PixelStuffing   Signal  `json:"pixelStuffing"`
	AdStacking      Signal  `json:"adStacking"`
	MaxOverlapRatio float64 `json:"maxOverlapRatio"`

	// Telemetry-manipulation inputs.
	PhantomScroll    Signal `json:"phantomScroll"`
	SessionInflation Signal `json:"sessionInflation"`

	// Analytics amplifiers. The counters feed the activation thresholds;
	// Amplifiers carries the citable GA4/GTM identifiers behind them.
	GA4MeasurementIDs int    `json:"ga4MeasurementIds"`
	GTMContainers     int    `json:"gtmContainers"`
	GA4PageViews      int    `json:"ga4PageViews"`
	Amplifiers        Signal `json:"amplifiers"`

	// BenignVendorPresent marks known consent/auth telemetry infrastructure
	// among the scan's vendors; it feeds gate G3 only.
	BenignVendorPresent bool `json:"benignVendorPresent"`
}

// signals returns every signal carrying evidence references.
func (e *Evidence) signals() []Signal {
	return []Signal{
		e.DuplicateAdImpressions,
		e.DuplicateSlotRenders,
		e.AutoRefreshInflation,
		e.HiddenFrames,
		e.PixelStuffing,
		e.AdStacking,
		e.PhantomScroll,
		e.SessionInflation,
		e.Amplifiers,
	}
}

// hasEvidenceRefs reports whether any signal cites at least one raw
// observation.
func (e *Evidence) hasEvidenceRefs() bool {
	for _, s := range e.signals() {
		if len(s.Evidence) > 0 {
			return true
		}
	}
	return false
}
