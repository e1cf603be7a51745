package audit

import (
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"

	"github.com/adverify/adverify-server/aggregate"
	"github.com/adverify/adverify-server/classifier"
	"github.com/adverify/adverify-server/consent"
	"github.com/adverify/adverify-server/correlation"
	"github.com/adverify/adverify-server/dedup"
	"github.com/adverify/adverify-server/errortypes"
	"github.com/adverify/adverify-server/scan"
	"github.com/adverify/adverify-server/stacking"
	"github.com/adverify/adverify-server/verdict"
)

// Config carries the per-run tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	DedupTTLMs                int64   `mapstructure:"dedup_ttl_ms"`
	CorrelationWindowMs       int64   `mapstructure:"correlation_window_ms"`
	ClickWindowMs             int64   `mapstructure:"click_window_ms"`
	ViewabilityDiscrepancyPct float64 `mapstructure:"viewability_discrepancy_pct"`

	// BenignVendors are extra hostname suffixes a publisher has allowlisted
	// as telemetry infrastructure, on top of the built-in set.
	BenignVendors []string `mapstructure:"benign_vendors"`
}

const defaultClickWindowMs = 1500
const defaultViewabilityDiscrepancyPct = 10.0

// Runner executes the audit pipeline over one collected scan. It is safe for
// concurrent use: every Run builds fresh scan-scoped state (ledger, tracker)
// and shares nothing across scans.
type Runner struct {
	cfg    Config
	engine *verdict.Engine
}

func NewRunner(cfg Config, engine *verdict.Engine) *Runner {
	if cfg.DedupTTLMs <= 0 {
		cfg.DedupTTLMs = dedup.DefaultTTLMs
	}
	if cfg.CorrelationWindowMs <= 0 {
		cfg.CorrelationWindowMs = correlation.DefaultWindowMs
	}
	if cfg.ClickWindowMs <= 0 {
		cfg.ClickWindowMs = defaultClickWindowMs
	}
	if cfg.ViewabilityDiscrepancyPct <= 0 {
		cfg.ViewabilityDiscrepancyPct = defaultViewabilityDiscrepancyPct
	}
	if engine == nil {
		engine = verdict.NewEngine(verdict.DefaultConfig())
	}
	return &Runner{cfg: cfg, engine: engine}
}

// Run audits one scan payload. A partial payload from an aborted scan
// degrades gracefully: fewer events mean weaker evidence, and an empty
// payload resolves to INSUFFICIENT_EVIDENCE through gate G2, never an error.
// The only error is a nil payload, which is a caller bug.
func (r *Runner) Run(payload *scan.Payload) (*Result, error) {
	if payload == nil {
		return nil, &errortypes.BadInput{Message: "nil scan payload"}
	}

	ledger := dedup.NewLedger()
	tracker := correlation.NewTracker(r.cfg.CorrelationWindowMs)
	for _, render := range payload.SlotRenders {
		tracker.RecordSlotRender(render)
	}
	for _, req := range payload.GamRequests {
		tracker.RecordGamRequest(req)
	}

	classified := r.classifyAll(payload.Events)
	sequences, duplicateCounts := r.dedupe(ledger, classified)
	r.verifyClicks(sequences, payload.Clicks)

	countedRenders := r.countRenders(ledger, payload.SlotRenders)
	findings := stacking.Detect(payload.Iframes, payload.Viewport)

	summary := r.summarize(sequences, tracker, payload.GamRequests, countedRenders, findings, duplicateCounts)
	flags := r.viewabilityFlags(ledger, payload.SlotRenders, sequences)

	aggregates := aggregate.Aggregate(classified, payload.ScanID, payload.PublisherID)
	markStackingSuspects(aggregates, findings)

	consentAnalysis := consent.AnalyzeWith(payload.ConsentString, hostnamesOf(classified), r.cfg.BenignVendors)

	evidence := buildEvidence(payload, classified, duplicateCounts, findings, consentAnalysis)
	verdictResult := r.engine.Evaluate(evidence, true)

	reportID := ""
	if id, err := uuid.NewV4(); err == nil {
		reportID = id.String()
	} else {
		glog.Errorf("Failed to generate report id for scan %s: %v", payload.ScanID, err)
	}

	return &Result{
		ScanID:        payload.ScanID,
		PublisherID:   payload.PublisherID,
		ReportID:      reportID,
		GeneratedAtMs: time.Now().UnixNano() / int64(time.Millisecond),
		Sequences:     sequences,
		Summary:       summary,
		Flags:         flags,
		AdStacking:    findings,
		Aggregates:    aggregates,
		Verdict:       verdictResult,
		Consent:       consentAnalysis,
	}, nil
}

// classifyAll labels the raw events in timestamp order. Unclassifiable
// events are simply absent from the output.
func (r *Runner) classifyAll(events []scan.RawRequestEvent) []*scan.ClassifiedEvent {
	sorted := make([]scan.RawRequestEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	out := make([]*scan.ClassifiedEvent, 0, len(sorted))
	for _, evt := range sorted {
		if classified := classifier.Classify(evt); classified != nil {
			out = append(out, classified)
		}
	}
	return out
}

// dedupe runs the ledger over the classified events and returns the counted
// sequence plus per-category suppression counts.
func (r *Runner) dedupe(ledger *dedup.Ledger, classified []*scan.ClassifiedEvent) ([]*scan.ClassifiedEvent, map[scan.Category]int) {
	sequences := make([]*scan.ClassifiedEvent, 0, len(classified))
	duplicates := make(map[scan.Category]int)
	for _, evt := range classified {
		if ledger.ShouldCount(dedup.BeaconKey(evt), evt.Timestamp, r.cfg.DedupTTLMs) {
			sequences = append(sequences, evt)
		} else {
			duplicates[evt.Category]++
		}
	}
	return sequences, duplicates
}

// verifyClicks reclassifies CLICK_REDIRECT events: a user click within the
// click window before the redirect verifies it; absent that it becomes a
// SUSPECT_CLICK.
func (r *Runner) verifyClicks(sequences []*scan.ClassifiedEvent, clicks []scan.ClickEvent) {
	for _, evt := range sequences {
		if evt.Category != scan.CategoryClickRedirect {
			continue
		}
		verified := false
		for _, click := range clicks {
			delta := evt.Timestamp - click.Timestamp
			if delta >= 0 && delta <= r.cfg.ClickWindowMs {
				verified = true
				break
			}
		}
		if verified {
			evt.Verified = true
		} else {
			evt.Category = scan.CategorySuspectClick
		}
	}
}

// countRenders dedupes the slot renders; a repeat of the same creative in
// the same slot within the TTL is one served impression.
func (r *Runner) countRenders(ledger *dedup.Ledger, renders []scan.SlotRenderRecord) int {
	counted := 0
	for _, render := range renders {
		if render.IsEmpty {
			continue
		}
		if ledger.ShouldCount("render|"+dedup.RenderKey(render), render.Timestamp, r.cfg.DedupTTLMs) {
			counted++
		}
	}
	return counted
}

func (r *Runner) summarize(sequences []*scan.ClassifiedEvent, tracker *correlation.Tracker, gamRequests []scan.GamRequestRecord, countedRenders int, findings stacking.Findings, duplicateCounts map[scan.Category]int) Summary {
	summary := Summary{
		ServedImpressions: countedRenders,
		CategoryCounts:    make(map[scan.Category]int),
		DuplicateCounts:   duplicateCounts,
	}

	// An ad request with no render inside the correlation window is a
	// request the page fired without ever showing anything for it.
	for _, req := range gamRequests {
		if tracker.CanCorrelateGamRequest(req) {
			summary.CorrelatedGamRequests++
		} else {
			summary.UncorrelatedGamRequests++
		}
	}

	for _, evt := range sequences {
		summary.CategoryCounts[evt.Category]++
		switch evt.Category {
		case scan.CategoryImpressionBeacon:
			summary.TotalImpressions++
			if tracker.CanMapToSlotRender(evt) {
				evt.Verified = true
				summary.VerifiedImpressions++
			}
		case scan.CategoryClickRedirect:
			summary.Clicks++
			if evt.Verified {
				summary.VerifiedClicks++
			}
		case scan.CategorySuspectClick:
			summary.Clicks++
			summary.SuspectClicks++
		}
	}

	// Hidden and stuffed frames render without being viewable.
	viewable := countedRenders - findings.HiddenIframesCount - findings.TinyIframesCount
	if viewable < 0 {
		viewable = 0
	}
	summary.ViewableImpressions = viewable

	if summary.ServedImpressions > 0 {
		diff := math.Abs(float64(summary.ServedImpressions - summary.VerifiedImpressions))
		summary.DiscrepancyPct = round2(diff / float64(summary.ServedImpressions) * 100)
	}
	return summary
}

// viewabilityFlags compares per-creative render counts against beacon counts.
func (r *Runner) viewabilityFlags(ledger *dedup.Ledger, renders []scan.SlotRenderRecord, sequences []*scan.ClassifiedEvent) []ViewabilityFlag {
	renderByCreative := make(map[string]int)
	for _, render := range renders {
		if !render.IsEmpty && render.CreativeID != "" {
			renderByCreative[render.CreativeID]++
		}
	}
	beaconByCreative := make(map[string]int)
	for _, evt := range sequences {
		if evt.Category == scan.CategoryImpressionBeacon && evt.Identifiers.CreativeID != "" {
			beaconByCreative[evt.Identifiers.CreativeID]++
		}
	}

	flags := make([]ViewabilityFlag, 0)
	for creativeID, renderCount := range renderByCreative {
		beaconCount := beaconByCreative[creativeID]
		discrepancy := math.Abs(float64(renderCount-beaconCount)) / float64(renderCount) * 100
		if discrepancy > r.cfg.ViewabilityDiscrepancyPct {
			flags = append(flags, ViewabilityFlag{
				CreativeID:     creativeID,
				RenderCount:    renderCount,
				BeaconCount:    beaconCount,
				DiscrepancyPct: round2(discrepancy),
			})
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].CreativeID < flags[j].CreativeID })
	return flags
}

// markStackingSuspects flags aggregates whose vendor host appears in any
// geometry finding's frame src.
func markStackingSuspects(aggregates []aggregate.VendorAggregate, findings stacking.Findings) {
	if len(findings.Findings) == 0 {
		return
	}
	suspects := make(map[string]bool)
	for _, f := range findings.Findings {
		for _, src := range []string{f.FrameSrc, f.PartnerSrc} {
			if host := hostOf(src); host != "" {
				suspects[host] = true
			}
		}
	}
	for i := range aggregates {
		if suspects[aggregates[i].VendorHost] {
			aggregates[i].StackingSuspected = true
		}
	}
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func hostnamesOf(classified []*scan.ClassifiedEvent) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(classified))
	for _, evt := range classified {
		if evt.Hostname != "" && !seen[evt.Hostname] {
			seen[evt.Hostname] = true
			out = append(out, evt.Hostname)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
