package audit

import (
	"fmt"
	"sort"

	"github.com/adverify/adverify-server/consent"
	"github.com/adverify/adverify-server/dedup"
	"github.com/adverify/adverify-server/scan"
	"github.com/adverify/adverify-server/stacking"
	"github.com/adverify/adverify-server/verdict"
)

// maxEvidenceRefs bounds each signal's reference list; the verdict only
// needs citable evidence, not an exhaustive dump.
const maxEvidenceRefs = 10

// duplicateRenderWindowMs is the window within which a repeat render of the
// same slot counts as a monetized-inflation observation.
const duplicateRenderWindowMs = 2000

// buildEvidence assembles the verdict engine input from the pipeline
// outputs. Every signal that fires carries references back to the raw
// observations that produced it.
func buildEvidence(payload *scan.Payload, classified []*scan.ClassifiedEvent, duplicateCounts map[scan.Category]int, findings stacking.Findings, consentAnalysis consent.Analysis) verdict.Evidence {
	ev := verdict.Evidence{
		ScanID:              payload.ScanID,
		PublisherID:         payload.PublisherID,
		BenignVendorPresent: consentAnalysis.BenignVendorPresent,
	}

	ev.DuplicateAdImpressions = duplicateImpressionSignal(classified, duplicateCounts)
	ev.DuplicateSlotRenders = duplicateRenderSignal(payload.SlotRenders)

	for _, evt := range classified {
		if evt.Category == scan.CategoryGAMAdRequest || evt.Category == scan.CategoryAdRequest {
			ev.AdRequestsObserved++
		}
	}
	if payload.Telemetry.AutoRefreshEvents > 0 {
		ev.AutoRefreshInflation = verdict.Signal{
			Count:    payload.Telemetry.AutoRefreshEvents,
			Evidence: []string{fmt.Sprintf("telemetry:autoRefresh:%d", payload.Telemetry.AutoRefreshEvents)},
		}
	}

	// Offscreen frames fold into the hidden total. A frame parked outside
	// the viewport is as invisible as a CSS-hidden one; both feed the same
	// activation threshold.
	ev.HiddenFrames = frameSignal(findings, stacking.FlagHiddenOpacity, stacking.FlagHiddenDisplay, stacking.FlagHiddenVisibility, stacking.FlagOffscreen)
	ev.HiddenFrames.Count = findings.HiddenIframesCount + findings.OffscreenIframesCount
	ev.PixelStuffing = frameSignal(findings, stacking.FlagTiny)
	ev.PixelStuffing.Count = findings.TinyIframesCount
	ev.AdStacking = stackingSignal(findings)
	ev.MaxOverlapRatio = maxOverlap(findings)

	if payload.Telemetry.PhantomScrollEvents > 0 {
		ev.PhantomScroll = verdict.Signal{
			Count:    payload.Telemetry.PhantomScrollEvents,
			Evidence: []string{fmt.Sprintf("telemetry:phantomScroll:%d", payload.Telemetry.PhantomScrollEvents)},
		}
	}
	if payload.Telemetry.SessionInflationEvents > 0 {
		ev.SessionInflation = verdict.Signal{
			Count:    payload.Telemetry.SessionInflationEvents,
			Evidence: []string{fmt.Sprintf("telemetry:sessionInflation:%d", payload.Telemetry.SessionInflationEvents)},
		}
	}

	ev.GA4MeasurementIDs = len(payload.Telemetry.GA4MeasurementIDs)
	ev.GTMContainers = len(payload.Telemetry.GTMContainers)
	ev.GA4PageViews = payload.Telemetry.GA4PageViews
	ev.Amplifiers = amplifierSignal(payload.Telemetry)
	return ev
}

// amplifierSignal cites the GA4 measurement ids and GTM containers seen on
// the page, so an amplifier-only scan still carries citable evidence.
func amplifierSignal(telemetry scan.Telemetry) verdict.Signal {
	signal := verdict.Signal{}
	for _, id := range telemetry.GA4MeasurementIDs {
		signal.Count++
		if len(signal.Evidence) < maxEvidenceRefs {
			signal.Evidence = append(signal.Evidence, "ga4:"+id)
		}
	}
	for _, id := range telemetry.GTMContainers {
		signal.Count++
		if len(signal.Evidence) < maxEvidenceRefs {
			signal.Evidence = append(signal.Evidence, "gtm:"+id)
		}
	}
	if telemetry.GA4PageViews > 0 {
		signal.Count += telemetry.GA4PageViews
		if len(signal.Evidence) < maxEvidenceRefs {
			signal.Evidence = append(signal.Evidence, fmt.Sprintf("telemetry:ga4PageViews:%d", telemetry.GA4PageViews))
		}
	}
	return signal
}

// duplicateImpressionSignal counts ledger-suppressed ad traffic and cites
// the URLs that fired more than once.
func duplicateImpressionSignal(classified []*scan.ClassifiedEvent, duplicateCounts map[scan.Category]int) verdict.Signal {
	count := duplicateCounts[scan.CategoryImpressionBeacon] +
		duplicateCounts[scan.CategoryAdRequest] +
		duplicateCounts[scan.CategoryGAMAdRequest]
	if count == 0 {
		return verdict.Signal{}
	}

	// Cite the fingerprints observed more than once, in deterministic order.
	fires := make(map[string]int)
	for _, evt := range classified {
		switch evt.Category {
		case scan.CategoryImpressionBeacon, scan.CategoryAdRequest, scan.CategoryGAMAdRequest:
			fires[dedup.BeaconKey(evt)]++
		}
	}
	duplicated := make([]string, 0, len(fires))
	for key, n := range fires {
		if n > 1 {
			duplicated = append(duplicated, fmt.Sprintf("beacon:%s(x%d)", key, n))
		}
	}
	sort.Strings(duplicated)
	if len(duplicated) > maxEvidenceRefs {
		duplicated = duplicated[:maxEvidenceRefs]
	}
	return verdict.Signal{Count: count, Evidence: duplicated}
}

// duplicateRenderSignal finds repeat renders of the same slot inside the
// duplicate-render window.
func duplicateRenderSignal(renders []scan.SlotRenderRecord) verdict.Signal {
	byKey := make(map[string][]scan.SlotRenderRecord)
	for _, render := range renders {
		if render.IsEmpty {
			continue
		}
		key := render.SlotID
		if key == "" {
			key = render.AdUnitPath
		}
		byKey[key] = append(byKey[key], render)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	signal := verdict.Signal{}
	for _, key := range keys {
		group := byKey[key]
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp < group[j].Timestamp })
		for i := 1; i < len(group); i++ {
			if group[i].Timestamp-group[i-1].Timestamp <= duplicateRenderWindowMs {
				signal.Count++
				if len(signal.Evidence) < maxEvidenceRefs {
					signal.Evidence = append(signal.Evidence,
						fmt.Sprintf("render:%s@%d+%d", key, group[i-1].Timestamp, group[i].Timestamp-group[i-1].Timestamp))
				}
			}
		}
	}
	return signal
}

func frameSignal(findings stacking.Findings, flags ...stacking.Flag) verdict.Signal {
	wanted := make(map[stacking.Flag]bool, len(flags))
	for _, f := range flags {
		wanted[f] = true
	}
	signal := verdict.Signal{}
	for _, finding := range findings.Findings {
		if !wanted[finding.Flag] {
			continue
		}
		if len(signal.Evidence) < maxEvidenceRefs {
			signal.Evidence = append(signal.Evidence, fmt.Sprintf("iframe:%s:%s", finding.FrameID, finding.Flag))
		}
	}
	return signal
}

func stackingSignal(findings stacking.Findings) verdict.Signal {
	signal := verdict.Signal{Count: findings.StackedPairsCount}
	for _, finding := range findings.Findings {
		if finding.Flag != stacking.FlagStacked {
			continue
		}
		if len(signal.Evidence) < maxEvidenceRefs {
			signal.Evidence = append(signal.Evidence,
				fmt.Sprintf("iframe:%s+%s:overlap=%.2f", finding.FrameID, finding.PartnerID, finding.OverlapRatio))
		}
	}
	return signal
}

func maxOverlap(findings stacking.Findings) float64 {
	max := 0.0
	for _, finding := range findings.Findings {
		if finding.Flag == stacking.FlagStacked && finding.OverlapRatio > max {
			max = finding.OverlapRatio
		}
	}
	return max
}
