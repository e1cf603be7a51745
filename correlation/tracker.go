package correlation

import (
	"sync"

	"github.com/adverify/adverify-server/scan"
)

// DefaultWindowMs bounds how long after an ad request a slot render still
// correlates with it.
const DefaultWindowMs = 5000

const unknownSlotKey = "unknown"

// Tracker correlates ad-request events with slot renders, and impression
// beacons with the creatives those renders delivered. It is scan-scoped and
// append-only: records accumulate for the scan's lifetime and are discarded
// with the Tracker.
//
// Two deliberately different strategies live here. GAM requests correlate by
// slot key within a bounded time window, because request->render latency is
// small and predictable. Beacons map by creative/line-item identity with no
// window at all, because beacon firing is jittery and may trail the render
// arbitrarily; a time window there would undercount.
type Tracker struct {
	mu       sync.Mutex
	renders  map[string][]scan.SlotRenderRecord
	requests map[string][]scan.GamRequestRecord
	windowMs int64
}

func NewTracker(windowMs int64) *Tracker {
	if windowMs <= 0 {
		windowMs = DefaultWindowMs
	}
	return &Tracker{
		renders:  make(map[string][]scan.SlotRenderRecord),
		requests: make(map[string][]scan.GamRequestRecord),
		windowMs: windowMs,
	}
}

func renderSlotKey(r scan.SlotRenderRecord) string {
	if r.SlotID != "" {
		return r.SlotID
	}
	if r.AdUnitPath != "" {
		return r.AdUnitPath
	}
	return unknownSlotKey
}

func requestSlotKey(r scan.GamRequestRecord) string {
	if r.SlotID != "" {
		return r.SlotID
	}
	return unknownSlotKey
}

// RecordSlotRender appends one render observation.
func (t *Tracker) RecordSlotRender(r scan.SlotRenderRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := renderSlotKey(r)
	t.renders[key] = append(t.renders[key], r)
}

// RecordGamRequest appends one ad-request observation.
func (t *Tracker) RecordGamRequest(r scan.GamRequestRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := requestSlotKey(r)
	t.requests[key] = append(t.requests[key], r)
}

// CanCorrelateGamRequest reports whether some recorded non-empty render for
// the same slot key occurred at or after the request, within the window. The
// match is one-directional: a render before the request never correlates.
func (t *Tracker) CanCorrelateGamRequest(r scan.GamRequestRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, render := range t.renders[requestSlotKey(r)] {
		if render.IsEmpty {
			continue
		}
		delta := render.Timestamp - r.Timestamp
		if delta >= 0 && delta <= t.windowMs {
			return true
		}
	}
	return false
}

// CanMapToSlotRender reports whether the beacon's creative or line-item id
// matches any recorded non-empty render, across all slot keys. Beacons
// without either identifier never map.
func (t *Tracker) CanMapToSlotRender(evt *scan.ClassifiedEvent) bool {
	creativeID := evt.Identifiers.CreativeID
	lineItemID := evt.Identifiers.LineItemID
	if creativeID == "" && lineItemID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, records := range t.renders {
		for _, render := range records {
			if render.IsEmpty {
				continue
			}
			if creativeID != "" && render.CreativeID == creativeID {
				return true
			}
			if lineItemID != "" && render.LineItemID == lineItemID {
				return true
			}
		}
	}
	return false
}

// RenderCount returns the number of recorded renders, empty included.
func (t *Tracker) RenderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, records := range t.renders {
		n += len(records)
	}
	return n
}
