package stacking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adverify/adverify-server/scan"
)

// Flag identifies one geometry anomaly on an iframe or iframe pair. Flags
// are not exclusive; a single iframe may carry several.
type Flag string

const (
	FlagTiny             Flag = "TINY"
	FlagHiddenOpacity    Flag = "HIDDEN_OPACITY"
	FlagHiddenDisplay    Flag = "HIDDEN_DISPLAY"
	FlagHiddenVisibility Flag = "HIDDEN_VISIBILITY"
	FlagNegativeZIndex   Flag = "NEGATIVE_ZINDEX"
	FlagOffscreen        Flag = "OFFSCREEN"
	FlagStacked          Flag = "STACKED"
)

const (
	// tinyMaxPx is the largest dimension a pixel-stuffed frame can have.
	tinyMaxPx = 2.0
	// minPairArea excludes sub-banner fragments from the pairwise check.
	minPairArea = 2000.0
	// stackedOverlapThreshold is the overlap ratio at which two frames count
	// as stacked.
	stackedOverlapThreshold = 0.30
)

// Finding records one flagged anomaly with enough geometry to justify it;
// findings become evidence references downstream.
type Finding struct {
	Flag         Flag       `json:"flag"`
	FrameID      string     `json:"frameId"`
	FrameSrc     string     `json:"frameSrc,omitempty"`
	PartnerID    string     `json:"partnerId,omitempty"`
	PartnerSrc   string     `json:"partnerSrc,omitempty"`
	BBox         scan.BBox  `json:"bbox"`
	PartnerBBox  *scan.BBox `json:"partnerBbox,omitempty"`
	OverlapRatio float64    `json:"overlapRatio,omitempty"`
	Detail       string     `json:"detail,omitempty"`
}

// Findings is the detector output: the findings themselves plus per-category
// counts. NEGATIVE_ZINDEX findings are informational and not independently
// counted.
type Findings struct {
	Findings              []Finding `json:"findings"`
	StackedPairsCount     int       `json:"stackedPairsCount"`
	HiddenIframesCount    int       `json:"hiddenIframesCount"`
	TinyIframesCount      int       `json:"tinyIframesCount"`
	OffscreenIframesCount int       `json:"offscreenIframesCount"`
}

// Detect analyzes one geometry capture pass. It is pure: same snapshots and
// viewport in, same findings out.
//
// The pairwise overlap check is O(n^2) in iframe count; acceptable because
// the collector pre-filters candidates to ad-like elements, keeping n small.
func Detect(frames []scan.IframeGeometrySnapshot, viewport scan.Viewport) Findings {
	out := Findings{Findings: []Finding{}}

	for _, f := range frames {
		hidden := false

		if f.BBox.W <= tinyMaxPx || f.BBox.H <= tinyMaxPx {
			out.Findings = append(out.Findings, Finding{
				Flag:     FlagTiny,
				FrameID:  f.ID,
				FrameSrc: f.Src,
				BBox:     f.BBox,
				Detail:   fmt.Sprintf("%gx%g frame", f.BBox.W, f.BBox.H),
			})
			out.TinyIframesCount++
		}

		if isZeroOpacity(f.CSS.Opacity) {
			out.Findings = append(out.Findings, Finding{Flag: FlagHiddenOpacity, FrameID: f.ID, FrameSrc: f.Src, BBox: f.BBox, Detail: "opacity:" + f.CSS.Opacity})
			hidden = true
		}
		if strings.EqualFold(f.CSS.Display, "none") {
			out.Findings = append(out.Findings, Finding{Flag: FlagHiddenDisplay, FrameID: f.ID, FrameSrc: f.Src, BBox: f.BBox, Detail: "display:none"})
			hidden = true
		}
		if strings.EqualFold(f.CSS.Visibility, "hidden") {
			out.Findings = append(out.Findings, Finding{Flag: FlagHiddenVisibility, FrameID: f.ID, FrameSrc: f.Src, BBox: f.BBox, Detail: "visibility:hidden"})
			hidden = true
		}
		if hidden {
			out.HiddenIframesCount++
		}

		if z, err := strconv.Atoi(strings.TrimSpace(f.CSS.ZIndex)); err == nil && z < 0 {
			out.Findings = append(out.Findings, Finding{Flag: FlagNegativeZIndex, FrameID: f.ID, FrameSrc: f.Src, BBox: f.BBox, Detail: "z-index:" + f.CSS.ZIndex})
		}

		if isOffscreen(f.BBox, viewport) {
			out.Findings = append(out.Findings, Finding{Flag: FlagOffscreen, FrameID: f.ID, FrameSrc: f.Src, BBox: f.BBox})
			out.OffscreenIframesCount++
		}
	}

	for i := 0; i < len(frames); i++ {
		if area(frames[i].BBox) < minPairArea {
			continue
		}
		for j := i + 1; j < len(frames); j++ {
			if area(frames[j].BBox) < minPairArea {
				continue
			}
			ratio := OverlapRatio(frames[i].BBox, frames[j].BBox)
			if ratio < stackedOverlapThreshold {
				continue
			}
			partner := frames[j].BBox
			out.Findings = append(out.Findings, Finding{
				Flag:         FlagStacked,
				FrameID:      frames[i].ID,
				FrameSrc:     frames[i].Src,
				PartnerID:    frames[j].ID,
				PartnerSrc:   frames[j].Src,
				BBox:         frames[i].BBox,
				PartnerBBox:  &partner,
				OverlapRatio: ratio,
			})
			out.StackedPairsCount++
		}
	}

	return out
}

// OverlapRatio is intersectionArea / min(areaA, areaB), symmetric in its
// arguments. Degenerate boxes yield 0.
func OverlapRatio(a, b scan.BBox) float64 {
	areaA, areaB := area(a), area(b)
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	inter := intersectionArea(a, b)
	if inter <= 0 {
		return 0
	}
	min := areaA
	if areaB < min {
		min = areaB
	}
	return inter / min
}

func area(b scan.BBox) float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// intersectionArea clips two axis-aligned boxes; zero or negative extents
// yield 0.
func intersectionArea(a, b scan.BBox) float64 {
	x1 := maxf(a.X, b.X)
	y1 := maxf(a.Y, b.Y)
	x2 := minf(a.X+a.W, b.X+b.W)
	y2 := minf(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

// isOffscreen reports whether the box lies entirely outside the viewport.
func isOffscreen(b scan.BBox, v scan.Viewport) bool {
	if v.Width <= 0 || v.Height <= 0 {
		return false
	}
	return b.X+b.W <= 0 || b.Y+b.H <= 0 || b.X >= v.Width || b.Y >= v.Height
}

func isZeroOpacity(opacity string) bool {
	if opacity == "" {
		return false
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(opacity), 64)
	return err == nil && val == 0
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
