package scan

// Category labels one observed network event. Exactly one category is
// assigned per event; events that match no rule are not beacons and carry
// no category at all.
type Category string

const (
	CategoryTagLibrary       Category = "TAG_LIBRARY"
	CategoryIDSync           Category = "ID_SYNC"
	CategoryClickRedirect    Category = "CLICK_REDIRECT"
	CategoryGAMAdRequest     Category = "GAM_AD_REQUEST"
	CategoryImpressionBeacon Category = "IMPRESSION_BEACON"
	CategoryAdRequest        Category = "AD_REQUEST"
	CategoryOther            Category = "OTHER"

	// CategorySuspectClick is not produced by the classifier. A
	// CLICK_REDIRECT is downgraded to it by the audit runner when no user
	// click precedes the redirect within the click window.
	CategorySuspectClick Category = "SUSPECT_CLICK"
)

// Categories returns every label the classifier or the audit runner can
// assign. Used to pre-register per-category metrics.
func Categories() []Category {
	return []Category{
		CategoryTagLibrary,
		CategoryIDSync,
		CategoryClickRedirect,
		CategoryGAMAdRequest,
		CategoryImpressionBeacon,
		CategoryAdRequest,
		CategoryOther,
		CategorySuspectClick,
	}
}

// RawRequestEvent is one observed network request/response pair, exactly as
// the collector saw it. Produced once, never mutated.
type RawRequestEvent struct {
	URL          string `json:"url"`
	Hostname     string `json:"hostname,omitempty"`
	Path         string `json:"path,omitempty"`
	Method       string `json:"method"`
	ResourceType string `json:"resourceType"`
	FrameURL     string `json:"frameUrl,omitempty"`
	PageURL      string `json:"pageUrl,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Identifiers are the ad-serving ids the classifier could recover from an
// event's URL. All fields are optional.
type Identifiers struct {
	SlotID     string `json:"slotId,omitempty"`
	AdUnitPath string `json:"adUnitPath,omitempty"`
	CreativeID string `json:"creativeId,omitempty"`
	LineItemID string `json:"lineItemId,omitempty"`
	Placement  string `json:"placement,omitempty"`
}

// ClassifiedEvent is a RawRequestEvent plus the classifier's labeling.
type ClassifiedEvent struct {
	RawRequestEvent
	Category    Category    `json:"category"`
	Vendor      string      `json:"vendor"`
	Confidence  float64     `json:"confidence"`
	Identifiers Identifiers `json:"identifiers,omitempty"`

	// Verified is set by the audit runner for CLICK_REDIRECT events with a
	// matching user click, and for IMPRESSION_BEACON events that map to a
	// recorded slot render.
	Verified bool `json:"verified,omitempty"`
}

// SlotRenderRecord is one GPT slotRenderEnded observation. Append-only for
// the lifetime of a scan.
type SlotRenderRecord struct {
	Timestamp  int64  `json:"ts"`
	SlotID     string `json:"slotId,omitempty"`
	AdUnitPath string `json:"adUnitPath,omitempty"`
	CreativeID string `json:"creativeId,omitempty"`
	LineItemID string `json:"lineItemId,omitempty"`
	Sizes      string `json:"sizes,omitempty"`
	IsEmpty    bool   `json:"isEmpty"`
}

// GamRequestRecord is one observed Google Ad Manager ad request.
type GamRequestRecord struct {
	Timestamp int64  `json:"ts"`
	URL       string `json:"url"`
	SlotID    string `json:"slotId,omitempty"`
}

// BBox is an axis-aligned bounding box in viewport coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CSSState is the computed style subset relevant to hidden-placement
// detection.
type CSSState struct {
	Display    string `json:"display,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	Opacity    string `json:"opacity,omitempty"`
	ZIndex     string `json:"zIndex,omitempty"`
}

// IframeGeometrySnapshot captures one candidate ad iframe during the
// geometry rescan pass. Captured once, never mutated.
type IframeGeometrySnapshot struct {
	ID   string   `json:"id"`
	BBox BBox     `json:"bbox"`
	CSS  CSSState `json:"css"`
	Src  string   `json:"src,omitempty"`
}

// Viewport is the page viewport at geometry capture time.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClickEvent is one user click the collector observed.
type ClickEvent struct {
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	TagName   string  `json:"tagName,omitempty"`
	ID        string  `json:"id,omitempty"`
	ClassName string  `json:"className,omitempty"`
	Href      string  `json:"href,omitempty"`
	Context   string  `json:"context,omitempty"`
}

// Telemetry carries collector-side counters that feed the verdict engine's
// telemetry and amplifier signals.
type Telemetry struct {
	AutoRefreshEvents      int      `json:"autoRefreshEvents,omitempty"`
	PhantomScrollEvents    int      `json:"phantomScrollEvents,omitempty"`
	SessionInflationEvents int      `json:"sessionInflationEvents,omitempty"`
	GA4MeasurementIDs      []string `json:"ga4MeasurementIds,omitempty"`
	GTMContainers          []string `json:"gtmContainers,omitempty"`
	GA4PageViews           int      `json:"ga4PageViews,omitempty"`
}
