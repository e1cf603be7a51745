package dedup

import (
	"sort"
	"strings"

	"github.com/adverify/adverify-server/scan"
)

// cacheBusterParams are query parameters that exist only to defeat caches.
// Stripping them makes two fires of the same logical beacon compare equal.
var cacheBusterParams = map[string]bool{
	"cb":        true,
	"cachebust": true,
	"_":         true,
	"ord":       true,
	"rnd":       true,
	"t":         true,
	"timestamp": true,
	"nocache":   true,
	"r":         true,
}

// RenderKey fingerprints a slot render. Two renders of the same creative in
// the same slot within the TTL are one counted impression.
func RenderKey(r scan.SlotRenderRecord) string {
	return strings.Join([]string{
		r.SlotID,
		r.CreativeID,
		r.LineItemID,
		normalizeSizes(r.Sizes),
		r.AdUnitPath,
	}, "|")
}

// BeaconKey fingerprints an impression beacon. When the event carries
// ad-serving identifiers the key is built from them; otherwise it falls back
// to the request URL with cache-buster parameters stripped.
func BeaconKey(evt *scan.ClassifiedEvent) string {
	ids := evt.Identifiers
	if ids.CreativeID != "" || ids.Placement != "" {
		return strings.Join([]string{
			evt.Vendor,
			evt.Hostname,
			evt.Path,
			ids.CreativeID,
			ids.Placement,
		}, "|")
	}
	return StripCacheBusters(evt.URL)
}

// StripCacheBusters removes cache-buster query parameters from a raw URL,
// preserving the order of the remaining parameters. The fragment is dropped.
func StripCacheBusters(raw string) string {
	frag := strings.IndexByte(raw, '#')
	if frag >= 0 {
		raw = raw[:frag]
	}
	q := strings.IndexByte(raw, '?')
	if q < 0 {
		return raw
	}

	base, query := raw[:q], raw[q+1:]
	if query == "" {
		return base
	}

	kept := make([]string, 0, 8)
	for _, pair := range strings.Split(query, "&") {
		key := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key = pair[:eq]
		}
		if cacheBusterParams[strings.ToLower(key)] {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}

// normalizeSizes canonicalizes a creative size list ("728x90,300x250" and
// "300X250, 728x90" normalize identically).
func normalizeSizes(sizes string) string {
	if sizes == "" {
		return ""
	}
	parts := strings.Split(strings.ToLower(sizes), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
