package classifier

import (
	"sort"
	"strings"
)

// canonicalVendors maps a hostname/URL substring to a canonical vendor name.
// Lookup is longest-match-first so that a more specific substring always wins
// over a vendor substring that happens to be its prefix; the order is fixed
// at init and never depends on map iteration.
var canonicalVendors = map[string]string{
	"securepubads.g.doubleclick.net": "Google",
	"pubads.g.doubleclick.net":       "Google",
	"doubleclick.net":                "Google",
	"googlesyndication.com":          "Google",
	"googleadservices.com":           "Google",
	"google-analytics.com":           "Google Analytics",
	"analytics.google.com":           "Google Analytics",
	"googletagmanager.com":           "Google Tag Manager",
	"googletagservices.com":          "Google",
	"adnxs.com":                      "AppNexus",
	"adsystem.amazon":                "Amazon",
	"amazon-adsystem.com":            "Amazon",
	"rubiconproject.com":             "Rubicon",
	"pubmatic.com":                   "PubMatic",
	"contextweb.com":                 "PulsePoint",
	"casalemedia.com":                "Index Exchange",
	"indexww.com":                    "Index Exchange",
	"openx.net":                      "OpenX",
	"criteo.com":                     "Criteo",
	"criteo.net":                     "Criteo",
	"adsrvr.org":                     "The Trade Desk",
	"adform.net":                     "Adform",
	"sovrn.com":                      "Sovrn",
	"lijit.com":                      "Sovrn",
	"sonobi.com":                     "Sonobi",
	"sharethrough.com":               "Sharethrough",
	"smartadserver.com":              "Smart AdServer",
	"taboola.com":                    "Taboola",
	"outbrain.com":                   "Outbrain",
	"33across.com":                   "33Across",
	"yahoo.com":                      "Yahoo",
	"advertising.com":                "Yahoo",
	"bidswitch.net":                  "BidSwitch",
	"teads.tv":                       "Teads",
	"triplelift.com":                 "TripleLift",
	"facebook.com/tr":                "Meta",
	"connect.facebook.net":           "Meta",
	"scorecardresearch.com":          "Comscore",
	"moatads.com":                    "Moat",
	"adsafeprotected.com":            "IAS",
	"doubleverify.com":               "DoubleVerify",
	"id5-sync.com":                   "ID5",
	"liveintent.com":                 "LiveIntent",
	"rlcdn.com":                      "LiveRamp",
	"quantserve.com":                 "Quantcast",
	"tapad.com":                      "Tapad",
	"everesttech.net":                "Adobe",
	"demdex.net":                     "Adobe",
}

// vendorKeys holds the table keys sorted by length descending, with name as
// the tiebreaker for determinism.
var vendorKeys = sortedVendorKeys()

func sortedVendorKeys() []string {
	keys := make([]string, 0, len(canonicalVendors))
	for k := range canonicalVendors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// adDomains are hosts known to be ad-tech or ad-adjacent. Suffix-matched
// against the event hostname.
var adDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"googletagservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"adnxs.com",
	"amazon-adsystem.com",
	"rubiconproject.com",
	"pubmatic.com",
	"contextweb.com",
	"casalemedia.com",
	"indexww.com",
	"openx.net",
	"criteo.com",
	"criteo.net",
	"adsrvr.org",
	"adform.net",
	"sovrn.com",
	"lijit.com",
	"sonobi.com",
	"sharethrough.com",
	"smartadserver.com",
	"taboola.com",
	"outbrain.com",
	"33across.com",
	"advertising.com",
	"bidswitch.net",
	"teads.tv",
	"triplelift.com",
	"scorecardresearch.com",
	"moatads.com",
	"adsafeprotected.com",
	"doubleverify.com",
	"id5-sync.com",
	"liveintent.com",
	"rlcdn.com",
	"quantserve.com",
	"everesttech.net",
	"demdex.net",
}

// IsKnownAdDomain reports whether the hostname belongs to a known ad-tech
// domain.
func IsKnownAdDomain(hostname string) bool {
	if hostname == "" {
		return false
	}
	host := strings.ToLower(hostname)
	for _, d := range adDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ResolveVendor maps a hostname (and, as a fallback, the full URL) to a
// canonical vendor name. Unknown hosts fall back to the second-level domain
// label, title-cased; an empty host resolves to "Unknown".
func ResolveVendor(hostname string, lowerURL string) string {
	host := strings.ToLower(hostname)
	for _, key := range vendorKeys {
		if strings.Contains(host, key) || strings.Contains(lowerURL, key) {
			return canonicalVendors[key]
		}
	}
	return fallbackVendor(host)
}

func fallbackVendor(host string) string {
	if host == "" {
		return "Unknown"
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return strings.Title(host)
	}
	return strings.Title(parts[len(parts)-2])
}
