// Package consent identifies benign telemetry infrastructure on a scanned
// page: consent-management platforms and auth providers whose duplicate
// instrumentation must not count as fraud. Its output feeds verdict gate G3.
package consent

import (
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/go-gdpr/vendorconsent"
)

// benignHosts are hostname suffixes of known consent/auth infrastructure.
var benignHosts = []string{
	"cookielaw.org",
	"onetrust.com",
	"cookiebot.com",
	"consensu.org",
	"didomi.io",
	"privacy-center.org",
	"usercentrics.eu",
	"sourcepoint.com",
	"sp-prod.net",
	"quantcast.com",
	"trustarc.com",
	"consentmanager.net",
	"iubenda.com",
	"accounts.google.com",
	"recaptcha.net",
	"www.gstatic.com",
	"hcaptcha.com",
}

// Analysis summarizes the benign-telemetry review of one scan.
type Analysis struct {
	BenignVendorPresent bool     `json:"benignVendorPresent"`
	ConsentStringValid  bool     `json:"consentStringValid"`
	TCFVersion          uint8    `json:"tcfVersion,omitempty"`
	BenignHosts         []string `json:"benignHosts,omitempty"`
}

// Analyze inspects the scan's TCF consent string and observed hostnames. A
// malformed consent string is treated as absent, never as an error: consent
// parsing exists only to strengthen the benign-vendor signal.
func Analyze(consentString string, hostnames []string) Analysis {
	return AnalyzeWith(consentString, hostnames, nil)
}

// AnalyzeWith behaves like Analyze but also honors a per-publisher allowlist
// of extra benign hostname suffixes.
func AnalyzeWith(consentString string, hostnames []string, extraBenign []string) Analysis {
	out := Analysis{}

	if consentString != "" {
		parsed, err := vendorconsent.ParseString(consentString)
		if err != nil {
			if glog.V(2) {
				glog.Infof("Unparseable consent string: %v", err)
			}
		} else {
			out.ConsentStringValid = true
			out.TCFVersion = parsed.Version()
		}
	}

	suffixes := benignHosts
	if len(extraBenign) > 0 {
		suffixes = append(append(make([]string, 0, len(benignHosts)+len(extraBenign)), benignHosts...), extraBenign...)
	}

	seen := map[string]bool{}
	for _, host := range hostnames {
		lower := strings.ToLower(host)
		for _, benign := range suffixes {
			// Exact or dot-bounded suffix match only; a benign name buried
			// inside a longer hostname proves nothing.
			if lower == benign || strings.HasSuffix(lower, "."+benign) {
				if !seen[benign] {
					seen[benign] = true
					out.BenignHosts = append(out.BenignHosts, benign)
				}
			}
		}
	}

	// A valid consent string means a CMP ran on the page even if its CDN
	// host was not captured.
	out.BenignVendorPresent = len(out.BenignHosts) > 0 || out.ConsentStringValid
	return out
}
