package classifier

// URL substring signatures for the ordered rules. All matching is done on the
// lower-cased request URL.

var tagLibrarySignatures = []string{
	"gpt.js",
	"pubads_impl",
	"prebid",
	"apstag",
	"adsbygoogle.js",
	"gtag/js",
	"gtm.js",
	"analytics.js",
	"amazon-adsystem.com/aax2",
	"adsafeprotected.com/rjss",
	"moatads.com/moatheader",
}

// idSyncKeywords gate the ID_SYNC rule; one of these must appear somewhere in
// the URL before the path or hostname check applies.
var idSyncKeywords = []string{
	"usersync",
	"user_sync",
	"usermatch",
	"getuid",
	"setuid",
	"cookie_sync",
	"cookiesync",
	"idsync",
	"/sync",
	"/match",
	"/cm?",
	"pixel.rubiconproject.com/exchange/sync",
}

var idSyncPaths = []string{
	"/usersync",
	"/idsync",
	"/getuid",
	"/setuid",
	"/cookie_sync",
	"/sync",
	"/match",
	"/cm",
	"/pixel/sync",
}

var clickRedirectPatterns = []string{
	"adurl=",
	"/click",
	"/clk",
	"/redirect",
	"/adclick",
}

var gamRequestPatterns = []string{
	"/gampad/ads",
	"securepubads.g.doubleclick.net/gampad/",
	"pubads.g.doubleclick.net/gampad/",
}

var impressionPathPatterns = []string{
	"/imp",
	"impression",
	"/pixel",
	"/beacon",
	"/px?",
	"/view",
	"/adview",
	"/track",
	"/vast/event",
	"/b/ss",
}

var adRequestPatterns = []string{
	"/ads?",
	"/getads",
	"/adserver",
	"/bid?",
	"/bidder",
	"/openrtb",
	"/delivery",
	"/adcall",
	"/adreq",
	"/tads",
	"/adsx",
}
