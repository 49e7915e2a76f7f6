package features

// Tables holds the static keyword and TLD sets consulted during extraction.
// They are fixed at construction and never mutated afterwards, so a single
// Tables value can be shared by any number of extractors. Changing any list
// changes the meaning of the extracted features and invalidates models
// trained against the previous tables.
type Tables struct {
	// Keywords commonly found in advertising and tracking hostnames.
	AdKeywords []string

	// TLDs disproportionately used by ad and tracking infrastructure.
	SuspiciousTLDs map[string]struct{}

	// Commercial TLDs.
	CommercialTLDs map[string]struct{}

	// New gTLDs popular with throwaway ad domains.
	NewGTLDs map[string]struct{}

	// Ad-flavored n-grams, keyed by n-gram length.
	AdNgrams map[int][]string

	// Second-tier keyword lists.
	TrackerKeywords []string
	CDNKeywords     []string
	SuspiciousWords []string
	LegitPatterns   []string

	// Known ad-network substrings.
	AdNetworks []string
}

// DefaultTables returns the table set the shipped models were trained with.
func DefaultTables() *Tables {
	return &Tables{
		AdKeywords: []string{
			"ad", "ads", "advert", "adserver", "adsystem", "adservice",
			"banner", "click", "tracker", "track", "analytic", "analytics",
			"pixel", "tag", "doubleclick", "googlead", "pagead", "sponsor",
			"popup", "pop", "promo", "marketing", "affiliate", "impression",
			"beacon", "telemetry", "stats", "metric", "count", "event",
		},
		SuspiciousTLDs: stringSet(
			"xyz", "top", "win", "bid", "gdn", "loan", "click", "online",
			"work", "gq", "ml", "cf", "tk", "ga", "buzz", "stream",
		),
		CommercialTLDs: stringSet("com", "net", "biz"),
		NewGTLDs:       stringSet("xyz", "top", "wang", "win", "bid", "loan", "click"),
		AdNgrams: map[int][]string{
			2: {"ad", "px", "ds", "bn", "tr", "tk"},
			3: {"ads", "trk", "tag", "cdn", "bid", "clk"},
		},
		TrackerKeywords: []string{"track", "analytics", "pixel", "beacon", "telemetry", "stat", "metric"},
		CDNKeywords:     []string{"cdn", "static", "media", "asset", "content", "cache"},
		SuspiciousWords: []string{"click", "popup", "banner", "promo", "offer", "deal", "win", "prize"},
		LegitPatterns:   []string{"api", "www", "mail", "smtp", "imap", "ftp", "docs", "blog", "wiki"},
		AdNetworks: []string{
			"doubleclick", "googlesyndication", "googleadservices", "adserver",
			"adsystem", "serving-sys", "criteo", "outbrain", "taboola",
			"pubmatic", "smartadserver", "rubiconproject", "openx", "yieldmanager",
		},
	}
}

func stringSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
