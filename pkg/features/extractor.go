package features

import (
	"regexp"
	"strings"
)

// Vector maps feature names to numeric values. Boolean features are encoded
// as 0/1. The name set produced by an extractor tier is fixed; consumers
// align values by name, never by map iteration order (use FeatureNames for
// the canonical ordering).
type Vector map[string]float64

// Tier selects how many features an Extractor produces.
type Tier int

const (
	// TierBase produces the original feature set.
	TierBase Tier = iota
	// TierEnhanced layers the extended features on top of the base set.
	TierEnhanced
)

var (
	reNumberSeq     = regexp.MustCompile(`\d{3,}`)
	reAltLetterNum3 = regexp.MustCompile(`([a-z]\d){3,}`)
	reAltLetterNum2 = regexp.MustCompile(`([a-z]\d){2,}`)
	reWordNumWord   = regexp.MustCompile(`[a-z]{3,}\d{3,}[a-z]{3,}`)
	reCDNPattern    = regexp.MustCompile(`(cdn|static|media|asset)\d+`)
	reTracking      = regexp.MustCompile(`(track|analytic|pixel|tag|beacon)\w*\d*`)
	reGeoIdent      = regexp.MustCompile(`(us|eu|asia|cdn)\d*[.-]`)
	reCamelCase     = regexp.MustCompile(`[a-z][A-Z]`)
	rePortNumber    = regexp.MustCompile(`\b(80|443|8080|3000|5000)\b`)
	reYearNumber    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Extractor computes feature vectors for domain names. It is stateless apart
// from the immutable tables injected at construction and is safe for
// concurrent use.
type Extractor struct {
	tables *Tables
	tier   Tier
	names  []string
}

// New creates an extractor of the given tier with the default tables.
func New(tier Tier) *Extractor {
	return NewWithTables(tier, DefaultTables())
}

// NewWithTables creates an extractor with caller-supplied tables. The tables
// must not be mutated afterwards.
func NewWithTables(tier Tier, tables *Tables) *Extractor {
	e := &Extractor{tables: tables, tier: tier}
	e.names = e.featureNames()
	return e
}

// Tier returns the extractor's tier.
func (e *Extractor) Tier() Tier { return e.tier }

// FeatureNames returns the canonical ordering of the features this extractor
// produces. The returned slice must not be modified.
func (e *Extractor) FeatureNames() []string { return e.names }

// Extract computes the feature vector for a domain name. It is total: empty
// or malformed input produces a vector of zero values, never an error, so
// the caller can always proceed to classification.
func (e *Extractor) Extract(domain string) Vector {
	domain = Normalize(domain)
	parts := Split(domain)

	v := make(Vector, len(e.names))
	e.extractBase(v, domain, parts)
	if e.tier == TierEnhanced {
		e.extractEnhanced(v, domain, parts)
	}
	return v
}

func (e *Extractor) extractBase(v Vector, domain string, parts Parts) {
	subdomain, name, tld := parts.Subdomain, parts.Name, parts.Suffix

	// Length features.
	v["domain_length"] = float64(len(domain))
	v["domain_name_length"] = float64(len(name))
	v["subdomain_length"] = float64(len(subdomain))
	subdomainCount := 0
	if subdomain != "" {
		subdomainCount = countDots(subdomain) + 1
	}
	v["subdomain_count"] = float64(subdomainCount)
	v["path_depth"] = float64(countDots(domain))

	// Character distribution.
	digitCount := 0
	for i := 0; i < len(domain); i++ {
		if isDigit(domain[i]) {
			digitCount++
		}
	}
	v["digit_count"] = float64(digitCount)
	v["digit_ratio"] = ratio(digitCount, len(domain))

	hyphenCount := strings.Count(domain, "-")
	v["hyphen_count"] = float64(hyphenCount)
	v["hyphen_ratio"] = ratio(hyphenCount, len(domain))

	v["underscore_count"] = float64(strings.Count(domain, "_"))
	v["consonant_ratio"] = consonantRatio(name)
	v["vowel_ratio"] = vowelRatio(name)

	// Entropy.
	v["entropy"] = entropy(domain)
	v["domain_name_entropy"] = entropy(name)
	v["subdomain_entropy"] = entropy(subdomain)

	// Keyword signals.
	adKeywordCount := 0
	for _, kw := range e.tables.AdKeywords {
		if strings.Contains(domain, kw) {
			adKeywordCount++
		}
	}
	v["ad_keyword_count"] = float64(adKeywordCount)
	v["has_ad_keyword"] = boolFeature(adKeywordCount > 0)
	v["keyword_with_boundary"] = boolFeature(e.keywordWithBoundary(domain))

	// N-gram signals.
	v["has_ad_bigram"] = boolFeature(e.hasAdNgram(domain, 2))
	v["has_ad_trigram"] = boolFeature(e.hasAdNgram(domain, 3))

	// TLD signals.
	_, suspicious := e.tables.SuspiciousTLDs[tld]
	v["tld_suspicious"] = boolFeature(suspicious)
	v["tld_length"] = float64(len(tld))
	_, commercial := e.tables.CommercialTLDs[tld]
	v["is_commercial_tld"] = boolFeature(commercial)

	// Pattern signals.
	v["has_multiple_hyphens"] = boolFeature(hyphenCount >= 3)
	v["has_number_sequence"] = boolFeature(reNumberSeq.MatchString(domain))
	v["starts_with_number"] = boolFeature(name != "" && isDigit(name[0]))
	v["has_random_pattern"] = boolFeature(
		reAltLetterNum3.MatchString(domain) || reWordNumWord.MatchString(domain))

	// Lexical features.
	v["max_consonant_sequence"] = float64(maxConsonantRun(name))
	maxDigits := 0
	runs := digitRuns(domain)
	for _, run := range runs {
		if run > maxDigits {
			maxDigits = run
		}
	}
	v["max_digit_sequence"] = float64(maxDigits)
	v["unique_char_ratio"] = uniqueCharRatio(domain)

	// Common ad patterns.
	v["has_cdn_pattern"] = boolFeature(reCDNPattern.MatchString(domain))
	v["has_tracking_pattern"] = boolFeature(reTracking.MatchString(domain))
	v["has_geo_identifier"] = boolFeature(reGeoIdent.MatchString(domain))

	// Structural features.
	v["subdomain_looks_random"] = boolFeature(looksRandom(subdomain))
	v["numeric_segments"] = float64(len(runs))
}

// keywordWithBoundary reports whether any ad keyword occurs delimited by one
// of "-_./" or the start/end of the domain. The plain substring count above
// is noisy ("pop" in "codepop"); requiring a delimiter trims those false
// positives.
func (e *Extractor) keywordWithBoundary(domain string) bool {
	for _, kw := range e.tables.AdKeywords {
		start := 0
		for {
			idx := strings.Index(domain[start:], kw)
			if idx < 0 {
				break
			}
			idx += start

			atStart := idx == 0
			atEnd := idx+len(kw) == len(domain)
			preBoundary := !atStart && isBoundary(domain[idx-1])
			postBoundary := !atEnd && isBoundary(domain[idx+len(kw)])

			// A keyword spanning the whole string has no delimiter and
			// deliberately does not count.
			if (preBoundary && postBoundary) || (atStart && postBoundary) || (preBoundary && atEnd) {
				return true
			}
			start = idx + 1
		}
	}
	return false
}

func isBoundary(c byte) bool {
	return c == '-' || c == '_' || c == '.' || c == '/'
}

func (e *Extractor) hasAdNgram(domain string, n int) bool {
	for _, ngram := range e.tables.AdNgrams[n] {
		if strings.Contains(domain, ngram) {
			return true
		}
	}
	return false
}

// looksRandom flags a subdomain as auto-generated. All four conditions are
// conjunctive and the thresholds are part of the model contract: length >= 4,
// entropy > 3.5 bits, consonant ratio > 0.7, vowel ratio < 0.2.
func looksRandom(s string) bool {
	if len(s) < 4 {
		return false
	}
	return entropy(s) > 3.5 && consonantRatio(s) > 0.7 && vowelRatio(s) < 0.2
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// featureNames builds the canonical ordered name list for the tier.
func (e *Extractor) featureNames() []string {
	names := []string{
		"domain_length", "domain_name_length", "subdomain_length",
		"subdomain_count", "path_depth",
		"digit_count", "digit_ratio", "hyphen_count", "hyphen_ratio",
		"underscore_count", "consonant_ratio", "vowel_ratio",
		"entropy", "domain_name_entropy", "subdomain_entropy",
		"ad_keyword_count", "has_ad_keyword", "keyword_with_boundary",
		"has_ad_bigram", "has_ad_trigram",
		"tld_suspicious", "tld_length", "is_commercial_tld",
		"has_multiple_hyphens", "has_number_sequence", "starts_with_number",
		"has_random_pattern",
		"max_consonant_sequence", "max_digit_sequence", "unique_char_ratio",
		"has_cdn_pattern", "has_tracking_pattern", "has_geo_identifier",
		"subdomain_looks_random", "numeric_segments",
	}
	if e.tier == TierEnhanced {
		names = append(names, enhancedFeatureNames...)
	}
	return names
}
