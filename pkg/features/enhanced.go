package features

import "strings"

// enhancedFeatureNames is the ordering of the second-tier features, appended
// after the base set.
var enhancedFeatureNames = []string{
	"tracker_keyword_count", "cdn_keyword_count", "suspicious_word_count",
	"legit_pattern_count",
	"matches_ad_network",
	"subdomain_to_domain_ratio", "domain_to_full_ratio", "tld_to_full_ratio",
	"uppercase_count", "special_char_count", "alphanumeric_ratio",
	"max_char_repetition", "has_repeated_bigram", "has_repeated_trigram",
	"lexical_diversity", "vowel_consonant_ratio",
	"subdomain_levels", "avg_subdomain_length", "subdomain_has_number",
	"subdomain_all_numeric",
	"domain_name_has_number", "domain_name_starts_with_ad",
	"domain_name_ends_with_ad",
	"tld_is_country_code", "tld_is_new_gtld",
	"ad_heuristic_score", "randomness_score",
	"has_number_in_subdomain_start", "has_hyphen_after_keyword",
	"part_length_variance", "looks_like_compound_word",
	"has_port_like_number", "has_year_like_number",
}

const specialChars = "!@#$%^&*()+=[]{}|;:,<>?"

func (e *Extractor) extractEnhanced(v Vector, domain string, parts Parts) {
	subdomain, name, tld := parts.Subdomain, parts.Name, parts.Suffix

	// Advanced keyword tallies.
	v["tracker_keyword_count"] = float64(countContained(domain, e.tables.TrackerKeywords))
	v["cdn_keyword_count"] = float64(countContained(domain, e.tables.CDNKeywords))
	v["suspicious_word_count"] = float64(countContained(domain, e.tables.SuspiciousWords))
	v["legit_pattern_count"] = float64(countContained(domain, e.tables.LegitPatterns))

	// Known ad-network detection.
	v["matches_ad_network"] = boolFeature(countContained(domain, e.tables.AdNetworks) > 0)

	// Length ratios.
	v["subdomain_to_domain_ratio"] = ratio(len(subdomain), len(domain))
	v["domain_to_full_ratio"] = ratio(len(name), len(domain))
	v["tld_to_full_ratio"] = ratio(len(tld), len(domain))

	// Character pattern analysis. The domain is already lowercased during
	// normalization, so these mostly stay zero; they are kept so the name
	// set matches the training data.
	upper, special, alnum := 0, 0, 0
	for i := 0; i < len(domain); i++ {
		c := domain[i]
		if c >= 'A' && c <= 'Z' {
			upper++
		}
		if strings.IndexByte(specialChars, c) >= 0 {
			special++
		}
		if isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			alnum++
		}
	}
	v["uppercase_count"] = float64(upper)
	v["special_char_count"] = float64(special)
	v["alphanumeric_ratio"] = ratio(alnum, len(domain))

	// Repetition patterns.
	v["max_char_repetition"] = float64(maxCharRepetition(domain))
	v["has_repeated_bigram"] = boolFeature(hasRepeatedNgram(domain, 2))
	v["has_repeated_trigram"] = boolFeature(hasRepeatedNgram(domain, 3))

	// Lexical diversity.
	v["lexical_diversity"] = uniqueCharRatio(domain)
	v["vowel_consonant_ratio"] = vowelConsonantRatio(name)

	// Subdomain analysis.
	if subdomain != "" {
		labels := strings.Split(subdomain, ".")
		total := 0
		for _, label := range labels {
			total += len(label)
		}
		v["subdomain_levels"] = float64(len(labels))
		v["avg_subdomain_length"] = float64(total) / float64(len(labels))
		v["subdomain_has_number"] = boolFeature(containsDigit(subdomain))
		v["subdomain_all_numeric"] = boolFeature(allDigits(strings.ReplaceAll(subdomain, ".", "")))
	} else {
		v["subdomain_levels"] = 0
		v["avg_subdomain_length"] = 0
		v["subdomain_has_number"] = 0
		v["subdomain_all_numeric"] = 0
	}

	// Registrable-name patterns.
	v["domain_name_has_number"] = boolFeature(containsDigit(name))
	v["domain_name_starts_with_ad"] = boolFeature(strings.HasPrefix(name, "ad"))
	v["domain_name_ends_with_ad"] = boolFeature(
		strings.HasSuffix(name, "ad") || strings.HasSuffix(name, "ads"))

	// TLD analysis.
	v["tld_is_country_code"] = boolFeature(len(tld) == 2 && allLetters(tld))
	_, newGTLD := e.tables.NewGTLDs[tld]
	v["tld_is_new_gtld"] = boolFeature(newGTLD)

	// Heuristic scores.
	v["ad_heuristic_score"] = float64(e.adHeuristicScore(domain, subdomain, name))
	v["randomness_score"] = float64(randomnessScore(name))

	// Position-based features.
	v["has_number_in_subdomain_start"] = boolFeature(subdomain != "" && isDigit(subdomain[0]))
	v["has_hyphen_after_keyword"] = boolFeature(e.hasHyphenAdjacentKeyword(domain))

	// Length variance across the subdomain labels plus the registrable name.
	if subdomain != "" {
		lengths := []int{}
		for _, label := range strings.Split(subdomain, ".") {
			lengths = append(lengths, len(label))
		}
		lengths = append(lengths, len(name))
		v["part_length_variance"] = variance(lengths)
	} else {
		v["part_length_variance"] = 0
	}

	// Compound-word detection.
	v["looks_like_compound_word"] = boolFeature(looksLikeCompoundWord(name))

	// Numeric pattern features.
	v["has_port_like_number"] = boolFeature(rePortNumber.MatchString(domain))
	v["has_year_like_number"] = boolFeature(reYearNumber.MatchString(domain))
}

// adHeuristicScore is an additive score over independent ad indicators:
// +3 keyword present, +1 digit run of three or more, +2 if two or more
// hyphens, +1 if the subdomain has two or more extra levels, +2 if the
// registrable name is short (<5 chars) and contains a digit.
func (e *Extractor) adHeuristicScore(domain, subdomain, name string) int {
	score := 0

	for _, kw := range e.tables.AdKeywords {
		if strings.Contains(domain, kw) {
			score += 3
			break
		}
	}

	if reNumberSeq.MatchString(domain) {
		score++
	}

	if strings.Count(domain, "-") >= 2 {
		score += 2
	}

	if subdomain != "" && strings.Count(subdomain, ".") >= 2 {
		score++
	}

	if len(name) < 5 && containsDigit(name) {
		score += 2
	}

	return score
}

// randomnessScore is an additive score over generated-name indicators:
// +2 entropy above 3.5 bits, +2 consonant ratio above 0.7, +2 vowel ratio
// below 0.15, +3 alternating letter-digit pattern. Strings shorter than
// three characters score 0.
func randomnessScore(s string) int {
	if len(s) < 3 {
		return 0
	}

	score := 0
	if entropy(s) > 3.5 {
		score += 2
	}
	if consonantRatio(s) > 0.7 {
		score += 2
	}
	if vowelRatio(s) < 0.15 {
		score += 2
	}
	if reAltLetterNum2.MatchString(s) {
		score += 3
	}
	return score
}

// hasHyphenAdjacentKeyword reports whether any ad keyword appears directly
// before or after a hyphen ("ad-server", "track-").
func (e *Extractor) hasHyphenAdjacentKeyword(domain string) bool {
	for _, kw := range e.tables.AdKeywords {
		if strings.Contains(domain, kw+"-") || strings.Contains(domain, "-"+kw) {
			return true
		}
	}
	return false
}

// looksLikeCompoundWord flags names that read like concatenated words: a
// lowercase-to-uppercase transition, or a purely alphabetic name longer than
// fifteen characters.
func looksLikeCompoundWord(s string) bool {
	if reCamelCase.MatchString(s) {
		return true
	}
	return len(s) > 15 && allLetters(s)
}

func maxCharRepetition(s string) int {
	if s == "" {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest
}

// hasRepeatedNgram reports whether any length-n substring of s occurs more
// than once.
func hasRepeatedNgram(s string, n int) bool {
	if len(s) < n {
		return false
	}
	seen := make(map[string]struct{}, len(s))
	for i := 0; i+n <= len(s); i++ {
		gram := s[i : i+n]
		if _, dup := seen[gram]; dup {
			return true
		}
		seen[gram] = struct{}{}
	}
	return false
}

// vowelConsonantRatio returns vowels/consonants, 0 when there are no
// consonants.
func vowelConsonantRatio(s string) float64 {
	vowelCount, consonantCount := 0, 0
	for i := 0; i < len(s); i++ {
		if isVowel(s[i]) {
			vowelCount++
		} else if isConsonant(s[i]) {
			consonantCount++
		}
	}
	if consonantCount == 0 {
		return 0
	}
	return float64(vowelCount) / float64(consonantCount)
}

func variance(lengths []int) float64 {
	if len(lengths) == 0 {
		return 0
	}
	sum := 0
	for _, l := range lengths {
		sum += l
	}
	mean := float64(sum) / float64(len(lengths))

	var ss float64
	for _, l := range lengths {
		d := float64(l) - mean
		ss += d * d
	}
	return ss / float64(len(lengths))
}

func countContained(domain string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(domain, kw) {
			n++
		}
	}
	return n
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func allLetters(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
