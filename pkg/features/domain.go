// Package features turns domain names into the fixed numeric feature vectors
// consumed by the ad classifier. Extraction is deterministic and total: any
// string, including an empty or malformed one, yields a full vector.
package features

import (
	"math"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Parts is a domain name decomposed against the public suffix list.
// Joining the non-empty parts with dots reconstructs the normalized name.
type Parts struct {
	// Subdomain holds everything left of the registrable name, possibly
	// several labels, possibly empty ("www.a" in "www.a.example.co.uk").
	Subdomain string

	// Name is the registrable label directly left of the suffix ("example").
	Name string

	// Suffix is the public suffix ("co.uk"). Unknown suffixes fall back to
	// the last label.
	Suffix string
}

// Normalize lowercases, trims surrounding whitespace, and strips a trailing
// dot from a domain name.
func Normalize(domain string) string {
	return strings.TrimSuffix(strings.TrimSpace(strings.ToLower(domain)), ".")
}

// Split decomposes a normalized domain into subdomain, registrable name and
// public suffix. The input must already be normalized.
func Split(domain string) Parts {
	if domain == "" {
		return Parts{}
	}

	suffix, _ := publicsuffix.PublicSuffix(domain)

	rest := strings.TrimSuffix(domain, suffix)
	rest = strings.TrimSuffix(rest, ".")
	if rest == "" {
		// The whole input is a public suffix ("com", "co.uk").
		return Parts{Suffix: suffix}
	}

	if idx := strings.LastIndexByte(rest, '.'); idx >= 0 {
		return Parts{
			Subdomain: rest[:idx],
			Name:      rest[idx+1:],
			Suffix:    suffix,
		}
	}
	return Parts{Name: rest, Suffix: suffix}
}

// entropy computes the Shannon entropy in bits of the character multiset of
// s. The empty string has entropy 0, and reordering characters does not
// change the result.
func entropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}

	var h float64
	for _, count := range counts {
		p := float64(count) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

const (
	vowels     = "aeiou"
	consonants = "bcdfghjklmnpqrstvwxyz"
)

func isVowel(c byte) bool     { return strings.IndexByte(vowels, c) >= 0 }
func isConsonant(c byte) bool { return strings.IndexByte(consonants, c) >= 0 }
func isDigit(c byte) bool     { return c >= '0' && c <= '9' }

// consonantRatio returns the fraction of consonants in s, 0 if s is empty.
func consonantRatio(s string) float64 {
	if s == "" {
		return 0
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if isConsonant(s[i]) {
			n++
		}
	}
	return float64(n) / float64(len(s))
}

// vowelRatio returns the fraction of vowels in s, 0 if s is empty.
func vowelRatio(s string) float64 {
	if s == "" {
		return 0
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if isVowel(s[i]) {
			n++
		}
	}
	return float64(n) / float64(len(s))
}

// maxConsonantRun returns the length of the longest consecutive consonant
// sequence in s.
func maxConsonantRun(s string) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if isConsonant(s[i]) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// digitRuns returns the lengths of all maximal digit sequences in s.
func digitRuns(s string) []int {
	var runs []int
	run := 0
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			run++
		} else if run > 0 {
			runs = append(runs, run)
			run = 0
		}
	}
	if run > 0 {
		runs = append(runs, run)
	}
	return runs
}

// uniqueCharRatio returns the number of distinct characters over the length
// of s, 0 if s is empty.
func uniqueCharRatio(s string) float64 {
	if s == "" {
		return 0
	}
	seen := make(map[rune]struct{})
	total := 0
	for _, r := range s {
		seen[r] = struct{}{}
		total++
	}
	return float64(len(seen)) / float64(total)
}

func countDots(s string) int {
	return strings.Count(s, ".")
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
