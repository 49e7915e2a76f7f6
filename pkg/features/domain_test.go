package features

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Example.COM.", "example.com"},
		{"  www.example.com  ", "www.example.com"},
		{"", ""},
		{".", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplit(t *testing.T) {
	cases := []struct {
		in   string
		want Parts
	}{
		{"example.com", Parts{Name: "example", Suffix: "com"}},
		{"www.example.com", Parts{Subdomain: "www", Name: "example", Suffix: "com"}},
		{"a.b.example.co.uk", Parts{Subdomain: "a.b", Name: "example", Suffix: "co.uk"}},
		{"googleads.g.doubleclick.net", Parts{Subdomain: "googleads.g", Name: "doubleclick", Suffix: "net"}},
		{"com", Parts{Suffix: "com"}},
		{"", Parts{}},
	}
	for _, tc := range cases {
		if got := Split(tc.in); got != tc.want {
			t.Errorf("Split(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestEntropyEmptyString(t *testing.T) {
	if got := entropy(""); got != 0 {
		t.Errorf("entropy(\"\") = %v, want 0", got)
	}
}

func TestEntropyKnownValues(t *testing.T) {
	// Uniform distribution over n characters has entropy log2(n).
	cases := []struct {
		in   string
		want float64
	}{
		{"a", 0},
		{"ab", 1},
		{"abcd", 2},
		{"abcdefgh", 3},
		{"aaaa", 0},
	}
	for _, tc := range cases {
		if got := entropy(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("entropy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEntropyReorderInvariant(t *testing.T) {
	pairs := [][2]string{
		{"abcabc", "aabbcc"},
		{"doubleclick", "kcilcelbuod"},
		{"112233", "123123"},
	}
	for _, p := range pairs {
		a, b := entropy(p[0]), entropy(p[1])
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("entropy(%q) = %v != entropy(%q) = %v", p[0], a, p[1], b)
		}
	}
}

func TestCharacterRatios(t *testing.T) {
	if got := consonantRatio(""); got != 0 {
		t.Errorf("consonantRatio(\"\") = %v, want 0", got)
	}
	if got := vowelRatio(""); got != 0 {
		t.Errorf("vowelRatio(\"\") = %v, want 0", got)
	}
	if got := consonantRatio("bcd"); got != 1 {
		t.Errorf("consonantRatio(\"bcd\") = %v, want 1", got)
	}
	if got := vowelRatio("aeiou"); got != 1 {
		t.Errorf("vowelRatio(\"aeiou\") = %v, want 1", got)
	}
	if got := vowelRatio("ab"); got != 0.5 {
		t.Errorf("vowelRatio(\"ab\") = %v, want 0.5", got)
	}
}

func TestMaxConsonantRun(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"aeiou", 0},
		{"strength", 4},
		{"bcdfg", 5},
	}
	for _, tc := range cases {
		if got := maxConsonantRun(tc.in); got != tc.want {
			t.Errorf("maxConsonantRun(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDigitRuns(t *testing.T) {
	runs := digitRuns("ab12cd345ef6")
	want := []int{2, 3, 1}
	if len(runs) != len(want) {
		t.Fatalf("digitRuns = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("digitRuns[%d] = %d, want %d", i, runs[i], want[i])
		}
	}
}

func TestUniqueCharRatio(t *testing.T) {
	if got := uniqueCharRatio(""); got != 0 {
		t.Errorf("uniqueCharRatio(\"\") = %v, want 0", got)
	}
	if got := uniqueCharRatio("aaaa"); got != 0.25 {
		t.Errorf("uniqueCharRatio(\"aaaa\") = %v, want 0.25", got)
	}
	if got := uniqueCharRatio("abcd"); got != 1 {
		t.Errorf("uniqueCharRatio(\"abcd\") = %v, want 1", got)
	}
}
