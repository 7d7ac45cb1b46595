// Package reliability scores a URL's domain on a [0,1] trustworthiness
// heuristic: a built-in table matched by longest domain suffix, plus
// scheme and TLD adjustments.
package reliability

import (
	"net/url"
	"sort"
	"strings"
)

// baseScores maps a registrable-ish domain suffix to a base reliability
// score. Matching is by longest suffix; an unknown host scores 0.5.
var baseScores = map[string]float64{
	"nature.com":        0.95,
	"science.org":        0.95,
	"nih.gov":            0.95,
	"cdc.gov":            0.93,
	"who.int":            0.93,
	"nasa.gov":           0.92,
	"un.org":             0.88,
	"ieee.org":           0.9,
	"acm.org":            0.9,
	"arxiv.org":          0.85,
	"gov":                0.85,
	"edu":                0.8,
	"wikipedia.org":      0.75,
	"britannica.com":     0.8,
	"reuters.com":        0.85,
	"apnews.com":         0.85,
	"bbc.com":            0.82,
	"bbc.co.uk":          0.82,
	"nytimes.com":        0.78,
	"theguardian.com":    0.78,
	"economist.com":      0.78,
	"medium.com":         0.4,
	"reddit.com":         0.3,
	"quora.com":          0.3,
	"blogspot.com":       0.25,
	"wordpress.com":      0.3,
	"pinterest.com":      0.2,
}

// sortedSuffixes is baseScores' keys sorted by descending length, so
// longest-suffix matching only ever needs one linear scan.
var sortedSuffixes []string

func init() {
	sortedSuffixes = make([]string, 0, len(baseScores))
	for k := range baseScores {
		sortedSuffixes = append(sortedSuffixes, k)
	}
	sort.Slice(sortedSuffixes, func(i, j int) bool {
		return len(sortedSuffixes[i]) > len(sortedSuffixes[j])
	})
}

// DefaultScore is the base score assigned to a host matching no entry
// in the built-in table.
const DefaultScore = 0.5

// cap is the ceiling every adjustment step respects.
const cap = 0.99

// Score returns the reliability score in [0,1] for rawURL, applying the
// base-table lookup followed by the https and TLD adjustments, each
// capped at 0.99.
func Score(rawURL string) float64 {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return DefaultScore
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	score := baseScoreFor(host)

	if strings.EqualFold(u.Scheme, "https") {
		score = min(score+0.05, cap)
	}
	if hasReliableTLD(host) {
		score = min(score+0.10, cap)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func baseScoreFor(host string) float64 {
	for _, suffix := range sortedSuffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return baseScores[suffix]
		}
	}
	return DefaultScore
}

func hasReliableTLD(host string) bool {
	for _, tld := range []string{".edu", ".gov", ".org"} {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// SortByReliabilityDesc sorts rawURLs' matching scores descending,
// returning a slice of the same length with the original indices
// reordered. It is a thin helper for callers that need to rank
// url+score pairs.
func SortByReliabilityDesc(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return scores[idx[i]] > scores[idx[j]]
	})
	return idx
}
