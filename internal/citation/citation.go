// Package citation formats a research.Source as a citation string in
// one of five styles. Each style is a pure function of a Source, not a
// method on it, so the data type stays presentation-free.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperifyio/deepresearch/internal/research"
)

// Style is one of the five supported citation formats.
type Style string

const (
	APA     Style = "apa"
	MLA     Style = "mla"
	Chicago Style = "chicago"
	Harvard Style = "harvard"
	IEEE    Style = "ieee"
)

// ParseStyle maps a free-form style name to a Style, falling back to APA
// for anything unrecognized.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case APA:
		return APA
	case MLA:
		return MLA
	case Chicago:
		return Chicago
	case Harvard:
		return Harvard
	case IEEE:
		return IEEE
	default:
		return APA
	}
}

// Format renders src as a single citation string in the given style.
func Format(style Style, src research.Source) string {
	switch style {
	case MLA:
		return formatMLA(src)
	case Chicago:
		return formatChicago(src)
	case Harvard:
		return formatHarvard(src)
	case IEEE:
		return formatIEEE(src)
	default:
		return formatAPA(src)
	}
}

// year returns the four-digit year from a publication date, or "n.d."
// when absent.
func year(pubDate string) string {
	pubDate = strings.TrimSpace(pubDate)
	if len(pubDate) >= 4 {
		return pubDate[:4]
	}
	return "n.d."
}

// authorAPA normalizes a single author name to "Last, F. M." form
func authorAPA(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return ""
	}
	parts := strings.Fields(author)
	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	initials := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		r := []rune(p)
		if len(r) > 0 {
			initials = append(initials, strings.ToUpper(string(r[0]))+".")
		}
	}
	return last + ", " + strings.Join(initials, " ")
}

// authorMLA normalizes a single author name to "Last, First" form.
func authorMLA(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return ""
	}
	parts := strings.Fields(author)
	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	first := strings.Join(parts[:len(parts)-1], " ")
	return last + ", " + first
}

func formatAPA(s research.Source) string {
	author := authorAPA(s.Author)
	parts := []string{}
	if author != "" {
		parts = append(parts, author+".")
	}
	parts = append(parts, fmt.Sprintf("(%s).", year(s.PublicationDate)))
	title := strings.TrimSpace(s.Title)
	if title != "" {
		parts = append(parts, title+".")
	}
	if s.Publisher != "" {
		parts = append(parts, s.Publisher+".")
	} else if s.SiteName != "" {
		parts = append(parts, s.SiteName+".")
	}
	if s.Doi != "" {
		parts = append(parts, "https://doi.org/"+s.Doi)
	} else if s.URL != "" {
		parts = append(parts, s.URL)
	}
	return collapse(strings.Join(parts, " "))
}

func formatMLA(s research.Source) string {
	author := authorMLA(s.Author)
	parts := []string{}
	if author != "" {
		parts = append(parts, author+".")
	}
	title := strings.TrimSpace(s.Title)
	if title != "" {
		parts = append(parts, "\""+title+".\"")
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+",")
	}
	parts = append(parts, year(s.PublicationDate)+",")
	if s.URL != "" {
		parts = append(parts, s.URL+".")
	}
	return collapse(strings.Join(parts, " "))
}

func formatChicago(s research.Source) string {
	author := authorAPA(s.Author)
	parts := []string{}
	if author != "" {
		parts = append(parts, author+".")
	}
	title := strings.TrimSpace(s.Title)
	if title != "" {
		parts = append(parts, "\""+title+".\"")
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+".")
	}
	parts = append(parts, "Accessed "+s.AccessDate.Format("January 2, 2006")+".")
	if s.URL != "" {
		parts = append(parts, s.URL+".")
	}
	return collapse(strings.Join(parts, " "))
}

func formatHarvard(s research.Source) string {
	author := authorAPA(s.Author)
	parts := []string{}
	if author != "" {
		parts = append(parts, author)
	}
	parts = append(parts, fmt.Sprintf("(%s)", year(s.PublicationDate))+".")
	title := strings.TrimSpace(s.Title)
	if title != "" {
		parts = append(parts, title+".")
	}
	if s.SiteName != "" {
		parts = append(parts, "Available at: "+s.SiteName+".")
	}
	if s.URL != "" {
		parts = append(parts, "[Accessed "+s.AccessDate.Format("2 Jan. 2006")+"]. "+s.URL)
	}
	return collapse(strings.Join(parts, " "))
}

func formatIEEE(s research.Source) string {
	author := s.Author
	parts := []string{}
	if author != "" {
		parts = append(parts, author+",")
	}
	title := strings.TrimSpace(s.Title)
	if title != "" {
		parts = append(parts, "\""+title+",\"")
	}
	if s.SiteName != "" {
		parts = append(parts, s.SiteName+",")
	}
	parts = append(parts, year(s.PublicationDate)+".")
	if s.URL != "" {
		parts = append(parts, "[Online]. Available: "+s.URL)
	}
	return collapse(strings.Join(parts, " "))
}

var (
	leadingIEEEIndex = regexp.MustCompile(`^\[\d+\]\s*`)
	repeatedPunct    = regexp.MustCompile(`[,.;:]{2,}`)
	emptyParens      = regexp.MustCompile(`\(\s*\)`)
	repeatedSpace    = regexp.MustCompile(`\s{2,}`)
	spaceBeforePunct = regexp.MustCompile(`\s+([,.;:])`)
)

// collapse post-processes a formatted citation to drop doubled
// separators, empty parens, and repeated whitespace that result from
// missing fields leaving no trailing separators.
func collapse(s string) string {
	// RE2 has no backreferences, so repeatedPunct matches any run of
	// punctuation and the run is collapsed to its first character.
	s = repeatedPunct.ReplaceAllStringFunc(s, func(run string) string {
		return run[:1]
	})
	s = emptyParens.ReplaceAllString(s, "")
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = repeatedSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Bibliography builds the reference-list string for a set of sources
// already formatted in the given style. APA/MLA/Harvard/Chicago sort
// alphabetically by the formatted citation; IEEE numbers entries in
// input order and strips any existing leading "[n]" before
// renumbering.
func Bibliography(style Style, citations []string) string {
	if len(citations) == 0 {
		return ""
	}
	if style == IEEE {
		lines := make([]string, 0, len(citations))
		for i, c := range citations {
			clean := leadingIEEEIndex.ReplaceAllString(c, "")
			lines = append(lines, fmt.Sprintf("[%d] %s", i+1, clean))
		}
		return strings.Join(lines, "\n")
	}
	sorted := append([]string(nil), citations...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n")
}
