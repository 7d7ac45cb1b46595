package extract

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Metadata is page-level metadata recovered via goquery selectors,
// following the og:*/meta-name/h1-fallback preference order a reader
// extension would use.
type Metadata struct {
	Title           string
	Description     string
	Author          string
	SiteName        string
	PublicationDate string
}

// ExtractMetadata reads og:*, meta name=, and heading/author
// heuristics out of input, first non-empty value winning per key.
func ExtractMetadata(input []byte) Metadata {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return Metadata{}
	}
	return Metadata{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
			strings.TrimSpace(doc.Find("h1").First().Text()),
		),
		Description: firstNonEmpty(
			metaContent(doc, `meta[property="og:description"]`),
			metaContent(doc, `meta[name="description"]`),
		),
		SiteName: metaContent(doc, `meta[property="og:site_name"]`),
		Author: firstNonEmpty(
			metaContent(doc, `meta[name="author"]`),
			strings.TrimSpace(doc.Find("[rel=author]").First().Text()),
			strings.TrimSpace(doc.Find(".author").First().Text()),
		),
		PublicationDate: firstNonEmpty(
			metaContent(doc, `meta[property="article:published_time"]`),
			metaContent(doc, `meta[name="date"]`),
		),
	}
}

// preferredContentSelectors lists the content-root candidates, tried
// longest-rendered-text-first: article, [role=main], .main-content,
// #main-content, .post-content, .article-content; else body.
var preferredContentSelectors = []string{
	"article",
	`[role="main"]`,
	".main-content",
	"#main-content",
	".post-content",
	".article-content",
}

// SelectContentRoot re-serializes whichever element input matches
// against preferredContentSelectors has the longest rendered text,
// not the first selector to match, so a short .main-content div never
// wins over a longer sibling <article>.
// It returns nil when none of the selectors match anything, so callers
// fall back to passing input to FromHTML unmodified (which walks down
// to body.textContent on its own).
func SelectContentRoot(input []byte) []byte {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return nil
	}
	var bestHTML string
	bestLen := -1
	for _, selector := range preferredContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			continue
		}
		frag, err := sel.Html()
		if err != nil || strings.TrimSpace(frag) == "" {
			continue
		}
		if len(text) > bestLen {
			bestLen, bestHTML = len(text), frag
		}
	}
	if bestLen < 0 {
		return nil
	}
	return []byte("<html><body>" + bestHTML + "</body></html>")
}

func metaContent(doc *goquery.Document, selector string) string {
	val, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(val)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ToMarkdown converts the first <main>, else <article>, else <body>
// element into Markdown via html-to-markdown/v2, for callers that want
// the cleaned-content form rather than the plain-text one FromHTML
// produces. Unlike FromHTML it does not compare candidate lengths.
func ToMarkdown(input []byte) (string, error) {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil {
		return "", err
	}
	content := findFirst(node, "main")
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	if content == nil {
		content = node
	}
	conv := converter.NewConverter(converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	))
	md, err := conv.ConvertNode(content)
	if err != nil {
		return "", err
	}
	return string(md), nil
}

// maxSanitizedBytes and maxLineLength bound Sanitize's output: content
// is capped at 500 KiB with a truncation notice, and any single line
// over 2000 chars is dropped.
const (
	maxSanitizedBytes = 500 * 1024
	maxLineLength     = 2000
	truncationNotice  = "\n\n[content truncated]"
)

// isStrippedControl reports whether r is a non-printable control
// character that should be dropped, excluding the newline we rely on
// as the line separator.
func isStrippedControl(r rune) bool {
	return r != '\n' && r != '\t' && unicode.IsControl(r)
}

var stripControl = transform.Chain(
	norm.NFC,
	runes.Remove(runes.Predicate(isStrippedControl)),
)

// Sanitize applies the Unicode-aware cleanup pass:
// NUL drop, CRLF -> LF, non-printable/control character strip (via
// golang.org/x/text/runes+unicode/norm rather than a hand-rolled byte
// scan), whitespace-run collapse, over-long line drop, and a final
// size cap with a truncation notice.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	cleaned, _, err := transform.String(stripControl, text)
	if err == nil {
		text = cleaned
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) > maxLineLength {
			continue
		}
		kept = append(kept, collapseSpaces(line))
	}
	text = strings.Join(kept, "\n")

	if len(text) > maxSanitizedBytes {
		text = text[:maxSanitizedBytes] + truncationNotice
	}
	return text
}
