package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/deepresearch/internal/research"
)

// WriteReportPDF renders a full research result to outPath: the report
// body, then a References section from the bibliography, so the PDF
// carries the same content as the console report and the persisted
// JSON snapshot.
func WriteReportPDF(result research.ResearchResult, outPath string) error {
	r := newReportRenderer()
	r.markdown(result.Summary)
	if strings.TrimSpace(result.Bibliography) != "" {
		r.heading(2, "References")
		for _, line := range strings.Split(result.Bibliography, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				r.paragraph(line)
			}
		}
	}
	if len(result.Sources) > 0 {
		r.footnote(fmt.Sprintf("%d sources, mean reliability %.2f", len(result.Sources), result.Reliability))
	}
	return r.doc.OutputFileAndClose(outPath)
}

// reportRenderer is a thin layout layer over gofpdf: headings by
// level, paragraphs with inline Markdown links made clickable, bullets
// for list items.
type reportRenderer struct {
	doc *gofpdf.Fpdf
}

var (
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	mdBullet  = regexp.MustCompile(`^[-*]\s+(.*)$`)
)

// headingSizes maps heading level to font size; anything deeper than
// h3 renders at body size, just bold.
var headingSizes = map[int]float64{1: 16, 2: 13, 3: 11.5}

const bodySize = 11

func newReportRenderer() *reportRenderer {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", bodySize)
	doc.AddPage()
	return &reportRenderer{doc: doc}
}

// markdown renders md block by block: blank-line-separated paragraphs,
// with per-line heading and bullet forms recognized inside each block.
func (r *reportRenderer) markdown(md string) {
	for _, block := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n\n") {
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case mdHeading.MatchString(line):
				m := mdHeading.FindStringSubmatch(line)
				r.heading(len(m[1]), m[2])
			case mdBullet.MatchString(line):
				r.bullet(mdBullet.FindStringSubmatch(line)[1])
			default:
				r.paragraph(line)
			}
		}
		r.doc.Ln(3)
	}
}

func (r *reportRenderer) heading(level int, text string) {
	size, ok := headingSizes[level]
	if !ok {
		size = bodySize
	}
	r.doc.SetFont("Helvetica", "B", size)
	r.doc.CellFormat(0, size*0.6, text, "", 1, "L", false, 0, "")
	r.doc.SetFont("Helvetica", "", bodySize)
	r.doc.Ln(1.5)
}

func (r *reportRenderer) bullet(text string) {
	r.doc.Write(5, "  - ")
	r.writeInline(text)
	r.doc.Ln(5.5)
}

func (r *reportRenderer) paragraph(text string) {
	r.writeInline(text)
	r.doc.Ln(5.5)
}

func (r *reportRenderer) footnote(text string) {
	r.doc.Ln(4)
	r.doc.SetFont("Helvetica", "I", 9)
	r.doc.CellFormat(0, 5, text, "", 1, "L", false, 0, "")
	r.doc.SetFont("Helvetica", "", bodySize)
}

// writeInline writes one line of text, turning [text](url) spans into
// clickable links. Intra-document anchors render as plain text.
func (r *reportRenderer) writeInline(text string) {
	pos := 0
	for _, m := range mdLink.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > pos {
			r.doc.Write(5, text[pos:m[0]])
		}
		label, target := text[m[2]:m[3]], text[m[4]:m[5]]
		if strings.HasPrefix(target, "#") {
			r.doc.Write(5, label)
		} else {
			r.doc.WriteLinkString(5, label, target)
		}
		pos = m[1]
	}
	if pos < len(text) {
		r.doc.Write(5, text[pos:])
	}
}
