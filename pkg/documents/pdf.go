package documents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	pdfPageWidth    = 612
	pdfPageHeight   = 792
	pdfMargin       = 72
	pdfLeading      = 14
	pdfLinesPerPage = 46
	pdfLineWidth    = 90
)

// PDFRenderer produces a plain single-column PDF of the document. The output
// is deliberately minimal (Helvetica, no images); the artifact exists so the
// export path has something real to audit and hand back.
type PDFRenderer struct {
	log logrus.FieldLogger
}

// NewPDFRenderer creates a renderer logging through the standard logrus logger
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{log: logrus.StandardLogger()}
}

// Render produces the PDF bytes for a document and its sections
func (r *PDFRenderer) Render(doc *Document, sections []Section) ([]byte, error) {
	lines := r.lines(doc, sections)
	pages := paginate(lines, pdfLinesPerPage)
	data := writePDF(pages)

	r.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"pages":       len(pages),
		"bytes":       len(data),
	}).Debug("rendered document export")
	return data, nil
}

func (r *PDFRenderer) lines(doc *Document, sections []Section) []string {
	lines := []string{
		doc.Title,
		fmt.Sprintf("Status: %s", doc.Status),
		"",
	}
	if doc.Description != "" {
		lines = append(lines, wrap(doc.Description, pdfLineWidth)...)
		lines = append(lines, "")
	}
	for _, section := range sections {
		lines = append(lines, fmt.Sprintf("%d. %s", section.Number, section.Title))
		lines = append(lines, contentLines(section.Content)...)
		lines = append(lines, "")
	}
	return lines
}

// contentLines flattens a section's JSON content into indented text lines.
// Unparseable or empty content renders as nothing rather than failing the
// export.
func contentLines(content json.RawMessage) []string {
	if len(content) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(content, &value); err != nil {
		return nil
	}
	if s, ok := value.(string); ok {
		return indent(wrap(s, pdfLineWidth-2))
	}

	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return indent(strings.Split(string(pretty), "\n"))
}

func indent(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = "  " + line
	}
	return out
}

func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	lines := make([]string, 0, 4)
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(lines, current)
}

func paginate(lines []string, perPage int) [][]string {
	if len(lines) == 0 {
		return [][]string{{""}}
	}
	pages := make([][]string, 0, len(lines)/perPage+1)
	for start := 0; start < len(lines); start += perPage {
		end := start + perPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}
	return pages
}

// writePDF assembles a minimal PDF: catalog, page tree, one Type1 font and
// one content stream per page, followed by the xref table.
func writePDF(pages [][]string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	// Object numbers: 1 catalog, 2 pages, 3 font, then page/content pairs.
	objCount := 3 + 2*len(pages)
	offsets := make([]int, objCount+1)

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pages)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, page := range pages {
		pageNum := 4 + 2*i
		contentNum := pageNum + 1

		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pdfPageWidth, pdfPageHeight, contentNum))

		stream := contentStream(page)
		writeObj(contentNum, fmt.Sprintf(
			"<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", objCount+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= objCount; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		objCount+1, xrefOffset)
	return buf.Bytes()
}

func contentStream(lines []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "BT\n/F1 11 Tf\n%d TL\n%d %d Td\n",
		pdfLeading, pdfMargin, pdfPageHeight-pdfMargin)
	for _, line := range lines {
		fmt.Fprintf(&sb, "(%s) Tj\nT*\n", escapePDFText(line))
	}
	sb.WriteString("ET\n")
	return sb.String()
}

func escapePDFText(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return replacer.Replace(s)
}
