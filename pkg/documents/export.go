package documents

import (
	"regexp"
	"strings"
	"time"
)

// Renderer turns a document and its sections into a binary artifact
type Renderer interface {
	Render(doc *Document, sections []Section) ([]byte, error)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)

// ExportFilename builds the download name for an exported document: the
// title with non-alphanumeric characters stripped and spaces collapsed to
// hyphens, followed by a timestamp, e.g. Quarterly-Review-2025-11-18-153045.pdf.
func ExportFilename(title string, now time.Time) string {
	cleaned := nonAlphanumeric.ReplaceAllString(title, "")
	name := strings.Join(strings.Fields(cleaned), "-")
	if name == "" {
		name = "A3"
	}
	return name + "-" + now.Format("2006-01-02-150405") + ".pdf"
}
