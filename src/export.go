package storyweaver

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ExportText writes the finished story as plain UTF-8 text.
func ExportText(w io.Writer, art StoryArtifact) error {
	if _, err := io.WriteString(w, art.Text+"\n"); err != nil {
		return fmt.Errorf("writing story text: %w", err)
	}
	return nil
}

// ExportPDF typesets the finished story as a simple A4 document, one
// paragraph per blank-line separated block.
func ExportPDF(w io.Writer, title string, art StoryArtifact) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, title, "", "C", false)
	pdf.Ln(6)

	pdf.SetFont("Times", "", 12)
	for _, para := range strings.Split(art.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pdf.MultiCell(0, 6, para, "", "L", false)
		pdf.Ln(4)
	}

	if !art.Date.IsZero() {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, "Finished "+art.Date.Format("January 2, 2006"), "", "R", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
