package export

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

type textStyle struct {
	style string
	size  float64
	gray  int
	line  float64
}

var (
	titleStyle   = textStyle{style: "B", size: 24, gray: 0, line: 10}
	headingStyle = textStyle{style: "B", size: 14, gray: 0, line: 7}
	speakerStyle = textStyle{style: "B", size: 10, gray: 77, line: 5}
	bodyStyle    = textStyle{size: 11, gray: 0, line: 5.5}
	metaStyle    = textStyle{size: 9, gray: 102, line: 4.5}
)

// PDF renders the export as a Letter-size PDF in Helvetica.
func PDF(doc Document, w io.Writer) error {
	return renderPDF(doc, w, true)
}

func renderPDF(doc Document, w io.Writer, compress bool) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCompression(compress)
	pdf.SetTitle("Narravox story "+doc.SessionID, true)
	pdf.SetCreator("narravox", true)
	pdf.SetMargins(25, 25, 25)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	write := func(s textStyle, text string) {
		pdf.SetFont("Helvetica", s.style, s.size)
		pdf.SetTextColor(s.gray, s.gray, s.gray)
		pdf.MultiCell(0, s.line, tr(text), "", "L", false)
	}

	write(titleStyle, "NARRAVOX STORY")
	pdf.Ln(4)
	write(metaStyle, "Session ID: "+doc.SessionID)
	write(metaStyle, "Created: "+doc.ExportedAt.Format(timeLayout))
	write(metaStyle, fmt.Sprintf("Turns: %d", doc.TurnCount))
	pdf.Ln(7)

	if doc.CulturalContext != "" {
		write(headingStyle, "CULTURAL CONTEXT")
		pdf.Ln(2)
		write(bodyStyle, doc.CulturalContext)
		pdf.Ln(5)
	}

	write(headingStyle, "STORY")
	pdf.Ln(3)
	for _, turn := range doc.Turns {
		write(speakerStyle, fmt.Sprintf("TURN %d", turn.Number))
		if turn.UserInput != "" {
			write(speakerStyle, "[YOU]")
			write(bodyStyle, turn.UserInput)
			pdf.Ln(2)
		}
		write(speakerStyle, "[STORY]")
		write(bodyStyle, turn.Continuation)
		pdf.Ln(5)
	}

	if len(doc.Insights) > 0 {
		pdf.Ln(7)
		write(headingStyle, "CULTURAL INSIGHTS")
		pdf.Ln(2)
		for _, insight := range doc.Insights {
			write(speakerStyle, insight.Title)
			write(bodyStyle, insight.Explanation)
			pdf.Ln(3)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
