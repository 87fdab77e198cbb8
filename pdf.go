package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer turns document text into the PDF attached to replies.
type PDFRenderer struct {
	CompletionMarker string
}

func (r PDFRenderer) Render(_ context.Context, content, title string) (Attachment, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, title, "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para == "" {
			continue
		}
		pdf.MultiCell(0, 6, para, "", "J", false)
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Attachment{}, fmt.Errorf("building PDF for %q: %w", title, err)
	}

	return Attachment{
		Filename:    attachmentFilename(title, r.CompletionMarker),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}, nil
}

// attachmentFilename derives the PDF name from the document title with
// the completion marker stripped: "Market Analysis Done" becomes
// "Market_Analysis.pdf".
func attachmentFilename(title, marker string) string {
	name := stripCompletionMarker(title, marker)
	if name == "" {
		name = strings.TrimSpace(title)
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-' || r == '.':
			return r
		}
		return '_'
	}, name)
	name = strings.Trim(name, "_")
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}
