package main

import (
	"bytes"
	"context"
	"testing"
)

func TestPDFRendererRender(t *testing.T) {
	renderer := PDFRenderer{CompletionMarker: "Done"}

	att, err := renderer.Render(context.Background(), "First paragraph.\n\nSecond\nparagraph.", "Market Analysis Done")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if att.Filename != "Market_Analysis.pdf" {
		t.Fatalf("filename = %q, want Market_Analysis.pdf", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", att.ContentType)
	}
	if !bytes.HasPrefix(att.Data, []byte("%PDF")) {
		t.Fatalf("attachment is not a PDF, starts with %q", att.Data[:min(8, len(att.Data))])
	}
}

func TestPDFRendererEmptyContent(t *testing.T) {
	renderer := PDFRenderer{CompletionMarker: "Done"}
	att, err := renderer.Render(context.Background(), "", "Empty Done")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(att.Data) == 0 {
		t.Fatal("empty content must still produce a PDF")
	}
}

func TestAttachmentFilename(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Market Analysis Done", "Market_Analysis.pdf"},
		{"Q3 Report - Done", "Q3_Report.pdf"},
		{"Done", "Done.pdf"},
		{"Budget (v2) Done", "Budget__v2.pdf"},
		{"", "document.pdf"},
		{"///", "document.pdf"},
	}
	for _, tt := range tests {
		if got := attachmentFilename(tt.title, "Done"); got != tt.want {
			t.Errorf("attachmentFilename(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
