package main

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractRequest turns one inbox message into a RequestSignal, or nil
// when the message does not ask for a deliverable. Classifier errors
// propagate so the caller can count the degraded item; a low-confidence
// or non-request verdict is a soft nil.
func ExtractRequest(ctx context.Context, classifier Classifier, msg Message, minConfidence float64) (*RequestSignal, error) {
	if msg.BodyIsHTML {
		msg.Body = htmlToText(msg.Body)
		msg.BodyIsHTML = false
	}

	cls, err := classifier.ClassifyRequest(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !cls.IsRequest || cls.Confidence < minConfidence {
		return nil, nil
	}

	return &RequestSignal{
		ID:              msg.ID,
		ThreadID:        msg.ThreadID,
		MessageIDHeader: msg.MessageIDHeader,
		Sender:          msg.Sender,
		Subject:         msg.Subject,
		ExtractedTopic:  cls.Topic,
		Confidence:      cls.Confidence,
		Status:          StatusOpen,
		ReceivedAt:      msg.ReceivedAt,
	}, nil
}

// ExtractCompletion turns a document into a CompletionSignal when its
// trimmed title ends with the completion marker (case-insensitive).
// The check deliberately looks at the title only, never the body.
func ExtractCompletion(doc Document, marker string) *CompletionSignal {
	title := strings.TrimSpace(doc.Title)
	if !hasCompletionMarker(title, marker) {
		return nil
	}
	return &CompletionSignal{
		ID:             doc.ID,
		Title:          title,
		ExtractedTopic: stripCompletionMarker(title, marker),
		CompletedAt:    doc.UpdatedAt,
	}
}

func hasCompletionMarker(title, marker string) bool {
	title = strings.TrimSpace(title)
	marker = strings.TrimSpace(marker)
	if marker == "" || len(title) < len(marker) {
		return false
	}
	return strings.EqualFold(title[len(title)-len(marker):], marker)
}

// stripCompletionMarker removes the marker suffix plus any separator
// punctuation, leaving the document's topic.
func stripCompletionMarker(title, marker string) string {
	title = strings.TrimSpace(title)
	if hasCompletionMarker(title, marker) {
		title = title[:len(title)-len(strings.TrimSpace(marker))]
	}
	return strings.TrimRight(title, " \t-–:_(")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// htmlToText flattens an HTML email body to plain text for
// classification. A body that fails to parse is returned as-is.
func htmlToText(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(doc.Text(), " "))
}
