package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Summarizer condenses a completed document for the reply body.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
}

// Renderer produces the portable attachment for a completed document.
type Renderer interface {
	Render(ctx context.Context, content, title string) (Attachment, error)
}

// replyComposer is an optional capability: a summarizer that can also
// draft the reply body. Composition failure falls back to the template,
// it never fails the pair.
type replyComposer interface {
	ComposeReply(ctx context.Context, req RequestSignal, docTitle, summary string) (string, error)
}

// SynthesizedReply is everything required before a send may be
// attempted for one matched pair.
type SynthesizedReply struct {
	Pair       MatchedPair
	Summary    string
	Body       string
	Attachment Attachment
}

// Synthesize builds the reply for one matched pair: summary, body, and
// rendered attachment. All-or-nothing: if the summarizer or the
// renderer fails, no partial reply survives and the error propagates so
// the ledger can record the pair as failed.
func Synthesize(ctx context.Context, pair MatchedPair, req RequestSignal, comp CompletionSignal, content string, summarizer Summarizer, renderer Renderer) (SynthesizedReply, error) {
	summary, err := summarizer.Summarize(ctx, comp.Title, content)
	if err != nil {
		return SynthesizedReply{}, fmt.Errorf("summarizing %q: %w", comp.Title, err)
	}

	attachment, err := renderer.Render(ctx, content, comp.Title)
	if err != nil {
		return SynthesizedReply{}, fmt.Errorf("rendering %q: %w", comp.Title, err)
	}

	body := fallbackReplyBody(comp.Title, summary)
	if composer, ok := summarizer.(replyComposer); ok {
		composed, err := composer.ComposeReply(ctx, req, comp.Title, summary)
		if err != nil {
			log.Printf("reply composition failed request=%s, using template: %v", req.ID, err)
		} else if strings.TrimSpace(composed) != "" {
			body = composed
		}
	}

	return SynthesizedReply{
		Pair:       pair,
		Summary:    summary,
		Body:       body,
		Attachment: attachment,
	}, nil
}

func fallbackReplyBody(docTitle, summary string) string {
	return fmt.Sprintf(`Hello,

Thank you for your email regarding the document request.

I'm pleased to inform you that the requested document "%s" has been completed and is ready for your review.

Document Summary:
%s

Please find the complete document attached as a PDF file. Feel free to reach out if you have any questions or need any clarifications.

Best regards`, docTitle, summary)
}

// --- Anthropic-backed summarizer ---

type AnthropicSummarizer struct {
	APIKey string
	Model  string
}

const summarizeSystemPrompt = `You are a professional assistant helping to summarize completed work documents. Provide clear, concise, and professional summaries suitable for sharing in an email response.`

func (s AnthropicSummarizer) Summarize(ctx context.Context, title, content string) (string, error) {
	if len(content) > 8000 {
		content = content[:8000]
	}
	userPrompt := fmt.Sprintf(`Provide a concise professional summary of the following document titled "%s".

Focus on:
- Key objectives and goals
- Main points and findings
- Deliverables or outcomes
- Any important conclusions or recommendations

Document content:
%s`, title, content)

	model := s.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	summary, err := callAnthropic(ctx, s.APIKey, model, summarizeSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

const composeSystemPrompt = `You are a professional assistant composing email responses about completed work. Write clear, polite, and informative emails. Output the email body only, no subject line.`

func (s AnthropicSummarizer) ComposeReply(ctx context.Context, req RequestSignal, docTitle, summary string) (string, error) {
	userPrompt := fmt.Sprintf(`Compose a professional email response based on the following context:

Original email subject: %s
Original sender: %s
Document completed: %s

The email should:
1. Acknowledge the original request
2. Inform that the requested document has been completed
3. Include the summary below
4. Mention that the full document is attached as a PDF
5. Be polite and professional

Document Summary:
%s`, req.Subject, req.Sender, docTitle, summary)

	model := s.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	body, err := callAnthropic(ctx, s.APIKey, model, composeSystemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}
