package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// RequestClassification is the classifier's verdict on one message.
type RequestClassification struct {
	IsRequest     bool
	Topic         string
	Confidence    float64
	DocReferences []string
}

// Classifier decides whether a message is asking for a deliverable.
// Two interchangeable strategies exist: keyword pattern matching and an
// LLM call. Both live behind this interface so the choice stays config.
type Classifier interface {
	ClassifyRequest(ctx context.Context, msg Message) (RequestClassification, error)
}

// --- Keyword classifier ---

var requestPatterns = []*regexp.Regexp{
	// Direct requests
	regexp.MustCompile(`\b(send|share|provide|submit)\s+.*\b(document|doc|file|report|paper|analysis)\b`),
	regexp.MustCompile(`\b(where\s+is|what\s+about|status\s+of|update\s+on)\s+.*\b(document|doc|file|report|paper|analysis)\b`),
	regexp.MustCompile(`\b(pending|waiting\s+for|awaiting|expecting)\s+.*\b(document|doc|file|report|paper|analysis)\b`),
	// Status inquiries
	regexp.MustCompile(`\b(ready|finished|completed|done)\s+.*\b(document|doc|file|report|paper|analysis)\b`),
	regexp.MustCompile(`\b(document|doc|file|report|paper|analysis)\s+.*\b(ready|finished|completed|done)\b`),
	// Review requests
	regexp.MustCompile(`\b(review|check|look\s+at|feedback\s+on)\s+.*\b(document|doc|file|report|paper|analysis)\b`),
	regexp.MustCompile(`\bplease\s+(review|check|send|share)\b`),
	// Deadline related
	regexp.MustCompile(`\b(deadline|due\s+date|timeline)\b.*\b(document|doc|file|report|paper|analysis)\b`),
	regexp.MustCompile(`\b(urgent|asap|immediately)\b.*\b(document|doc|file|report|paper|analysis)\b`),
	// Work completion
	regexp.MustCompile(`\b(work|task|project)\s+.*\b(complete|finished|done|ready)\b`),
	regexp.MustCompile(`\b(complete|finished|done|ready)\s+.*\b(work|task|project)\b`),
}

var requestKeywords = []string{
	"pending document", "document review", "please review", "awaiting document",
	"document status", "completed work", "finished document", "send document",
	"share document", "document ready", "work done", "project complete",
	"status update", "where is", "when will", "document deadline",
}

var questionIndicators = []string{
	"?", "when", "where", "what", "how", "please", "can you", "could you",
}

var automatedSenderIndicators = []string{
	"noreply", "no-reply", "automated", "system", "notification",
}

// docReferencePattern picks up Title Case deliverable names such as
// "Market Analysis Report" mentioned in the subject or body.
var docReferencePattern = regexp.MustCompile(`\b([A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\s+(?:Report|Document|Paper|Project|Analysis|Proposal))\b`)

// KeywordClassifier detects deliverable requests with pattern matching.
// It needs no network access and never fails, which makes it the
// default strategy.
type KeywordClassifier struct{}

func (KeywordClassifier) ClassifyRequest(_ context.Context, msg Message) (RequestClassification, error) {
	fullText := strings.ToLower(msg.Subject + " " + msg.Body)
	sender := strings.ToLower(msg.Sender)

	var matched []string
	confidence := 0.0

	for _, pattern := range requestPatterns {
		if pattern.MatchString(fullText) {
			matched = append(matched, pattern.String())
			confidence += 0.3
		}
	}
	for _, keyword := range requestKeywords {
		if strings.Contains(fullText, keyword) {
			matched = append(matched, keyword)
			confidence += 0.1
		}
	}

	for _, indicator := range questionIndicators {
		if strings.Contains(fullText, indicator) {
			confidence += 0.1
			break
		}
	}
	for _, indicator := range automatedSenderIndicators {
		if strings.Contains(sender, indicator) {
			confidence -= 0.2
			break
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}

	refs := extractDocReferences(msg.Subject + " " + msg.Body)
	topic := msg.Subject
	if len(refs) > 0 {
		topic = refs[0]
	}

	return RequestClassification{
		IsRequest:     confidence > 0.2 && len(matched) > 0,
		Topic:         strings.TrimSpace(topic),
		Confidence:    confidence,
		DocReferences: refs,
	}, nil
}

func extractDocReferences(text string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, m := range docReferencePattern.FindAllString(text, 10) {
		m = strings.TrimSpace(m)
		if len(m) <= 3 || seen[strings.ToLower(m)] {
			continue
		}
		seen[strings.ToLower(m)] = true
		refs = append(refs, m)
	}
	return refs
}

// --- LLM classifier ---

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// LLMClassifier asks Anthropic whether a message requests a deliverable.
type LLMClassifier struct {
	APIKey string
	Model  string
}

type llmRequestVerdict struct {
	IsRequest  bool    `json:"is_request"`
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

const classifySystemPrompt = `You decide whether an email is asking someone to deliver a piece of written work (a document, report, paper, analysis, or similar deliverable).

Respond with JSON only (no markdown):
{"is_request": true, "topic": "short free-text description of what is being asked for", "confidence": 0.87}

Set confidence between 0 and 1. Automated notifications, newsletters, and emails that merely mention documents without asking for one are not requests.`

func (c LLMClassifier) ClassifyRequest(ctx context.Context, msg Message) (RequestClassification, error) {
	body := msg.Body
	if len(body) > 4000 {
		body = body[:4000]
	}
	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", msg.Sender, msg.Subject, body)

	model := c.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	responseText, err := callAnthropic(ctx, c.APIKey, model, classifySystemPrompt, userPrompt)
	if err != nil {
		return RequestClassification{}, err
	}

	var verdict llmRequestVerdict
	if err := json.Unmarshal([]byte(stripJSONFences(responseText)), &verdict); err != nil {
		return RequestClassification{}, fmt.Errorf("parsing LLM classification response: %w (response: %s)", err, responseText)
	}

	topic := strings.TrimSpace(verdict.Topic)
	if topic == "" {
		topic = msg.Subject
	}
	return RequestClassification{
		IsRequest:  verdict.IsRequest,
		Topic:      topic,
		Confidence: verdict.Confidence,
	}, nil
}

func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}
