package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mailbox is the mail capability the pipeline consumes. Listing covers
// the lookback window; SendReply threads the response onto the original
// conversation.
type Mailbox interface {
	ListCandidateMessages(ctx context.Context, window time.Duration, max int) ([]Message, error)
	SendReply(ctx context.Context, req RequestSignal, body string, attachment Attachment, ccSelf bool) (string, error)
}

// GmailMailbox talks to the Gmail REST API directly.
type GmailMailbox struct {
	UserEmail  string
	BaseURL    string // override for tests; defaults to the public API
	HTTPClient *http.Client
}

func NewGmailMailbox(cfg Config) *GmailMailbox {
	return &GmailMailbox{
		UserEmail:  cfg.UserEmail,
		HTTPClient: newGoogleHTTPClient(cfg),
	}
}

const gmailDefaultBaseURL = "https://gmail.googleapis.com"

func (g *GmailMailbox) baseURL() string {
	if g.BaseURL != "" {
		return g.BaseURL
	}
	return gmailDefaultBaseURL
}

func (g *GmailMailbox) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return externalHTTPClient
}

type gmailListResponse struct {
	Messages      []gmailMessageRef `json:"messages"`
	NextPageToken string            `json:"nextPageToken"`
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailMessage struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	InternalDate string       `json:"internalDate"` // epoch millis as string
	Payload      gmailPayload `json:"payload"`
}

type gmailPayload struct {
	MimeType string         `json:"mimeType"`
	Headers  []gmailHeader  `json:"headers"`
	Body     gmailBody      `json:"body"`
	Parts    []gmailPayload `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

// ListCandidateMessages pages through the inbox for messages received
// within the window and fetches each one in full.
func (g *GmailMailbox) ListCandidateMessages(ctx context.Context, window time.Duration, max int) ([]Message, error) {
	after := time.Now().Add(-window).Format("2006/01/02")
	query := fmt.Sprintf("in:inbox after:%s", after)
	log.Printf("gmail list query=%q max=%d", query, max)

	var refs []gmailMessageRef
	pageToken := ""
	for {
		apiURL := fmt.Sprintf("%s/gmail/v1/users/me/messages?q=%s&maxResults=100",
			g.baseURL(), url.QueryEscape(query))
		if pageToken != "" {
			apiURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page gmailListResponse
		if err := g.getJSON(ctx, apiURL, &page); err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		refs = append(refs, page.Messages...)
		if page.NextPageToken == "" || len(refs) >= max {
			break
		}
		pageToken = page.NextPageToken
	}
	if len(refs) > max {
		refs = refs[:max]
	}

	var messages []Message
	for _, ref := range refs {
		msg, err := g.fetchMessage(ctx, ref.ID)
		if err != nil {
			log.Printf("gmail fetch message id=%s error: %v", ref.ID, err)
			continue
		}
		messages = append(messages, msg)
	}
	log.Printf("gmail list done refs=%d fetched=%d", len(refs), len(messages))
	return messages, nil
}

func (g *GmailMailbox) fetchMessage(ctx context.Context, id string) (Message, error) {
	apiURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?format=full", g.baseURL(), url.PathEscape(id))

	var raw gmailMessage
	if err := g.getJSON(ctx, apiURL, &raw); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:       raw.ID,
		ThreadID: raw.ThreadID,
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.Sender = h.Value
		case "message-id":
			msg.MessageIDHeader = h.Value
		}
	}
	if millis, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil {
		msg.ReceivedAt = time.UnixMilli(millis)
	}
	msg.Body, msg.BodyIsHTML = extractMessageBody(raw.Payload)
	return msg, nil
}

// extractMessageBody walks the MIME tree preferring text/plain; an HTML
// part is used only when no plain part exists anywhere.
func extractMessageBody(payload gmailPayload) (string, bool) {
	var plain, html string

	var walk func(p gmailPayload)
	walk = func(p gmailPayload) {
		switch p.MimeType {
		case "text/plain":
			if plain == "" {
				plain = decodeBase64URL(p.Body.Data)
			}
		case "text/html":
			if html == "" {
				html = decodeBase64URL(p.Body.Data)
			}
		}
		for _, part := range p.Parts {
			walk(part)
		}
	}
	walk(payload)

	if plain != "" {
		return plain, false
	}
	return html, html != ""
}

func decodeBase64URL(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

type gmailSendRequest struct {
	Raw      string `json:"raw"`
	ThreadID string `json:"threadId,omitempty"`
}

type gmailSendResponse struct {
	ID string `json:"id"`
}

// SendReply sends a threaded reply to the request's original message
// with the rendered document attached.
func (g *GmailMailbox) SendReply(ctx context.Context, req RequestSignal, body string, attachment Attachment, ccSelf bool) (string, error) {
	to := extractSenderEmail(req.Sender)
	if to == "" {
		return "", fmt.Errorf("no recipient address in sender %q", req.Sender)
	}

	cc := ""
	if ccSelf {
		cc = g.UserEmail
	}
	raw := buildReplyMIME(to, cc, replySubject(req.Subject), req.MessageIDHeader, body, attachment)

	payload, err := json.Marshal(gmailSendRequest{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadID: req.ThreadID,
	})
	if err != nil {
		return "", err
	}

	apiURL := g.baseURL() + "/gmail/v1/users/me/messages/send"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("Gmail API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var sent gmailSendResponse
	if err := json.Unmarshal(respBody, &sent); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	log.Printf("gmail sent reply id=%s thread=%s to=%s", sent.ID, req.ThreadID, to)
	return sent.ID, nil
}

func (g *GmailMailbox) getJSON(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := g.client().Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("Gmail API returned %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// replySubject keeps an existing Re: prefix instead of stacking another.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

var senderEmailPattern = regexp.MustCompile(`<(.+?)>`)

// extractSenderEmail pulls the address out of `Name <addr>` From
// headers; a bare address passes through unchanged.
func extractSenderEmail(sender string) string {
	if m := senderEmailPattern.FindStringSubmatch(sender); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(sender)
}

// buildReplyMIME assembles the outgoing RFC 822 message by hand:
// a text part plus the base64-encoded attachment.
func buildReplyMIME(to, cc, subject, inReplyTo, body string, attachment Attachment) string {
	const boundary = "donedelivered-mixed"

	var out strings.Builder
	out.WriteString("MIME-Version: 1.0\r\n")
	out.WriteString("To: " + to + "\r\n")
	if cc != "" {
		out.WriteString("Cc: " + cc + "\r\n")
	}
	out.WriteString("Subject: " + subject + "\r\n")
	if inReplyTo != "" {
		out.WriteString("In-Reply-To: " + inReplyTo + "\r\n")
		out.WriteString("References: " + inReplyTo + "\r\n")
	}
	out.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", boundary))
	out.WriteString("\r\n")

	out.WriteString("--" + boundary + "\r\n")
	out.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	out.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	out.WriteString(normalizeCRLF(body))
	if !strings.HasSuffix(body, "\n") {
		out.WriteString("\r\n")
	}

	if len(attachment.Data) > 0 {
		out.WriteString("\r\n--" + boundary + "\r\n")
		out.WriteString(fmt.Sprintf("Content-Type: %s; name=%q\r\n", attachment.ContentType, attachment.Filename))
		out.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n", attachment.Filename))
		out.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		out.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(attachment.Data)))
		out.WriteString("\r\n")
	}

	out.WriteString("--" + boundary + "--\r\n")
	return out.String()
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func wrapBase64(s string) string {
	var out strings.Builder
	for len(s) > 76 {
		out.WriteString(s[:76])
		out.WriteString("\r\n")
		s = s[76:]
	}
	out.WriteString(s)
	return out.String()
}
