package main

import "time"

// Request status lifecycle. A request is never deleted; it moves from
// open to answered (after a sent dispatch record exists) or to expired
// (once it falls out of the lookback window).
const (
	StatusOpen     = "open"
	StatusAnswered = "answered"
	StatusExpired  = "expired"
)

// Dispatch outcomes recorded in the append-only ledger.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Message is a provider-neutral view of one inbox email.
type Message struct {
	ID              string
	ThreadID        string
	MessageIDHeader string // RFC 822 Message-ID, needed for threaded replies
	Sender          string // raw From header, e.g. `Jane Doe <jane@example.com>`
	Subject         string
	Body            string
	BodyIsHTML      bool
	ReceivedAt      time.Time
}

// Document is a provider-neutral view of one document-store entry.
// Metadata only; the body is fetched lazily via DocumentStore.FetchBody.
type Document struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// RequestSignal is an email identified as asking for a deliverable.
type RequestSignal struct {
	ID              string // source message ID
	ThreadID        string
	MessageIDHeader string
	Sender          string
	Subject         string
	ExtractedTopic  string
	Confidence      float64
	Status          string
	ReceivedAt      time.Time
	CreatedAt       time.Time
}

// CompletionSignal is a document whose title carries the completion
// marker. Immutable once created.
type CompletionSignal struct {
	ID             string // source document ID
	Title          string
	ExtractedTopic string // title with the marker stripped
	CompletedAt    time.Time
}

// MatchCandidate is one scored request/completion pairing. Ephemeral:
// produced by the scorer, consumed by the matcher, never persisted.
type MatchCandidate struct {
	RequestID    string
	CompletionID string
	Score        float64
}

// MatchedPair is the matcher's decision that one completion answers one
// request. At most one pair per request ID and per completion ID.
type MatchedPair struct {
	RequestID    string
	CompletionID string
	Score        float64
	DecidedAt    time.Time
}

// DispatchRecord is one row of the append-only dispatch ledger.
type DispatchRecord struct {
	ID            int64
	RequestID     string
	CompletionID  string
	RunID         string
	Score         float64
	Outcome       string
	FailureReason string // present iff Outcome == failed
	AttemptedAt   time.Time
}

// Attachment is a rendered document ready to go on an outgoing reply.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PairOutcome records what happened to one matched pair during a run.
type PairOutcome struct {
	RequestID    string
	CompletionID string
	Score        float64
	Outcome      string
	Reason       string
}

// RunReport is the terminal product of one pipeline run.
type RunReport struct {
	RunID                string
	StartedAt            time.Time
	FinishedAt           time.Time
	MessagesScanned      int
	DocumentsScanned     int
	RequestsExtracted    int
	CompletionsExtracted int
	ExtractionFailures   int
	ExpiredRequests      int
	MatchedCount         int
	SentCount            int
	FailedCount          int
	SkippedCount         int
	PairOutcomes         []PairOutcome
	Errors               []string
}
