package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capabilities bundles the external collaborators the pipeline drives.
// Every implementation is swappable, which is what the tests do.
type Capabilities struct {
	Mailbox    Mailbox
	Documents  DocumentStore
	Classifier Classifier
	Summarizer Summarizer
	Renderer   Renderer
}

// Pipeline runs the scan → extract → match → synthesize → dispatch
// workflow. It holds no state between runs beyond what lives in the
// database.
type Pipeline struct {
	cfg    Config
	db     *sql.DB
	ledger *Ledger
	caps   Capabilities
	now    func() time.Time
}

func NewPipeline(cfg Config, db *sql.DB, caps Capabilities) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		db:     db,
		ledger: NewLedger(db),
		caps:   caps,
		now:    time.Now,
	}
}

// RunOnce executes one full pipeline run. Individual item and pair
// failures are recorded and skipped; the run itself always completes
// and produces a report.
func (p *Pipeline) RunOnce(ctx context.Context) RunReport {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	log.Printf("run start id=%s", report.RunID)

	// Scan
	messages, err := p.caps.Mailbox.ListCandidateMessages(ctx, p.cfg.LookbackWindow(), p.cfg.MaxMessages)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("mailbox scan: %v", err))
		log.Printf("run %s mailbox scan error: %v", report.RunID, err)
	}
	documents, err := p.caps.Documents.ListCandidateDocuments(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("document scan: %v", err))
		log.Printf("run %s document scan error: %v", report.RunID, err)
	}
	report.MessagesScanned = len(messages)
	report.DocumentsScanned = len(documents)

	// Extract
	completions := p.extractCompletions(documents, &report)
	p.extractRequests(ctx, messages, &report)

	// Expire requests that fell out of the lookback window before
	// matching, so stale requests never claim a completion.
	expired, err := ExpireOpenRequestsBefore(p.db, p.now().Add(-p.cfg.LookbackWindow()))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("expiring requests: %v", err))
	}
	report.ExpiredRequests = expired

	openRequests, err := GetOpenRequests(p.db)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("loading open requests: %v", err))
	}

	// Score & Match. Scores are computed in parallel but fully
	// collected before the matcher's greedy pass, so the pair set never
	// depends on scheduling.
	matrix := p.scoreAll(openRequests, completions)
	pairs := MatchSignals(openRequests, completions, p.cfg.MatchAcceptanceThreshold,
		func(req RequestSignal, comp CompletionSignal) float64 {
			return matrix[pairKey{req.ID, comp.ID}]
		}, p.now())
	report.MatchedCount = len(pairs)
	for _, pair := range pairs {
		log.Printf("run %s matched request=%s doc=%s score=%.2f", report.RunID, pair.RequestID, pair.CompletionID, pair.Score)
	}

	// Synthesize, then dispatch. Each stage consumes the previous
	// stage's full output before the next begins.
	requestsByID := make(map[string]RequestSignal, len(openRequests))
	for _, req := range openRequests {
		requestsByID[req.ID] = req
	}
	completionsByID := make(map[string]CompletionSignal, len(completions))
	for _, comp := range completions {
		completionsByID[comp.ID] = comp
	}

	replies := p.synthesizeAll(ctx, pairs, requestsByID, completionsByID, &report)
	p.dispatchAll(ctx, replies, &report)

	report.FinishedAt = p.now()
	log.Printf("run done id=%s matched=%d sent=%d failed=%d skipped=%d errors=%d",
		report.RunID, report.MatchedCount, report.SentCount, report.FailedCount,
		report.SkippedCount, len(report.Errors))
	return report
}

func (p *Pipeline) extractCompletions(documents []Document, report *RunReport) []CompletionSignal {
	var completions []CompletionSignal
	for _, doc := range documents {
		if comp := ExtractCompletion(doc, p.cfg.CompletionMarker); comp != nil {
			completions = append(completions, *comp)
		}
	}
	report.CompletionsExtracted = len(completions)
	return completions
}

func (p *Pipeline) extractRequests(ctx context.Context, messages []Message, report *RunReport) {
	for _, msg := range messages {
		exists, err := RequestSignalExists(p.db, msg.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("checking message %s: %v", msg.ID, err))
			continue
		}
		if exists {
			// Classified on a previous run; its stored status decides
			// whether it is still in play.
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.ExternalCallTimeout())
		sig, err := ExtractRequest(callCtx, p.caps.Classifier, msg, p.cfg.RequestConfidenceThreshold)
		cancel()
		if err != nil {
			report.ExtractionFailures++
			report.Errors = append(report.Errors, fmt.Sprintf("classifying message %s: %v", msg.ID, err))
			log.Printf("extract request message=%s error: %v", msg.ID, err)
			continue
		}
		if sig == nil {
			continue
		}
		if err := InsertRequestSignal(p.db, *sig); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("storing request %s: %v", sig.ID, err))
			continue
		}
		report.RequestsExtracted++
		log.Printf("extract request message=%s topic=%q confidence=%.2f", sig.ID, sig.ExtractedTopic, sig.Confidence)
	}
}

type pairKey struct {
	requestID    string
	completionID string
}

// scoreAll computes the full score matrix with bounded parallelism.
// ScorePair is pure, so only the collection needs synchronizing.
func (p *Pipeline) scoreAll(requests []RequestSignal, completions []CompletionSignal) map[pairKey]float64 {
	matrix := make(map[pairKey]float64, len(requests)*len(completions))
	if len(requests) == 0 || len(completions) == 0 {
		return matrix
	}

	weights := p.cfg.ScoreWeights()
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.MaxConcurrentDispatch)

	for _, req := range requests {
		wg.Add(1)
		go func(req RequestSignal) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			row := make(map[pairKey]float64, len(completions))
			for _, comp := range completions {
				row[pairKey{req.ID, comp.ID}] = ScorePair(req, comp, weights)
			}
			mu.Lock()
			for k, v := range row {
				matrix[k] = v
			}
			mu.Unlock()
		}(req)
	}
	wg.Wait()
	return matrix
}

// synthesizeAll builds replies for all pairs with bounded parallelism.
// A pair whose summary or attachment cannot be produced is recorded as
// failed in the ledger and excluded from dispatch; the request stays
// open for the next run.
func (p *Pipeline) synthesizeAll(ctx context.Context, pairs []MatchedPair, requests map[string]RequestSignal, completions map[string]CompletionSignal, report *RunReport) []SynthesizedReply {
	results := make([]*SynthesizedReply, len(pairs))
	failures := make([]string, len(pairs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.MaxConcurrentDispatch)
	for i, pair := range pairs {
		wg.Add(1)
		go func(idx int, pair MatchedPair) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := requests[pair.RequestID]
			comp := completions[pair.CompletionID]

			callCtx, cancel := context.WithTimeout(ctx, p.cfg.ExternalCallTimeout())
			content, err := p.caps.Documents.FetchBody(callCtx, comp.ID)
			cancel()
			if err != nil {
				failures[idx] = fmt.Sprintf("fetching document body: %v", err)
				return
			}

			callCtx, cancel = context.WithTimeout(ctx, p.cfg.ExternalCallTimeout())
			reply, err := Synthesize(callCtx, pair, req, comp, content, p.caps.Summarizer, p.caps.Renderer)
			cancel()
			if err != nil {
				failures[idx] = err.Error()
				return
			}
			results[idx] = &reply
		}(i, pair)
	}
	wg.Wait()

	var replies []SynthesizedReply
	for i, pair := range pairs {
		if results[i] != nil {
			replies = append(replies, *results[i])
			continue
		}
		reason := failures[i]
		log.Printf("run %s synthesis failed request=%s doc=%s: %s", report.RunID, pair.RequestID, pair.CompletionID, reason)
		p.recordOutcome(report, pair, OutcomeFailed, reason)
	}
	return replies
}

// dispatchAll sends the synthesized replies with bounded parallelism.
// The ledger gate is the last check before every send: a request with a
// sent record is skipped, never re-sent.
func (p *Pipeline) dispatchAll(ctx context.Context, replies []SynthesizedReply, report *RunReport) {
	type dispatchResult struct {
		pair    MatchedPair
		outcome string
		reason  string
	}
	results := make([]dispatchResult, len(replies))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.MaxConcurrentDispatch)
	for i, reply := range replies {
		wg.Add(1)
		go func(idx int, reply SynthesizedReply) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pair := reply.Pair
			ok, err := p.ledger.BeginSend(pair.RequestID)
			if err != nil {
				results[idx] = dispatchResult{pair, OutcomeFailed, fmt.Sprintf("ledger check: %v", err)}
				return
			}
			if !ok {
				results[idx] = dispatchResult{pair, OutcomeSkipped, "already sent"}
				return
			}
			defer p.ledger.FinishSend(pair.RequestID)

			req, err := GetRequestSignal(p.db, pair.RequestID)
			if err != nil {
				results[idx] = dispatchResult{pair, OutcomeFailed, fmt.Sprintf("loading request: %v", err)}
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, p.cfg.ExternalCallTimeout())
			_, err = p.caps.Mailbox.SendReply(callCtx, req, reply.Body, reply.Attachment, p.cfg.CCSender())
			cancel()
			if err != nil {
				results[idx] = dispatchResult{pair, OutcomeFailed, fmt.Sprintf("sending reply: %v", err)}
				return
			}

			if err := p.ledger.RecordSent(pair, report.RunID); err != nil {
				// The reply went out; a ledger write failure must not
				// look like an unsent request.
				results[idx] = dispatchResult{pair, OutcomeSent, fmt.Sprintf("ledger write after send: %v", err)}
				return
			}
			results[idx] = dispatchResult{pair, OutcomeSent, ""}
		}(i, reply)
	}
	wg.Wait()

	for _, res := range results {
		switch res.outcome {
		case OutcomeSent:
			report.SentCount++
			report.PairOutcomes = append(report.PairOutcomes, PairOutcome{
				RequestID:    res.pair.RequestID,
				CompletionID: res.pair.CompletionID,
				Score:        res.pair.Score,
				Outcome:      OutcomeSent,
				Reason:       res.reason,
			})
			if res.reason != "" {
				report.Errors = append(report.Errors, res.reason)
			}
			log.Printf("run %s dispatched request=%s doc=%s", report.RunID, res.pair.RequestID, res.pair.CompletionID)
		default:
			p.recordOutcome(report, res.pair, res.outcome, res.reason)
		}
	}
}

// recordOutcome appends a failed or skipped ledger row and mirrors it
// into the run report. Neither outcome blocks a retry on a later run.
func (p *Pipeline) recordOutcome(report *RunReport, pair MatchedPair, outcome, reason string) {
	rec := DispatchRecord{
		RequestID:    pair.RequestID,
		CompletionID: pair.CompletionID,
		RunID:        report.RunID,
		Score:        pair.Score,
		Outcome:      outcome,
	}
	if outcome == OutcomeFailed {
		rec.FailureReason = reason
	}
	err := p.ledger.Append(rec)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("ledger append request=%s: %v", pair.RequestID, err))
	}

	switch outcome {
	case OutcomeFailed:
		report.FailedCount++
	case OutcomeSkipped:
		report.SkippedCount++
	}
	report.PairOutcomes = append(report.PairOutcomes, PairOutcome{
		RequestID:    pair.RequestID,
		CompletionID: pair.CompletionID,
		Score:        pair.Score,
		Outcome:      outcome,
		Reason:       reason,
	})
}
