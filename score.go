package main

import (
	"regexp"
	"strings"
)

// ScoreWeights is the tunable blend policy for the relevance scorer.
type ScoreWeights struct {
	Lexical float64 // token overlap between request text and document text
	Topic   float64 // topic-to-topic overlap weighted by classifier confidence
	Recency float64 // freshness of the completion relative to the request
}

// DefaultScoreWeights mirrors the config defaults.
var DefaultScoreWeights = ScoreWeights{Lexical: 0.6, Topic: 0.25, Recency: 0.15}

// ScorePair computes the affinity between one request and one
// completion as a value in [0,1]. It is total (never fails) and
// monotonic in lexical overlap. A completion that predates the request
// scores zero: a document cannot answer a request made after the work
// was already finished.
func ScorePair(req RequestSignal, comp CompletionSignal, w ScoreWeights) float64 {
	if comp.CompletedAt.Before(req.ReceivedAt) {
		return 0
	}

	reqTokens := tokenize(req.ExtractedTopic + " " + req.Subject)
	compTokens := tokenize(comp.ExtractedTopic + " " + comp.Title)
	lexical := overlapCoefficient(reqTokens, compTokens)

	topicSim := overlapCoefficient(tokenize(req.ExtractedTopic), tokenize(comp.ExtractedTopic))
	plausibility := req.Confidence
	if plausibility > 1 {
		plausibility = 1
	}
	if plausibility < 0 {
		plausibility = 0
	}

	gap := comp.CompletedAt.Sub(req.ReceivedAt)
	freshness := 1.0 / (1.0 + gap.Hours()/(24*7))

	score := w.Lexical*lexical + w.Topic*topicSim*plausibility + w.Recency*freshness

	// Identical topics are a guaranteed strong match regardless of how
	// the weights are tuned.
	if normalizeTopic(req.ExtractedTopic) != "" &&
		normalizeTopic(req.ExtractedTopic) == normalizeTopic(comp.ExtractedTopic) &&
		score < 0.9 {
		score = 0.9
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

var nonWordRun = regexp.MustCompile(`[^a-z0-9]+`)

// tokenStopwords are filler words that carry no matching signal; "re"
// covers reply-subject prefixes.
var tokenStopwords = map[string]bool{
	"re": true, "fwd": true, "the": true, "a": true, "an": true,
	"of": true, "for": true, "on": true, "in": true, "to": true,
	"and": true, "is": true, "done": true,
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range nonWordRun.Split(strings.ToLower(text), -1) {
		if len(tok) < 2 || tokenStopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

// overlapCoefficient is |A∩B| / min(|A|,|B|): 1.0 when either side is
// contained in the other, 0.0 when the sets are disjoint.
func overlapCoefficient(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func normalizeTopic(topic string) string {
	return strings.Join(nonWordRun.Split(strings.ToLower(strings.TrimSpace(topic)), -1), " ")
}
