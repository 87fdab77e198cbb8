package main

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestScorePairIdenticalTopics(t *testing.T) {
	req := RequestSignal{
		ID:             "r1",
		Subject:        "Where is the market analysis?",
		ExtractedTopic: "market analysis",
		Confidence:     0.8,
		ReceivedAt:     t0,
	}
	comp := CompletionSignal{
		ID:             "c1",
		Title:          "Market Analysis Done",
		ExtractedTopic: "Market Analysis",
		CompletedAt:    t0.Add(time.Hour),
	}

	score := ScorePair(req, comp, DefaultScoreWeights)
	if score < 0.9 {
		t.Fatalf("identical topics must score >= 0.9, got %f", score)
	}
	if score > 1.0 {
		t.Fatalf("score must not exceed 1.0, got %f", score)
	}
}

func TestScorePairCompletionPredatesRequest(t *testing.T) {
	req := RequestSignal{
		ID:             "r1",
		Subject:        "Where is the market analysis?",
		ExtractedTopic: "market analysis",
		Confidence:     0.9,
		ReceivedAt:     t0,
	}
	comp := CompletionSignal{
		ID:             "c1",
		Title:          "Market Analysis Done",
		ExtractedTopic: "Market Analysis",
		CompletedAt:    t0.Add(-time.Hour),
	}

	if score := ScorePair(req, comp, DefaultScoreWeights); score != 0 {
		t.Fatalf("completion before request must score 0, got %f", score)
	}
}

func TestScorePairMuchLaterCompletionStillEligible(t *testing.T) {
	req := RequestSignal{
		ID:             "r1",
		ExtractedTopic: "market analysis",
		Confidence:     0.8,
		ReceivedAt:     t0,
	}
	comp := CompletionSignal{
		ID:             "c1",
		Title:          "Market Analysis Done",
		ExtractedTopic: "Market Analysis",
		CompletedAt:    t0.AddDate(0, 2, 0),
	}

	if score := ScorePair(req, comp, DefaultScoreWeights); score < 0.9 {
		t.Fatalf("late completion with identical topic must still score >= 0.9, got %f", score)
	}
}

func TestScorePairMonotonicInOverlap(t *testing.T) {
	req := RequestSignal{
		ID:             "r1",
		ExtractedTopic: "quarterly revenue forecast model",
		Confidence:     0.7,
		ReceivedAt:     t0,
	}
	lowOverlap := CompletionSignal{
		ID:             "cA",
		Title:          "Quarterly Revenue Summary Notes Done",
		ExtractedTopic: "Quarterly Revenue Summary Notes",
		CompletedAt:    t0.Add(time.Hour),
	}
	highOverlap := CompletionSignal{
		ID:             "cB",
		Title:          "Quarterly Revenue Forecast Notes Done",
		ExtractedTopic: "Quarterly Revenue Forecast Notes",
		CompletedAt:    t0.Add(time.Hour),
	}

	low := ScorePair(req, lowOverlap, DefaultScoreWeights)
	high := ScorePair(req, highOverlap, DefaultScoreWeights)
	if high <= low {
		t.Fatalf("greater lexical overlap must not lower the score: high=%f low=%f", high, low)
	}
}

func TestScorePairDisjointTopicsStayLow(t *testing.T) {
	req := RequestSignal{
		ID:             "r1",
		Subject:        "Budget spreadsheet",
		ExtractedTopic: "budget spreadsheet",
		Confidence:     0.9,
		ReceivedAt:     t0,
	}
	comp := CompletionSignal{
		ID:             "c1",
		Title:          "Onboarding Guide Done",
		ExtractedTopic: "Onboarding Guide",
		CompletedAt:    t0.Add(time.Hour),
	}

	if score := ScorePair(req, comp, DefaultScoreWeights); score >= 0.6 {
		t.Fatalf("disjoint topics must stay below the default acceptance threshold, got %f", score)
	}
}

func TestScorePairTotalOnEmptyInputs(t *testing.T) {
	// The scorer must be defined for every pair, including empty ones.
	score := ScorePair(RequestSignal{ReceivedAt: t0}, CompletionSignal{CompletedAt: t0}, DefaultScoreWeights)
	if score < 0 || score > 1 {
		t.Fatalf("score out of range for empty signals: %f", score)
	}
}

func TestOverlapCoefficient(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"contained", "market analysis", "market analysis report", 1},
		{"partial", "market analysis", "market budget", 0.5},
		{"empty side", "", "market", 0},
	}
	for _, tt := range tests {
		got := overlapCoefficient(tokenize(tt.a), tokenize(tt.b))
		if got != tt.want {
			t.Errorf("%s: overlapCoefficient(%q, %q) = %f, want %f", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := tokenize("Re: the Market Analysis is done, OK?")
	for _, banned := range []string{"re", "the", "is", "done"} {
		if tokens[banned] {
			t.Errorf("tokenize kept stopword %q", banned)
		}
	}
	for _, expected := range []string{"market", "analysis", "ok"} {
		if !tokens[expected] {
			t.Errorf("tokenize dropped %q", expected)
		}
	}
}
