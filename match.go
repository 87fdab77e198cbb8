package main

import (
	"sort"
	"time"
)

// ScoreFunc computes the affinity for one request/completion pair.
type ScoreFunc func(RequestSignal, CompletionSignal) float64

// MatchSignals pairs open requests with completions. It scores every
// pair, drops candidates below the acceptance threshold (a score
// exactly at the threshold is kept), orders the survivors by a total
// order (score desc, request receipt asc, request ID asc, completion ID
// asc) and greedily accepts each candidate whose request and completion
// are both still unclaimed, in a single pass over the sorted candidates.
//
// Matching never fails; it may return an empty set.
func MatchSignals(requests []RequestSignal, completions []CompletionSignal, threshold float64, score ScoreFunc, now time.Time) []MatchedPair {
	reqByID := make(map[string]RequestSignal, len(requests))

	var candidates []MatchCandidate
	for _, req := range requests {
		if req.Status != StatusOpen {
			continue
		}
		reqByID[req.ID] = req
		for _, comp := range completions {
			s := score(req, comp)
			if s < threshold {
				continue
			}
			candidates = append(candidates, MatchCandidate{
				RequestID:    req.ID,
				CompletionID: comp.ID,
				Score:        s,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := reqByID[a.RequestID], reqByID[b.RequestID]
		if !ra.ReceivedAt.Equal(rb.ReceivedAt) {
			return ra.ReceivedAt.Before(rb.ReceivedAt)
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		return a.CompletionID < b.CompletionID
	})

	claimedReq := make(map[string]bool)
	claimedComp := make(map[string]bool)
	var pairs []MatchedPair
	for _, cand := range candidates {
		if claimedReq[cand.RequestID] || claimedComp[cand.CompletionID] {
			continue
		}
		claimedReq[cand.RequestID] = true
		claimedComp[cand.CompletionID] = true
		pairs = append(pairs, MatchedPair{
			RequestID:    cand.RequestID,
			CompletionID: cand.CompletionID,
			Score:        cand.Score,
			DecidedAt:    now,
		})
	}
	return pairs
}
