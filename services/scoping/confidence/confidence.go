// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confidence scores how much evidence backs a scoping run.
// The score is a pure function of retrieval and feedback statistics;
// it never calls a model and never fails.
package confidence

import (
	"fmt"
	"math"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

// Term caps. The three terms sum to at most 1.0.
const (
	maxRetrievalTerm = 0.4
	maxFeedbackTerm  = 0.4
	maxAgreementTerm = 0.2
)

// Feedback volume bonuses, by retrieved count.
const (
	bonusThreePlus = 0.15
	bonusTwo       = 0.10
	bonusOne       = 0.05
)

// Thresholds bucket scores into levels.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultThresholds returns the production buckets.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Medium: 0.70, Low: 0.50}
}

// Inputs is everything the scorer looks at.
type Inputs struct {
	Retrieval datatypes.RetrievalStats
	Feedback  datatypes.FeedbackStats

	// FeedbackDecisions are the agent decisions recorded on the
	// retrieved feedback records.
	FeedbackDecisions []datatypes.Decision

	// FeedbackRatings are the raw ratings of the retrieved records.
	FeedbackRatings []datatypes.Rating
}

// Score computes the confidence assessment for a run.
//
// The score is the sum of three capped terms:
//
//   - retrieval: half the average chunk similarity, capped at 0.4.
//   - feedback: a fifth of the average feedback similarity plus a
//     volume bonus, capped at 0.4.
//   - agreement: 0.2 when all retrieved feedback points at one
//     decision, 0.1 when it splits between two, 0 when all three
//     outcomes appear; halved when more than half the retrieved
//     feedback is down-rated.
//
// Score never panics and tolerates zero-value inputs: a run with no
// evidence scores 0 and lands in the insufficient bucket.
func Score(in Inputs, th Thresholds) datatypes.ConfidenceAssessment {
	retrieval := math.Min(maxRetrievalTerm, clampNonNegative(in.Retrieval.AvgSimilarity)*0.5)

	feedbackTerm := 0.0
	if in.Feedback.RetrievedCount > 0 {
		feedbackTerm = clampNonNegative(in.Feedback.AvgSimilarity) * 0.2
		switch {
		case in.Feedback.RetrievedCount >= 3:
			feedbackTerm += bonusThreePlus
		case in.Feedback.RetrievedCount == 2:
			feedbackTerm += bonusTwo
		default:
			feedbackTerm += bonusOne
		}
		feedbackTerm = math.Min(maxFeedbackTerm, feedbackTerm)
	}

	agreement, alignment := agreementTerm(in.FeedbackDecisions)
	if downRatio(in.FeedbackRatings) > 0.5 {
		agreement /= 2
	}

	score := retrieval + feedbackTerm + agreement

	level := datatypes.ConfidenceInsufficient
	switch {
	case score >= th.High:
		level = datatypes.ConfidenceHigh
	case score >= th.Medium:
		level = datatypes.ConfidenceMedium
	case score >= th.Low:
		level = datatypes.ConfidenceLow
	}

	return datatypes.ConfidenceAssessment{
		Level: level,
		Score: score,
		Factors: map[string]any{
			"retrieval_term":       retrieval,
			"feedback_term":        feedbackTerm,
			"agreement_term":       agreement,
			"chunks_retrieved":     in.Retrieval.ChunksRetrieved,
			"avg_chunk_similarity": in.Retrieval.AvgSimilarity,
			"feedback_retrieved":   in.Feedback.RetrievedCount,
			"feedback_alignment":   alignment,
		},
		Reasoning: reasoning(in, alignment),
	}
}

// agreementTerm classifies how the retrieved feedback's corrected
// decisions relate to each other.
func agreementTerm(decisions []datatypes.Decision) (float64, string) {
	if len(decisions) == 0 {
		return 0, "none"
	}

	distinct := make(map[datatypes.Decision]struct{})
	for _, d := range decisions {
		distinct[d] = struct{}{}
	}
	switch len(distinct) {
	case 1:
		return maxAgreementTerm, "aligned"
	case 2:
		return maxAgreementTerm / 2, "mixed"
	default:
		return 0, "conflicting"
	}
}

func downRatio(ratings []datatypes.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	down := 0
	for _, r := range ratings {
		if r == datatypes.RatingDown {
			down++
		}
	}
	return float64(down) / float64(len(ratings))
}

func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func reasoning(in Inputs, alignment string) string {
	chunkPart := "no policy chunks retrieved"
	if in.Retrieval.ChunksRetrieved > 0 {
		chunkPart = fmt.Sprintf("%d policy chunks retrieved (avg similarity %.2f)",
			in.Retrieval.ChunksRetrieved, in.Retrieval.AvgSimilarity)
	}
	fbPart := "no prior feedback"
	if in.Feedback.RetrievedCount > 0 {
		fbPart = fmt.Sprintf("%d feedback records (avg similarity %.2f, %s)",
			in.Feedback.RetrievedCount, in.Feedback.AvgSimilarity, alignment)
	}
	return chunkPart + "; " + fbPart
}
