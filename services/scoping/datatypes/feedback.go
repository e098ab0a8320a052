// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"time"
)

// Rating is a human reviewer's judgement of a decision.
type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

// ParseRating validates a rating string.
func ParseRating(s string) (Rating, error) {
	switch Rating(s) {
	case RatingUp, RatingDown:
		return Rating(s), nil
	default:
		return "", fmt.Errorf("unknown rating %q", s)
	}
}

// FeedbackRecord captures a reviewer's judgement of a past decision
// together with the query embedding active when the decision was made,
// so future runs can retrieve it by similarity.
type FeedbackRecord struct {
	ID              string    `json:"id"`
	DecisionID      string    `json:"decision_id"`
	AssetURI        string    `json:"asset_uri"`
	PolicyID        string    `json:"policy_id,omitempty"`
	QueryEmbedding  []float32 `json:"query_embedding,omitempty"`
	AgentDecision   Decision  `json:"agent_decision"`
	AgentReasoning  string    `json:"agent_reasoning,omitempty"`
	Rating          Rating    `json:"rating"`
	HumanReason     string    `json:"human_reason,omitempty"`
	HumanCorrection Decision  `json:"human_correction,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CorrectedDecision is the decision a reviewer considered right: the
// explicit correction for a down rating, the agent's own decision for
// an up rating.
func (f FeedbackRecord) CorrectedDecision() Decision {
	if f.Rating == RatingDown && f.HumanCorrection != "" {
		return f.HumanCorrection
	}
	return f.AgentDecision
}
