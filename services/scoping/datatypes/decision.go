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

// Decision is the scoping outcome for an asset against a policy.
type Decision string

const (
	DecisionInScope          Decision = "in-scope"
	DecisionOutOfScope       Decision = "out-of-scope"
	DecisionInsufficientData Decision = "insufficient-data"
)

// ParseDecision validates a decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionInScope, DecisionOutOfScope, DecisionInsufficientData:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// ConfidenceLevel buckets a numeric confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh         ConfidenceLevel = "high"
	ConfidenceMedium       ConfidenceLevel = "medium"
	ConfidenceLow          ConfidenceLevel = "low"
	ConfidenceInsufficient ConfidenceLevel = "insufficient"
)

// Evidence is a single policy passage cited in a verdict.
type Evidence struct {
	PolicyID   string  `json:"policy_id"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// CommitmentReference names a policy the verdict rests on.
type CommitmentReference struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
}

// SimilarDecision is a prior decision retrieved as precedent.
type SimilarDecision struct {
	DecisionID string   `json:"decision_id"`
	AssetURI   string   `json:"asset_uri"`
	Decision   Decision `json:"decision"`
	Similarity float64  `json:"similarity"`
}

// Verdict is the structured output of the generative-decision provider,
// enriched with the evidence the pipeline assembled.
type Verdict struct {
	Decision    Decision              `json:"decision"`
	Reasoning   string                `json:"reasoning"`
	Commitments []CommitmentReference `json:"commitments,omitempty"`
	Evidence    []Evidence            `json:"evidence,omitempty"`

	// MissingInformation and ClarifyingQuestions are only populated
	// for insufficient-data verdicts.
	MissingInformation  []string `json:"missing_information,omitempty"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
}

// DecisionRecord is a persisted scoping decision.
type DecisionRecord struct {
	ID        string   `json:"id"`
	RunID     string   `json:"run_id"`
	AssetURI  string   `json:"asset_uri"`
	PolicyID  string   `json:"policy_id,omitempty"`
	Decision  Decision `json:"decision"`
	Reasoning string   `json:"reasoning"`

	// QueryEmbedding is the run's query vector, kept so feedback on
	// this decision can be indexed for similarity retrieval.
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`

	Confidence ConfidenceAssessment  `json:"confidence"`
	Evidence   []Evidence            `json:"evidence,omitempty"`
	Similar    []SimilarDecision     `json:"similar_decisions,omitempty"`
	Referenced []CommitmentReference `json:"referenced_commitments,omitempty"`
	Errors     []string              `json:"errors,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}
