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

// RetrievalStats summarizes one evidence-retrieval pass over policy
// chunks. AvgSimilarity and TopSimilarity are zero when nothing was
// retrieved.
type RetrievalStats struct {
	ChunksRetrieved int      `json:"chunks_retrieved"`
	ChunkIDs        []string `json:"chunk_ids,omitempty"`
	AvgSimilarity   float64  `json:"avg_similarity"`
	TopSimilarity   float64  `json:"top_similarity"`
}

// FeedbackStats summarizes the feedback retrieved for a run.
type FeedbackStats struct {
	// TotalFeedbackCount is the number of feedback records in storage,
	// not just the ones retrieved for this run.
	TotalFeedbackCount int `json:"total_feedback_count"`

	RetrievedCount    int     `json:"retrieved_count"`
	AvgSimilarity     float64 `json:"avg_similarity"`
	FrequencyClusters int     `json:"frequency_clusters"`
}

// ConfidenceAssessment is the scored confidence for a run, with the
// per-term factor breakdown preserved for auditability.
type ConfidenceAssessment struct {
	Level     ConfidenceLevel `json:"level"`
	Score     float64         `json:"score"`
	Factors   map[string]any  `json:"factors,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
}
