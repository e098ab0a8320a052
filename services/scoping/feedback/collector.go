// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

var (
	// ErrCorrectionRequired is returned when a down rating arrives
	// without the decision the reviewer considered right.
	ErrCorrectionRequired = errors.New("feedback: down rating requires a correction")

	// ErrMissingEmbedding is returned when the referenced decision's
	// run left no query embedding to index the feedback under.
	ErrMissingEmbedding = errors.New("feedback: decision has no query embedding")
)

// Submission is one reviewer judgement of a stored decision.
type Submission struct {
	DecisionID string
	Rating     datatypes.Rating

	// Reason is the reviewer's explanation. Optional.
	Reason string

	// Correction is the decision the reviewer considered right.
	// Required for down ratings.
	Correction datatypes.Decision
}

// Collector validates and persists feedback, indexing each record's
// query embedding so later runs retrieve it by similarity.
//
// # Thread Safety
//
// Collector is safe for concurrent use.
type Collector struct {
	index vectorstore.Index
	store storage.Store
	now   func() time.Time
}

// NewCollector creates a collector.
func NewCollector(index vectorstore.Index, store storage.Store) *Collector {
	return &Collector{index: index, store: store, now: time.Now}
}

// Submit validates and stores a judgement.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	sub - The judgement. The referenced decision must exist, and a
//	      down rating must carry a correction.
//
// Outputs:
//
//	datatypes.FeedbackRecord - The stored record.
//	error - ErrCorrectionRequired, storage.ErrDecisionNotFound, or a
//	        persistence failure.
func (c *Collector) Submit(ctx context.Context, sub Submission) (datatypes.FeedbackRecord, error) {
	if sub.Rating == datatypes.RatingDown && sub.Correction == "" {
		return datatypes.FeedbackRecord{}, ErrCorrectionRequired
	}
	if sub.Rating != datatypes.RatingUp && sub.Rating != datatypes.RatingDown {
		return datatypes.FeedbackRecord{}, fmt.Errorf("feedback: unknown rating %q", sub.Rating)
	}

	decision, err := c.store.GetDecision(ctx, sub.DecisionID)
	if err != nil {
		return datatypes.FeedbackRecord{}, err
	}

	// The run's query embedding, saved with the decision, is what the
	// feedback vector is indexed under.
	embedding, err := queryEmbeddingFor(decision)
	if err != nil {
		return datatypes.FeedbackRecord{}, err
	}

	rec := datatypes.FeedbackRecord{
		ID:              uuid.NewString(),
		DecisionID:      decision.ID,
		AssetURI:        decision.AssetURI,
		PolicyID:        decision.PolicyID,
		QueryEmbedding:  embedding,
		AgentDecision:   decision.Decision,
		AgentReasoning:  decision.Reasoning,
		Rating:          sub.Rating,
		HumanReason:     sub.Reason,
		HumanCorrection: sub.Correction,
		CreatedAt:       c.now().UTC(),
	}

	if err := c.store.AddFeedback(ctx, rec); err != nil {
		return datatypes.FeedbackRecord{}, fmt.Errorf("store feedback: %w", err)
	}

	err = c.index.Add(ctx, vectorstore.Document{
		ID:     rec.ID,
		Vector: embedding,
		Metadata: map[string]string{
			MetaType:     TypeFeedback,
			MetaPolicyID: rec.PolicyID,
			MetaAssetURI: rec.AssetURI,
			MetaRating:   string(rec.Rating),
			MetaDecision: string(rec.AgentDecision),
		},
	})
	if err != nil {
		// Roll back the record so storage and index stay consistent.
		if delErr := c.store.DeleteFeedback(ctx, rec.ID); delErr != nil {
			slog.Error("feedback rollback failed", "feedback_id", rec.ID, "error", delErr)
		}
		return datatypes.FeedbackRecord{}, fmt.Errorf("index feedback: %w", err)
	}

	slog.Info("feedback recorded",
		"feedback_id", rec.ID,
		"decision_id", rec.DecisionID,
		"rating", rec.Rating)
	return rec, nil
}

// Remove deletes a feedback record and its vector.
func (c *Collector) Remove(ctx context.Context, feedbackID string) error {
	if err := c.store.DeleteFeedback(ctx, feedbackID); err != nil {
		return err
	}
	if err := c.index.DeleteByID(ctx, feedbackID); err != nil {
		return fmt.Errorf("delete feedback vector: %w", err)
	}
	return nil
}

// Stats summarizes the collected feedback corpus.
type Stats struct {
	Total int `json:"total"`
	Up    int `json:"up"`
	Down  int `json:"down"`

	// Accuracy is the up ratio, 0 when no feedback exists.
	Accuracy float64 `json:"accuracy"`
}

// CorpusStats computes stats over all stored feedback.
func (c *Collector) CorpusStats(ctx context.Context) (Stats, error) {
	records, err := c.store.ListFeedback(ctx, storage.FeedbackFilter{}, 0)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(records)}
	for _, rec := range records {
		if rec.Rating == datatypes.RatingUp {
			stats.Up++
		} else {
			stats.Down++
		}
	}
	if stats.Total > 0 {
		stats.Accuracy = float64(stats.Up) / float64(stats.Total)
	}
	return stats, nil
}

func queryEmbeddingFor(decision datatypes.DecisionRecord) ([]float32, error) {
	if len(decision.QueryEmbedding) == 0 {
		return nil, fmt.Errorf("%w: decision %s", ErrMissingEmbedding, decision.ID)
	}
	return decision.QueryEmbedding, nil
}
