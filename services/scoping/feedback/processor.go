// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback collects reviewer judgements on past decisions and
// retrieves them for new runs, weighting recurring judgements higher
// than one-off ones.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

var tracer = otel.Tracer("evidentia.scoping.feedback")

// Metadata keys and values used on feedback vectors.
const (
	MetaType     = "type"
	MetaPolicyID = "policy_id"
	MetaAssetURI = "asset_uri"
	MetaRating   = "rating"
	MetaDecision = "decision"

	TypeFeedback = "feedback"
)

// clusterWeightStep is the per-occurrence increment of the frequency
// weight: a cluster of n identical judgements weighs 1+(n-1)*step.
const clusterWeightStep = 0.15

// Config tunes feedback retrieval.
type Config struct {
	// TopK caps how many ranked records are returned.
	TopK int

	// Threshold is the minimum similarity for a feedback vector to be
	// considered at all.
	Threshold float64

	// RecencyAware switches the scoring formula from multiplicative
	// (similarity * weight) to additive with a recency boost, which
	// favors newer judgements when similarity is comparable.
	RecencyAware bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TopK: 5, Threshold: 0.70}
}

// Ranked is a feedback record scored for one run.
type Ranked struct {
	Record datatypes.FeedbackRecord

	// Similarity is the raw cosine similarity of the record's stored
	// query embedding to the current query.
	Similarity float64

	// FrequencyWeight is 1 + (ClusterSize-1)*0.15: judgements repeated
	// across runs count for more.
	FrequencyWeight float64

	// ClusterSize is the number of retrieved records sharing this
	// record's (policy, decision) pair.
	ClusterSize int

	// FinalScore orders the output.
	FinalScore float64
}

// Processor retrieves and ranks feedback for a run.
//
// # Thread Safety
//
// Processor is safe for concurrent use.
type Processor struct {
	index vectorstore.Index
	store storage.Store
	cfg   Config
	now   func() time.Time
}

// NewProcessor creates a processor. Zero config fields fall back to
// DefaultConfig values.
func NewProcessor(index vectorstore.Index, store storage.Store, cfg Config) *Processor {
	defaults := DefaultConfig()
	if cfg.TopK < 1 {
		cfg.TopK = defaults.TopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	return &Processor{index: index, store: store, cfg: cfg, now: time.Now}
}

// Retrieve returns the feedback most relevant to the query, ranked by
// similarity amplified with cluster frequency.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	queryVector - The run's query embedding.
//	policyID - Optional; restricts retrieval to one policy's feedback.
//
// Outputs:
//
//	[]Ranked - Up to TopK records, best first.
//	datatypes.FeedbackStats - Retrieval summary for confidence scoring.
//	error - Non-nil on index or store failure.
func (p *Processor) Retrieve(ctx context.Context, queryVector []float32, policyID string) ([]Ranked, datatypes.FeedbackStats, error) {
	ctx, span := tracer.Start(ctx, "RetrieveFeedback")
	defer span.End()

	total, err := p.store.CountFeedback(ctx)
	if err != nil {
		return nil, datatypes.FeedbackStats{}, fmt.Errorf("count feedback: %w", err)
	}
	stats := datatypes.FeedbackStats{TotalFeedbackCount: total}
	if total == 0 {
		return nil, stats, nil
	}

	filter := map[string]string{MetaType: TypeFeedback}
	if policyID != "" {
		filter[MetaPolicyID] = policyID
	}

	// Over-fetch so clustering sees the neighborhood, not just the
	// final TopK.
	results, err := p.index.Search(ctx, vectorstore.Query{
		Vector:         queryVector,
		TopK:           p.cfg.TopK * 2,
		Filter:         filter,
		ScoreThreshold: p.cfg.Threshold,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("search feedback: %w", err)
	}
	if len(results) == 0 {
		return nil, stats, nil
	}

	ranked := make([]Ranked, 0, len(results))
	clusters := make(map[string]int)
	for _, res := range results {
		rec, err := p.store.GetFeedback(ctx, res.ID)
		if err != nil {
			slog.Warn("feedback vector references missing record",
				"feedback_id", res.ID, "error", err)
			continue
		}
		ranked = append(ranked, Ranked{Record: rec, Similarity: res.Score})
		clusters[clusterKey(rec)]++
	}

	for i := range ranked {
		size := clusters[clusterKey(ranked[i].Record)]
		weight := 1.0 + float64(size-1)*clusterWeightStep
		ranked[i].ClusterSize = size
		ranked[i].FrequencyWeight = weight
		if p.cfg.RecencyAware {
			ranked[i].FinalScore = ranked[i].Similarity + (weight - 1) + p.recencyBoost(ranked[i].Record.CreatedAt)
		} else {
			ranked[i].FinalScore = ranked[i].Similarity * weight
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Record.ID < ranked[j].Record.ID
	})
	if len(ranked) > p.cfg.TopK {
		ranked = ranked[:p.cfg.TopK]
	}

	// Cluster count reports the returned set, not the over-fetched
	// neighborhood.
	returned := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		returned[clusterKey(r.Record)] = struct{}{}
	}

	stats.RetrievedCount = len(ranked)
	stats.FrequencyClusters = len(returned)
	if len(ranked) > 0 {
		var sum float64
		for _, r := range ranked {
			sum += r.Similarity
		}
		stats.AvgSimilarity = sum / float64(len(ranked))
	}
	return ranked, stats, nil
}

// recencyBoost decays linearly from 0.1 for brand-new feedback to 0 at
// one year old.
func (p *Processor) recencyBoost(createdAt time.Time) float64 {
	ageDays := p.now().Sub(createdAt).Hours() / 24
	boost := 0.1 * (1 - ageDays/365)
	if boost < 0 {
		return 0
	}
	return boost
}

func clusterKey(rec datatypes.FeedbackRecord) string {
	return rec.PolicyID + "|" + string(rec.AgentDecision)
}
