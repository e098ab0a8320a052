// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval finds the policy evidence for a scoping run. It
// operates in two modes: direct (the caller names a policy) and
// discovery (candidate policies are found by similarity over summary
// vectors, then their chunks are retrieved and merged).
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

var tracer = otel.Tracer("evidentia.scoping.retrieval")

// ErrNoPolicies is returned by discovery when no summary vector clears
// the similarity floor.
var ErrNoPolicies = errors.New("retrieval: no matching policies found")

// Metadata keys and values used on vector documents.
const (
	MetaType     = "type"
	MetaPolicyID = "policy_id"
	MetaChunkID  = "chunk_id"

	TypeChunk         = "chunk"
	TypePolicySummary = "policy_summary"
)

// SummaryDocID returns the vector document ID for a policy's summary.
func SummaryDocID(policyID string) string {
	return "policy_summary_" + policyID
}

// Config tunes retrieval breadth.
type Config struct {
	// SummaryTopK caps how many candidate policies discovery returns.
	SummaryTopK int

	// SummaryThreshold is the minimum similarity for a summary vector
	// to qualify as a candidate.
	SummaryThreshold float64

	// ChunksPerPolicy caps chunk matches retrieved per policy.
	ChunksPerPolicy int

	// MaxChunks caps the merged chunk list across all policies.
	MaxChunks int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SummaryTopK:      3,
		SummaryThreshold: 0.6,
		ChunksPerPolicy:  3,
		MaxChunks:        10,
	}
}

// ChunkMatch pairs a policy chunk with its similarity to the query.
type ChunkMatch struct {
	Chunk datatypes.PolicyChunk
	Score float64
}

// Retriever retrieves policy evidence from the vector index, resolving
// full records through the store.
//
// # Thread Safety
//
// Retriever is safe for concurrent use.
type Retriever struct {
	index vectorstore.Index
	store storage.Store
	cfg   Config
}

// NewRetriever creates a retriever. Zero config fields fall back to
// DefaultConfig values.
func NewRetriever(index vectorstore.Index, store storage.Store, cfg Config) *Retriever {
	defaults := DefaultConfig()
	if cfg.SummaryTopK < 1 {
		cfg.SummaryTopK = defaults.SummaryTopK
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = defaults.SummaryThreshold
	}
	if cfg.ChunksPerPolicy < 1 {
		cfg.ChunksPerPolicy = defaults.ChunksPerPolicy
	}
	if cfg.MaxChunks < 1 {
		cfg.MaxChunks = defaults.MaxChunks
	}
	return &Retriever{index: index, store: store, cfg: cfg}
}

// ResolvePolicy resolves a policy reference, trying ID first and then
// exact name.
func (r *Retriever) ResolvePolicy(ctx context.Context, idOrName string) (datatypes.Policy, error) {
	p, err := r.store.GetPolicy(ctx, idOrName)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrPolicyNotFound) {
		return datatypes.Policy{}, err
	}
	return r.store.GetPolicyByName(ctx, idOrName)
}

// DiscoverPolicies finds candidate policies by similarity over summary
// vectors.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	queryVector - The run's query embedding.
//
// Outputs:
//
//	[]datatypes.Policy - Up to SummaryTopK policies, best match first.
//	error - ErrNoPolicies when nothing clears SummaryThreshold.
func (r *Retriever) DiscoverPolicies(ctx context.Context, queryVector []float32) ([]datatypes.Policy, error) {
	ctx, span := tracer.Start(ctx, "DiscoverPolicies")
	defer span.End()

	// Over-fetch so threshold filtering still leaves enough candidates.
	results, err := r.index.Search(ctx, vectorstore.Query{
		Vector:         queryVector,
		TopK:           r.cfg.SummaryTopK * 2,
		Filter:         map[string]string{MetaType: TypePolicySummary},
		ScoreThreshold: r.cfg.SummaryThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("search policy summaries: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoPolicies
	}
	if len(results) > r.cfg.SummaryTopK {
		results = results[:r.cfg.SummaryTopK]
	}

	policies := make([]datatypes.Policy, 0, len(results))
	for _, res := range results {
		policyID := res.Metadata[MetaPolicyID]
		p, err := r.store.GetPolicy(ctx, policyID)
		if err != nil {
			// A summary vector without its policy record means a
			// partially deleted policy; skip it rather than fail the run.
			slog.Warn("summary vector references missing policy",
				"policy_id", policyID, "doc_id", res.ID, "error", err)
			continue
		}
		policies = append(policies, p)
	}
	if len(policies) == 0 {
		return nil, ErrNoPolicies
	}

	slog.Debug("discovered candidate policies", "count", len(policies))
	return policies, nil
}

// RetrieveChunks retrieves the best chunks for each policy and merges
// them into one globally ranked list capped at MaxChunks.
func (r *Retriever) RetrieveChunks(ctx context.Context, queryVector []float32, policies []datatypes.Policy) ([]ChunkMatch, datatypes.RetrievalStats, error) {
	ctx, span := tracer.Start(ctx, "RetrieveChunks")
	defer span.End()

	var matches []ChunkMatch
	for _, p := range policies {
		results, err := r.index.Search(ctx, vectorstore.Query{
			Vector: queryVector,
			TopK:   r.cfg.ChunksPerPolicy,
			Filter: map[string]string{MetaType: TypeChunk, MetaPolicyID: p.ID},
		})
		if err != nil {
			return nil, datatypes.RetrievalStats{}, fmt.Errorf("search chunks for policy %s: %w", p.ID, err)
		}
		for _, res := range results {
			chunkID := res.Metadata[MetaChunkID]
			if chunkID == "" {
				chunkID = res.ID
			}
			chunk, err := r.store.GetChunk(ctx, p.ID, chunkID)
			if err != nil {
				slog.Warn("chunk vector references missing chunk",
					"policy_id", p.ID, "chunk_id", chunkID, "error", err)
				continue
			}
			matches = append(matches, ChunkMatch{Chunk: chunk, Score: res.Score})
		}
	}

	// Merge across policies: score descending, stable so the per-policy
	// retrieval order decides ties.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > r.cfg.MaxChunks {
		matches = matches[:r.cfg.MaxChunks]
	}

	stats := datatypes.RetrievalStats{ChunksRetrieved: len(matches)}
	if len(matches) > 0 {
		var sum float64
		for _, m := range matches {
			stats.ChunkIDs = append(stats.ChunkIDs, m.Chunk.ID)
			sum += m.Score
		}
		stats.AvgSimilarity = sum / float64(len(matches))
		stats.TopSimilarity = matches[0].Score
	}
	return matches, stats, nil
}

// IndexPolicySummary writes (or rewrites) the summary vector for a
// policy. The summary text is the name and description, which is what
// discovery queries match against.
func (r *Retriever) IndexPolicySummary(ctx context.Context, p datatypes.Policy, vector []float32) error {
	return r.index.Add(ctx, vectorstore.Document{
		ID:     SummaryDocID(p.ID),
		Vector: vector,
		Metadata: map[string]string{
			MetaType:     TypePolicySummary,
			MetaPolicyID: p.ID,
		},
	})
}

// DeletePolicySummary removes a policy's summary vector.
func (r *Retriever) DeletePolicySummary(ctx context.Context, policyID string) error {
	return r.index.DeleteByID(ctx, SummaryDocID(policyID))
}

// SummaryText builds the text embedded for discovery.
func SummaryText(p datatypes.Policy) string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + ". " + p.Description
}
