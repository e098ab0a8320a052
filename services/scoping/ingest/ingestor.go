// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/embeddings"
	"github.com/evidentia-ai/evidentia/services/scoping/retrieval"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

// ErrEmptyPolicy is returned when a policy has no text worth
// chunking.
var ErrEmptyPolicy = errors.New("ingest: policy text yields no chunks")

// Config tunes chunking and embedding throughput.
type Config struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkLen  int `yaml:"min_chunk_len"`

	// EmbedBatchSize is how many chunk texts go into one embedding
	// request (default 16). Batches run concurrently.
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// Ingestor loads policies end to end: chunk, embed, persist, index.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent ingestion of the SAME policy id
// races on the replace step and should be serialized by the caller.
type Ingestor struct {
	store     storage.Store
	index     vectorstore.Index
	embedder  embeddings.Provider
	retriever *retrieval.Retriever
	chunker   Chunker
	batchSize int
}

// NewIngestor wires an ingestor. Zero config fields take defaults.
func NewIngestor(store storage.Store, index vectorstore.Index, embedder embeddings.Provider, retriever *retrieval.Retriever, cfg Config) *Ingestor {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	return &Ingestor{
		store:     store,
		index:     index,
		embedder:  embedder,
		retriever: retriever,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.MinChunkLen),
		batchSize: cfg.EmbedBatchSize,
	}
}

// Result summarizes one ingestion.
type Result struct {
	PolicyID       string `json:"policy_id"`
	Chunks         int    `json:"chunks"`
	ReplacedChunks int    `json:"replaced_chunks,omitempty"`
}

// IngestPolicy stores the policy, its chunks, and their vectors.
// Re-ingesting an existing policy id replaces its chunks and vectors.
//
// Inputs:
//
//	p - Policy with at least Name and FullText. A missing ID gets a
//	    fresh UUID; a missing Description is derived from the text.
func (i *Ingestor) IngestPolicy(ctx context.Context, p datatypes.Policy) (Result, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Description == "" {
		p.Description = deriveDescription(p.FullText)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	texts := i.chunker.Split(p.FullText)
	if len(texts) == 0 {
		return Result{}, fmt.Errorf("%w: policy %q", ErrEmptyPolicy, p.Name)
	}

	res := Result{PolicyID: p.ID, Chunks: len(texts)}

	// Replace semantics: clear whatever a previous ingestion left
	// behind before writing the new generation.
	if _, err := i.store.GetPolicy(ctx, p.ID); err == nil {
		removed, err := i.clearPolicy(ctx, p.ID)
		if err != nil {
			return Result{}, err
		}
		res.ReplacedChunks = removed
	} else if !errors.Is(err, storage.ErrPolicyNotFound) {
		return Result{}, fmt.Errorf("check existing policy: %w", err)
	}

	if err := i.store.AddPolicy(ctx, p); err != nil {
		return Result{}, fmt.Errorf("store policy: %w", err)
	}

	vectors, err := i.embedBatched(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	chunks := make([]datatypes.PolicyChunk, len(texts))
	docs := make([]vectorstore.Document, len(texts))
	for idx, text := range texts {
		chunkID := fmt.Sprintf("%s_chunk_%d", p.ID, idx)
		chunks[idx] = datatypes.PolicyChunk{
			ID:        chunkID,
			PolicyID:  p.ID,
			Text:      text,
			Embedding: vectors[idx],
			Index:     idx,
		}
		docs[idx] = vectorstore.Document{
			ID:     chunkID,
			Vector: vectors[idx],
			Metadata: map[string]string{
				retrieval.MetaType:     retrieval.TypeChunk,
				retrieval.MetaPolicyID: p.ID,
				retrieval.MetaChunkID:  chunkID,
			},
		}
	}

	if err := i.store.AddPolicyChunks(ctx, p.ID, chunks); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}
	if err := i.index.Add(ctx, docs...); err != nil {
		return Result{}, fmt.Errorf("index chunks: %w", err)
	}

	summaryVec, err := i.embedder.Embed(ctx, retrieval.SummaryText(p))
	if err != nil {
		return Result{}, fmt.Errorf("embed summary: %w", err)
	}
	if err := i.retriever.IndexPolicySummary(ctx, p, summaryVec); err != nil {
		return Result{}, fmt.Errorf("index summary: %w", err)
	}

	slog.Info("policy ingested",
		"policy_id", p.ID,
		"name", p.Name,
		"chunks", len(chunks),
		"replaced", res.ReplacedChunks)
	return res, nil
}

// RemovePolicy deletes a policy, its chunks, and its vectors.
func (i *Ingestor) RemovePolicy(ctx context.Context, policyID string) error {
	if _, err := i.clearPolicy(ctx, policyID); err != nil {
		return err
	}
	return i.store.DeletePolicy(ctx, policyID)
}

// clearPolicy removes the chunk rows and vector documents of one
// policy generation.
func (i *Ingestor) clearPolicy(ctx context.Context, policyID string) (int, error) {
	removed, err := i.store.DeletePolicyChunks(ctx, policyID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	_, err = i.index.DeleteByFilter(ctx, map[string]string{
		retrieval.MetaType:     retrieval.TypeChunk,
		retrieval.MetaPolicyID: policyID,
	})
	if err != nil {
		return 0, fmt.Errorf("delete chunk vectors: %w", err)
	}
	if err := i.retriever.DeletePolicySummary(ctx, policyID); err != nil {
		return 0, fmt.Errorf("delete summary vector: %w", err)
	}
	return removed, nil
}

// embedBatched embeds chunk texts in concurrent fixed-size batches,
// preserving input order.
func (i *Ingestor) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += i.batchSize {
		start := start
		end := start + i.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := i.embedder.EmbedBatch(gCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// deriveDescription falls back to the first substantial line of the
// policy text when no description is supplied.
func deriveDescription(text string) string {
	const maxLen = 200
	var fallback string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if fallback == "" {
			fallback = line
		}
		if len(line) >= 20 {
			if len(line) > maxLen {
				return line[:maxLen]
			}
			return line
		}
	}
	if len(fallback) > maxLen {
		return fallback[:maxLen]
	}
	return fallback
}
