// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

func newTestRetriever(t *testing.T) (*Retriever, vectorstore.Index, storage.Store) {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	store := storage.NewBadgerStore(db)
	t.Cleanup(func() { _ = store.Close() })
	index := vectorstore.NewMemoryIndex()
	return NewRetriever(index, store, Config{}), index, store
}

// vecAtAngle returns a unit vector whose cosine similarity to [1,0]
// equals cos(deg).
func vecAtAngle(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func addPolicy(t *testing.T, store storage.Store, index vectorstore.Index, r *Retriever, id, name string, summaryVec []float32, chunkVecs ...[]float32) {
	t.Helper()
	ctx := context.Background()
	p := datatypes.Policy{ID: id, Name: name, Description: "test policy " + name}
	if err := store.AddPolicy(ctx, p); err != nil {
		t.Fatalf("AddPolicy(%s) error: %v", id, err)
	}
	if summaryVec != nil {
		if err := r.IndexPolicySummary(ctx, p, summaryVec); err != nil {
			t.Fatalf("IndexPolicySummary(%s) error: %v", id, err)
		}
	}

	chunks := make([]datatypes.PolicyChunk, len(chunkVecs))
	for i, vec := range chunkVecs {
		chunkID := fmt.Sprintf("%s_chunk_%d", id, i)
		chunks[i] = datatypes.PolicyChunk{ID: chunkID, PolicyID: id, Text: "chunk " + chunkID, Index: i}
		err := index.Add(ctx, vectorstore.Document{
			ID:     chunkID,
			Vector: vec,
			Metadata: map[string]string{
				MetaType:     TypeChunk,
				MetaPolicyID: id,
				MetaChunkID:  chunkID,
			},
		})
		if err != nil {
			t.Fatalf("index chunk error: %v", err)
		}
	}
	if err := store.AddPolicyChunks(ctx, id, chunks); err != nil {
		t.Fatalf("AddPolicyChunks(%s) error: %v", id, err)
	}
}

func TestResolvePolicy(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)
	addPolicy(t, store, index, r, "p1", "data-retention", nil)

	byID, err := r.ResolvePolicy(ctx, "p1")
	if err != nil {
		t.Fatalf("ResolvePolicy(id) error: %v", err)
	}
	if byID.Name != "data-retention" {
		t.Errorf("ResolvePolicy(id).Name = %q", byID.Name)
	}

	byName, err := r.ResolvePolicy(ctx, "data-retention")
	if err != nil {
		t.Fatalf("ResolvePolicy(name) error: %v", err)
	}
	if byName.ID != "p1" {
		t.Errorf("ResolvePolicy(name).ID = %q", byName.ID)
	}

	if _, err := r.ResolvePolicy(ctx, "unknown"); !errors.Is(err, storage.ErrPolicyNotFound) {
		t.Errorf("ResolvePolicy(unknown) error = %v, want ErrPolicyNotFound", err)
	}
}

func TestDiscoverPolicies(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)

	// Summaries at increasing angles from the query: cos(10)=0.98,
	// cos(25)=0.91, cos(40)=0.77, cos(55)=0.57 (below 0.6 floor).
	addPolicy(t, store, index, r, "p1", "privacy", vecAtAngle(10))
	addPolicy(t, store, index, r, "p2", "security", vecAtAngle(25))
	addPolicy(t, store, index, r, "p3", "retention", vecAtAngle(40))
	addPolicy(t, store, index, r, "p4", "unrelated", vecAtAngle(55))

	policies, err := r.DiscoverPolicies(ctx, []float32{1, 0})
	if err != nil {
		t.Fatalf("DiscoverPolicies() error: %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("DiscoverPolicies() returned %d policies, want 3", len(policies))
	}
	wantOrder := []string{"p1", "p2", "p3"}
	for i, want := range wantOrder {
		if policies[i].ID != want {
			t.Errorf("policies[%d].ID = %s, want %s", i, policies[i].ID, want)
		}
	}
}

func TestDiscoverPoliciesNoneQualify(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)
	// cos(80) ~ 0.17, well under the 0.6 floor.
	addPolicy(t, store, index, r, "p1", "unrelated", vecAtAngle(80))

	if _, err := r.DiscoverPolicies(ctx, []float32{1, 0}); !errors.Is(err, ErrNoPolicies) {
		t.Errorf("DiscoverPolicies() error = %v, want ErrNoPolicies", err)
	}
}

func TestDiscoverPoliciesCapRespectsRanking(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)

	// Five qualifying policies; only the best three survive the cap.
	for i, deg := range []float64{5, 10, 15, 20, 25} {
		addPolicy(t, store, index, r, fmt.Sprintf("p%d", i+1), fmt.Sprintf("policy-%d", i+1), vecAtAngle(deg))
	}

	policies, err := r.DiscoverPolicies(ctx, []float32{1, 0})
	if err != nil {
		t.Fatalf("DiscoverPolicies() error: %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("DiscoverPolicies() returned %d, want 3", len(policies))
	}
	if policies[0].ID != "p1" || policies[2].ID != "p3" {
		t.Errorf("cap kept wrong candidates: %v", policies)
	}
}

func TestRetrieveChunksMergesAndCaps(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)

	// p1's chunks are closer to the query than p2's, so the merged
	// ranking interleaves by score, not by policy.
	addPolicy(t, store, index, r, "p1", "privacy", vecAtAngle(10),
		vecAtAngle(5), vecAtAngle(30), vecAtAngle(60), vecAtAngle(70))
	addPolicy(t, store, index, r, "p2", "security", vecAtAngle(20),
		vecAtAngle(15), vecAtAngle(45))

	p1, _ := store.GetPolicy(ctx, "p1")
	p2, _ := store.GetPolicy(ctx, "p2")

	matches, stats, err := r.RetrieveChunks(ctx, []float32{1, 0}, []datatypes.Policy{p1, p2})
	if err != nil {
		t.Fatalf("RetrieveChunks() error: %v", err)
	}

	// Per-policy cap is 3, so p1 contributes its best 3 of 4 chunks.
	if len(matches) != 5 {
		t.Fatalf("RetrieveChunks() returned %d matches, want 5", len(matches))
	}
	wantOrder := []string{"p1_chunk_0", "p2_chunk_0", "p1_chunk_1", "p2_chunk_1", "p1_chunk_2"}
	for i, want := range wantOrder {
		if matches[i].Chunk.ID != want {
			t.Errorf("matches[%d] = %s, want %s", i, matches[i].Chunk.ID, want)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("merged matches not sorted at %d", i)
		}
	}

	if stats.ChunksRetrieved != 5 {
		t.Errorf("stats.ChunksRetrieved = %d, want 5", stats.ChunksRetrieved)
	}
	if stats.TopSimilarity != matches[0].Score {
		t.Errorf("stats.TopSimilarity = %v, want %v", stats.TopSimilarity, matches[0].Score)
	}
	if stats.AvgSimilarity <= 0 || stats.AvgSimilarity > stats.TopSimilarity {
		t.Errorf("stats.AvgSimilarity = %v out of range", stats.AvgSimilarity)
	}
}

func TestRetrieveChunksGlobalCap(t *testing.T) {
	ctx := context.Background()
	r, index, store := newTestRetriever(t)

	// Four policies with three chunks each is twelve candidates; the
	// merged list must stop at ten.
	var policies []datatypes.Policy
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("p%d", i+1)
		addPolicy(t, store, index, r, id, fmt.Sprintf("policy-%d", i+1), vecAtAngle(10),
			vecAtAngle(5+float64(i)), vecAtAngle(20+float64(i)), vecAtAngle(35+float64(i)))
		p, _ := store.GetPolicy(ctx, id)
		policies = append(policies, p)
	}

	matches, stats, err := r.RetrieveChunks(ctx, []float32{1, 0}, policies)
	if err != nil {
		t.Fatalf("RetrieveChunks() error: %v", err)
	}
	if len(matches) != 10 {
		t.Errorf("RetrieveChunks() returned %d matches, want 10", len(matches))
	}
	if stats.ChunksRetrieved != 10 {
		t.Errorf("stats.ChunksRetrieved = %d, want 10", stats.ChunksRetrieved)
	}
}

func TestRetrieveChunksEmptyPolicies(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRetriever(t)

	matches, stats, err := r.RetrieveChunks(ctx, []float32{1, 0}, nil)
	if err != nil {
		t.Fatalf("RetrieveChunks() error: %v", err)
	}
	if len(matches) != 0 || stats.ChunksRetrieved != 0 {
		t.Errorf("RetrieveChunks(no policies) = %d matches, want 0", len(matches))
	}
	if stats.AvgSimilarity != 0 || stats.TopSimilarity != 0 {
		t.Errorf("empty retrieval stats should be zero: %+v", stats)
	}
}
