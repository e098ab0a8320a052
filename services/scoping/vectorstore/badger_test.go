// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"errors"
	"testing"
)

func openTestBadger(t *testing.T) *BadgerIndex {
	t.Helper()
	idx, err := OpenBadgerIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerIndex() error: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBadgerIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := openTestBadger(t)

	doc := Document{
		ID:       "chunk_p1_0",
		Vector:   []float32{0.5, 0.5, 0},
		Metadata: map[string]string{"type": "chunk", "policy_id": "p1"},
	}
	if err := idx.Add(ctx, doc); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := idx.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.ID != doc.ID || got.Metadata["policy_id"] != "p1" {
		t.Errorf("GetByID() = %+v, want %+v", got, doc)
	}
	if len(got.Vector) != 3 {
		t.Errorf("GetByID() vector length = %d, want 3", len(got.Vector))
	}

	if err := idx.DeleteByID(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteByID() error: %v", err)
	}
	if _, err := idx.GetByID(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestBadgerIndexPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenBadgerIndex(dir)
	if err != nil {
		t.Fatalf("OpenBadgerIndex() error: %v", err)
	}
	if err := idx.Add(ctx,
		Document{ID: "a", Vector: []float32{1, 0}},
		Document{ID: "b", Vector: []float32{1, 0}},
	); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := OpenBadgerIndex(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after reopen = %d, want 2", count)
	}

	// Insertion order must survive the restart: "a" still wins ties.
	results, err := reopened.Search(ctx, Query{Vector: []float32{1, 0}, TopK: 2})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 || results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("Search() after reopen = %+v, want [a b]", results)
	}
}

func TestBadgerIndexUpsertKeepsSequence(t *testing.T) {
	ctx := context.Background()
	idx := openTestBadger(t)

	if err := idx.Add(ctx,
		Document{ID: "first", Vector: []float32{1, 0}},
		Document{ID: "second", Vector: []float32{1, 0}},
	); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := idx.Add(ctx, Document{ID: "first", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert error: %v", err)
	}

	results, err := idx.Search(ctx, Query{Vector: []float32{1, 0}, TopK: 2})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if results[0].ID != "first" || results[1].ID != "second" {
		t.Errorf("order after upsert = [%s %s], want [first second]", results[0].ID, results[1].ID)
	}
}

func TestBadgerIndexDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	idx := openTestBadger(t)

	if err := idx.Add(ctx,
		Document{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"type": "chunk", "policy_id": "p1"}},
		Document{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]string{"type": "chunk", "policy_id": "p2"}},
		Document{ID: "c", Vector: []float32{1, 0}, Metadata: map[string]string{"type": "feedback"}},
	); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	removed, err := idx.DeleteByFilter(ctx, map[string]string{"type": "chunk", "policy_id": "p1"})
	if err != nil {
		t.Fatalf("DeleteByFilter() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteByFilter() removed %d, want 1", removed)
	}

	count, _ := idx.Count(ctx, nil)
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
	chunks, _ := idx.Count(ctx, map[string]string{"type": "chunk"})
	if chunks != 1 {
		t.Errorf("Count(type=chunk) = %d, want 1", chunks)
	}
}
