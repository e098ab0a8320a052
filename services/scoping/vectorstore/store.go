// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore provides the similarity index used by the scoping
// engine, with three interchangeable backends: an in-memory index for
// tests and small corpora, a Badger-backed index for single-node
// persistence, and a Weaviate-backed index for managed deployments.
//
// All backends rank by cosine similarity and break ties by insertion
// order, so a given corpus and query always produce the same result
// sequence regardless of backend.
package vectorstore

import (
	"context"
	"math"
)

// Document is an embedded item stored in an index.
type Document struct {
	// ID uniquely identifies the document. Adding a document with an
	// existing ID replaces the stored vector and metadata.
	ID string `json:"id"`

	// Vector is the embedding. All vectors in one index must share a
	// dimension; the first Add fixes it.
	Vector []float32 `json:"vector"`

	// Metadata carries filterable string fields (e.g. "type",
	// "policy_id").
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is a scored match returned by Search.
type Result struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Query describes one similarity search.
type Query struct {
	// Vector is the query embedding. Required.
	Vector []float32

	// TopK caps the number of results. Values < 1 are rejected.
	TopK int

	// Filter restricts candidates to documents whose metadata contains
	// every listed key with an exactly equal value. A nil or empty
	// filter matches everything.
	Filter map[string]string

	// ScoreThreshold drops results scoring below it. Zero disables
	// the threshold.
	ScoreThreshold float64
}

// Index is a similarity index over embedded documents.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Index interface {
	// Add inserts or replaces documents. Replacing a document keeps
	// its original insertion position for tie-breaking.
	Add(ctx context.Context, docs ...Document) error

	// Search returns up to TopK matches ordered by score descending,
	// ties broken by insertion order (earliest first).
	Search(ctx context.Context, q Query) ([]Result, error)

	// GetByID returns a stored document or ErrNotFound.
	GetByID(ctx context.Context, id string) (Document, error)

	// DeleteByID removes a document. Deleting an absent ID is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByFilter removes every document matching the metadata
	// filter and returns the number removed.
	DeleteByFilter(ctx context.Context, filter map[string]string) (int, error)

	// Count returns the number of stored documents matching the
	// metadata filter. A nil or empty filter counts everything.
	Count(ctx context.Context, filter map[string]string) (int, error)

	// Close releases backend resources.
	Close() error
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 when either vector is zero-length, all-zero, or the
// dimensions disagree.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
