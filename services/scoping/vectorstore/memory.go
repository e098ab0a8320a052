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
	"sort"
	"sync"
)

// MemoryIndex is a brute-force in-memory similarity index.
//
// # Description
//
// Every search scans all stored vectors and computes exact cosine
// similarity, so results are precise and deterministic. Intended for
// tests and corpora small enough that a full scan is cheap.
//
// # Thread Safety
//
// MemoryIndex is safe for concurrent use. All methods take an internal
// mutex.
type MemoryIndex struct {
	mu      sync.RWMutex
	docs    map[string]memoryEntry
	nextSeq uint64
	dim     int
	closed  bool
}

type memoryEntry struct {
	doc Document
	seq uint64
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]memoryEntry)}
}

// Add inserts or replaces documents. A replaced document keeps its
// original insertion sequence so ranking ties stay stable across
// updates.
func (m *MemoryIndex) Add(_ context.Context, docs ...Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			return ErrEmptyVector
		}
		if m.dim == 0 {
			m.dim = len(doc.Vector)
		} else if len(doc.Vector) != m.dim {
			return ErrDimensionMismatch
		}
		seq := m.nextSeq
		if prev, ok := m.docs[doc.ID]; ok {
			seq = prev.seq
		} else {
			m.nextSeq++
		}
		m.docs[doc.ID] = memoryEntry{doc: doc, seq: seq}
	}
	return nil
}

// Search scans all documents and returns the TopK best matches.
func (m *MemoryIndex) Search(_ context.Context, q Query) ([]Result, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	type scored struct {
		res Result
		seq uint64
	}
	matches := make([]scored, 0, len(m.docs))
	for _, e := range m.docs {
		if !matchesFilter(e.doc.Metadata, q.Filter) {
			continue
		}
		score := CosineSimilarity(q.Vector, e.doc.Vector)
		if q.ScoreThreshold > 0 && score < q.ScoreThreshold {
			continue
		}
		matches = append(matches, scored{
			res: Result{ID: e.doc.ID, Score: score, Metadata: e.doc.Metadata},
			seq: e.seq,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].res.Score != matches[j].res.Score {
			return matches[i].res.Score > matches[j].res.Score
		}
		return matches[i].seq < matches[j].seq
	})

	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	results := make([]Result, len(matches))
	for i, s := range matches {
		results[i] = s.res
	}
	return results, nil
}

// GetByID returns a stored document or ErrNotFound.
func (m *MemoryIndex) GetByID(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Document{}, ErrClosed
	}
	e, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return e.doc, nil
}

// DeleteByID removes a document. Absent IDs are a no-op.
func (m *MemoryIndex) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.docs, id)
	return nil
}

// DeleteByFilter removes every document matching the metadata filter.
func (m *MemoryIndex) DeleteByFilter(_ context.Context, filter map[string]string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	removed := 0
	for id, e := range m.docs {
		if matchesFilter(e.doc.Metadata, filter) {
			delete(m.docs, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored documents matching the filter.
func (m *MemoryIndex) Count(_ context.Context, filter map[string]string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	if len(filter) == 0 {
		return len(m.docs), nil
	}
	count := 0
	for _, e := range m.docs {
		if matchesFilter(e.doc.Metadata, filter) {
			count++
		}
	}
	return count, nil
}

// Close marks the index closed. Subsequent operations fail with
// ErrClosed.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func validateQuery(q Query) error {
	if len(q.Vector) == 0 {
		return ErrEmptyVector
	}
	if q.TopK < 1 {
		return ErrInvalidTopK
	}
	return nil
}
