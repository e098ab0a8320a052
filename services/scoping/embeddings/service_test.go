// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceProviderEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch_embed" {
			http.NotFound(w, r)
			return
		}
		var req batchEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			vectors[i] = []float32{float32(i), 1}
		}
		_ = json.NewEncoder(w).Encode(batchEmbedResponse{
			Model:   "test",
			Vectors: vectors,
			Dim:     2,
		})
	}))
	defer srv.Close()

	provider := NewServiceProvider(srv.URL)
	vectors, err := provider.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("EmbedBatch() returned %d vectors, want 2", len(vectors))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors[1][0] = %v, want 1", vectors[1][0])
	}

	single, err := provider.Embed(context.Background(), "one")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(single) != 2 {
		t.Errorf("Embed() vector dim = %d, want 2", len(single))
	}
}

func TestServiceProviderErrors(t *testing.T) {
	provider := NewServiceProvider("http://localhost:1")

	if _, err := provider.EmbedBatch(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EmbedBatch(nil) error = %v, want ErrInvalidInput", err)
	}
	if _, err := provider.Embed(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Embed(\"\") error = %v, want ErrInvalidInput", err)
	}
	if _, err := provider.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("EmbedBatch(unreachable) error = %v, want ErrProviderUnavailable", err)
	}
}

func TestServiceProviderVectorCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(batchEmbedResponse{Vectors: [][]float32{{1}}})
	}))
	defer srv.Close()

	provider := NewServiceProvider(srv.URL)
	if _, err := provider.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("EmbedBatch() with mismatched vector count: expected error, got nil")
	}
}
