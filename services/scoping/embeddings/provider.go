// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embeddings converts text into dense vectors for similarity
// search. Two providers are available: the OpenAI embeddings API and a
// self-hosted embedding service speaking the /batch_embed protocol.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput is returned for nil contexts or empty texts.
	ErrInvalidInput = errors.New("embeddings: invalid input")

	// ErrProviderUnavailable is returned when the embedding backend
	// cannot be reached.
	ErrProviderUnavailable = errors.New("embeddings: provider unavailable")
)

// Provider computes embedding vectors for text.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
