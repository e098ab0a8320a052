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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultServiceTimeout is the default timeout for embedding requests.
const DefaultServiceTimeout = 30 * time.Second

// ServiceProvider wraps a self-hosted embedding service that runs
// transformer models (BGE, Qwen) behind a /batch_embed endpoint.
//
// # Thread Safety
//
// ServiceProvider is safe for concurrent use.
type ServiceProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewServiceProvider creates a client for the embedding service at
// baseURL (e.g. "http://localhost:8000").
func NewServiceProvider(baseURL string) *ServiceProvider {
	return &ServiceProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultServiceTimeout,
		},
	}
}

// WithTimeout sets a custom timeout for embedding requests.
func (p *ServiceProvider) WithTimeout(timeout time.Duration) *ServiceProvider {
	p.httpClient.Timeout = timeout
	return p
}

// batchEmbedRequest is the request body for the /batch_embed endpoint.
type batchEmbedRequest struct {
	Texts []string `json:"texts"`
}

// batchEmbedResponse is the response from the /batch_embed endpoint.
type batchEmbedResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Vectors [][]float32 `json:"vectors"`
	Dim     int         `json:"dim"`
}

// Embed returns the vector for a single text.
func (p *ServiceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends all texts in a single request. Batching is much
// cheaper than per-text calls when embedding a chunked document.
func (p *ServiceProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts is empty", ErrInvalidInput)
	}

	bodyBytes, err := json.Marshal(batchEmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/batch_embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp batchEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embResp.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(embResp.Vectors), len(texts))
	}
	return embResp.Vectors, nil
}

// Health checks whether the embedding service is reachable and its
// model is loaded.
func (p *ServiceProvider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service health returned status %d", resp.StatusCode)
	}
	return nil
}
