// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Policy is a governance document registered with the engine.
//
// A policy has a short name and description used for discovery, and a
// full text that is chunked and embedded at ingestion time.
type Policy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FullText    string    `json:"full_text"`
	Domain      string    `json:"domain,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicyChunk is a contiguous span of a policy's full text with its
// embedding vector. Index is the zero-based position of the chunk
// within the source document.
type PolicyChunk struct {
	ID        string    `json:"id"`
	PolicyID  string    `json:"policy_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Index     int       `json:"index"`
}
