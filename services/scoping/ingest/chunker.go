// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest loads policy documents: it chunks the text, embeds
// the chunks, persists them, and indexes the vectors so retrieval can
// find them.
package ingest

// Sliding-window defaults. Overlap keeps sentences that straddle a
// window boundary retrievable from both sides.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultMinChunkLen  = 50
)

// Chunker splits text into fixed-size overlapping windows.
type Chunker struct {
	// Size is the window length in runes.
	Size int

	// Overlap is how many trailing runes each window shares with the
	// next one. Must be smaller than Size.
	Overlap int

	// MinLen drops windows at or below this many runes, which filters
	// trailing fragments too short to carry meaning.
	MinLen int
}

// NewChunker returns a chunker, substituting defaults for
// non-positive fields.
func NewChunker(size, overlap, minLen int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap <= 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	if minLen <= 0 {
		minLen = DefaultMinChunkLen
	}
	return Chunker{Size: size, Overlap: overlap, MinLen: minLen}
}

// Split returns the windows of text in document order. Windows at or
// below MinLen runes are dropped, so short inputs can yield nothing.
func (c Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		if end-start > c.MinLen {
			chunks = append(chunks, string(runes[start:end]))
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
