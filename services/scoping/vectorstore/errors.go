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

import "errors"

var (
	// ErrNotFound is returned when a document ID is not in the index.
	ErrNotFound = errors.New("vectorstore: document not found")

	// ErrDimensionMismatch is returned when a vector's dimension does
	// not match the dimension established by the first insert.
	ErrDimensionMismatch = errors.New("vectorstore: vector dimension mismatch")

	// ErrEmptyVector is returned when a document or query carries an
	// empty vector.
	ErrEmptyVector = errors.New("vectorstore: empty vector")

	// ErrInvalidTopK is returned when a query requests fewer than one
	// result.
	ErrInvalidTopK = errors.New("vectorstore: topK must be >= 1")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("vectorstore: index is closed")

	// ErrUnknownBackend is returned by the factory for an unrecognized
	// backend name.
	ErrUnknownBackend = errors.New("vectorstore: unknown backend")
)
