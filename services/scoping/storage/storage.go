// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists policies, policy chunks, feedback records,
// and scoping decisions. The vector index holds only embeddings and
// thin metadata; full records live here.
package storage

import (
	"context"
	"errors"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

var (
	// ErrPolicyNotFound is returned when a policy ID or name does not
	// resolve.
	ErrPolicyNotFound = errors.New("storage: policy not found")

	// ErrDecisionNotFound is returned when a decision ID is unknown.
	ErrDecisionNotFound = errors.New("storage: decision not found")

	// ErrFeedbackNotFound is returned when a feedback ID is unknown.
	ErrFeedbackNotFound = errors.New("storage: feedback not found")

	// ErrDuplicateName is returned when a policy name is already taken
	// by a different policy.
	ErrDuplicateName = errors.New("storage: policy name already in use")
)

// FeedbackFilter narrows ListFeedback. Zero-value fields are ignored.
type FeedbackFilter struct {
	DecisionID string
	PolicyID   string
}

// DecisionFilter narrows ListDecisions. Zero-value fields match
// everything.
type DecisionFilter struct {
	AssetURI string
	PolicyID string
	Decision datatypes.Decision
}

// Store is the persistence interface for the scoping engine.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Store interface {
	// AddPolicy inserts or replaces a policy by ID. The policy name
	// must be unique across policies.
	AddPolicy(ctx context.Context, p datatypes.Policy) error

	// GetPolicy returns a policy by ID or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, id string) (datatypes.Policy, error)

	// GetPolicyByName returns a policy by exact name or
	// ErrPolicyNotFound.
	GetPolicyByName(ctx context.Context, name string) (datatypes.Policy, error)

	// ListPolicies returns all policies ordered by name.
	ListPolicies(ctx context.Context) ([]datatypes.Policy, error)

	// DeletePolicy removes a policy record and its name lookup.
	// Absent IDs return ErrPolicyNotFound. Chunks are deleted
	// separately via DeletePolicyChunks.
	DeletePolicy(ctx context.Context, id string) error

	// AddPolicyChunks replaces the stored chunk set for a policy.
	AddPolicyChunks(ctx context.Context, policyID string, chunks []datatypes.PolicyChunk) error

	// GetPolicyChunks returns a policy's chunks ordered by index.
	GetPolicyChunks(ctx context.Context, policyID string) ([]datatypes.PolicyChunk, error)

	// GetChunk returns a single chunk by ID.
	GetChunk(ctx context.Context, policyID, chunkID string) (datatypes.PolicyChunk, error)

	// DeletePolicyChunks removes all chunks for a policy and returns
	// the number removed.
	DeletePolicyChunks(ctx context.Context, policyID string) (int, error)

	// AddFeedback persists a feedback record.
	AddFeedback(ctx context.Context, f datatypes.FeedbackRecord) error

	// GetFeedback returns a feedback record by ID or
	// ErrFeedbackNotFound.
	GetFeedback(ctx context.Context, id string) (datatypes.FeedbackRecord, error)

	// ListFeedback returns feedback matching the filter, newest first.
	// limit <= 0 means no limit.
	ListFeedback(ctx context.Context, filter FeedbackFilter, limit int) ([]datatypes.FeedbackRecord, error)

	// DeleteFeedback removes a feedback record. Absent IDs return
	// ErrFeedbackNotFound.
	DeleteFeedback(ctx context.Context, id string) error

	// CountFeedback returns the total number of stored feedback
	// records.
	CountFeedback(ctx context.Context) (int, error)

	// AddDecision persists a decision record.
	AddDecision(ctx context.Context, d datatypes.DecisionRecord) error

	// GetDecision returns a decision by ID or ErrDecisionNotFound.
	GetDecision(ctx context.Context, id string) (datatypes.DecisionRecord, error)

	// ListDecisions returns decisions matching the filter, newest
	// first. limit <= 0 means no limit.
	ListDecisions(ctx context.Context, filter DecisionFilter, limit int) ([]datatypes.DecisionRecord, error)

	// Close releases backend resources.
	Close() error
}
