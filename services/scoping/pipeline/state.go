// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs a scoping request through a fixed sequence of
// stages. Stage failures do not abort the run: errors accumulate on
// the run state and later stages work with whatever evidence earlier
// stages managed to gather. The state is checkpointed after every
// stage so a run's progression can be audited afterwards.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
)

// ErrNoCheckpoints is returned when a run has no recorded checkpoints.
var ErrNoCheckpoints = errors.New("pipeline: no checkpoints for run")

// RunState carries everything a scoping run accumulates. Stages read
// the fields earlier stages filled and write their own; the engine
// snapshots the whole struct after each stage.
type RunState struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at"`

	// Request.
	AssetURI string `json:"asset_uri"`
	// PolicyID optionally names one policy (by ID or name) for direct
	// mode. Empty selects discovery mode.
	PolicyID string `json:"policy_id,omitempty"`

	// Accumulated by stages.
	Asset            datatypes.AssetReference       `json:"asset,omitempty"`
	QueryEmbedding   []float32                      `json:"query_embedding,omitempty"`
	Policies         []datatypes.Policy             `json:"policies,omitempty"`
	Evidence         []datatypes.Evidence           `json:"evidence,omitempty"`
	Retrieval        datatypes.RetrievalStats       `json:"retrieval,omitempty"`
	SimilarDecisions []datatypes.SimilarDecision    `json:"similar_decisions,omitempty"`
	Feedback         []feedback.Ranked              `json:"feedback,omitempty"`
	FeedbackStats    datatypes.FeedbackStats        `json:"feedback_stats,omitempty"`
	Confidence       datatypes.ConfidenceAssessment `json:"confidence,omitempty"`
	SystemPrompt     string                         `json:"system_prompt,omitempty"`
	UserPrompt       string                         `json:"user_prompt,omitempty"`
	Verdict          *datatypes.Verdict             `json:"verdict,omitempty"`
	Decision         *datatypes.DecisionRecord      `json:"decision,omitempty"`

	// Telemetry maps stage name to elapsed milliseconds.
	Telemetry map[string]float64 `json:"telemetry,omitempty"`

	// Errors holds one "<stage>: <message>" entry per failed stage.
	Errors []string `json:"errors,omitempty"`
}

// Failed reports whether any stage recorded an error.
func (s *RunState) Failed() bool {
	return len(s.Errors) > 0
}

// Stage is one step of the pipeline.
type Stage interface {
	// Name identifies the stage in checkpoints, errors, and metrics.
	Name() string

	// Run mutates the state in place. A returned error marks the
	// stage failed but does not abort the run.
	Run(ctx context.Context, state *RunState) error
}

// Checkpoint is one recorded snapshot of a run.
type Checkpoint struct {
	// Seq is the zero-based position of the snapshot in the run.
	Seq int `json:"seq"`

	// Stage is the stage that just finished.
	Stage string `json:"stage"`

	RecordedAt time.Time `json:"recorded_at"`
	State      RunState  `json:"state"`
}

// CheckpointLog records run snapshots.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type CheckpointLog interface {
	// Append records a snapshot for a run.
	Append(ctx context.Context, runID string, cp Checkpoint) error

	// CurrentState returns the latest snapshot for a run, or
	// ErrNoCheckpoints.
	CurrentState(ctx context.Context, runID string) (Checkpoint, error)

	// StateHistory returns all snapshots for a run in order, or
	// ErrNoCheckpoints.
	StateHistory(ctx context.Context, runID string) ([]Checkpoint, error)
}
