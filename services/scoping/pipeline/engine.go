// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("evidentia.scoping.pipeline")
	meter  = otel.Meter("evidentia.scoping.pipeline")
)

// Engine drives a run through its stages in order.
//
// # Description
//
// The engine is fail-soft: a stage error is appended to the state's
// error list and the run continues, so a broken model call still
// leaves retrieval results and a persisted record behind. Only context
// cancellation aborts a run early.
//
// After every stage the engine appends a checkpoint. Checkpoint
// failures are logged and never fail the run.
//
// # Thread Safety
//
// Engine is safe for concurrent use; each Run works on its own state.
type Engine struct {
	stages []Stage
	log    CheckpointLog

	stageLatency metric.Float64Histogram
	stageOK      metric.Int64Counter
	stageFailed  metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// NewEngine creates an engine over an ordered stage list. log may be
// nil to disable checkpointing.
func NewEngine(stages []Stage, log CheckpointLog) (*Engine, error) {
	e := &Engine{stages: stages, log: log}

	var err error
	if e.stageLatency, err = meter.Float64Histogram("scoping_stage_duration_seconds",
		metric.WithDescription("Stage execution time in seconds")); err != nil {
		return nil, fmt.Errorf("create stage latency metric: %w", err)
	}
	if e.stageOK, err = meter.Int64Counter("scoping_stage_success_total",
		metric.WithDescription("Stages completed without error")); err != nil {
		return nil, fmt.Errorf("create stage success metric: %w", err)
	}
	if e.stageFailed, err = meter.Int64Counter("scoping_stage_failure_total",
		metric.WithDescription("Stages that recorded an error")); err != nil {
		return nil, fmt.Errorf("create stage failure metric: %w", err)
	}
	if e.runLatency, err = meter.Float64Histogram("scoping_run_duration_seconds",
		metric.WithDescription("Whole-run execution time in seconds")); err != nil {
		return nil, fmt.Errorf("create run latency metric: %w", err)
	}
	return e, nil
}

// Run executes every stage in order, mutating state in place.
//
// Outputs:
//
//	error - Non-nil only when the context is cancelled mid-run. Stage
//	        failures surface through state.Errors instead.
func (e *Engine) Run(ctx context.Context, state *RunState) error {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", state.RunID),
		attribute.String("asset_uri", state.AssetURI),
	)

	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now().UTC()
	}
	runStart := time.Now()

	for seq, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context cancelled")
			return fmt.Errorf("pipeline cancelled before stage %s: %w", stage.Name(), err)
		}

		e.runStage(ctx, stage, state)
		e.checkpoint(ctx, seq, stage.Name(), state)
	}

	e.runLatency.Record(ctx, time.Since(runStart).Seconds())
	if state.Failed() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stage errors", len(state.Errors)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return nil
}

// runStage executes one stage with panic recovery.
func (e *Engine) runStage(ctx context.Context, stage Stage, state *RunState) {
	ctx, span := tracer.Start(ctx, "stage."+stage.Name())
	defer span.End()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return stage.Run(ctx, state)
	}()

	elapsed := time.Since(start)
	if state.Telemetry == nil {
		state.Telemetry = make(map[string]float64)
	}
	state.Telemetry[stage.Name()] = float64(elapsed.Microseconds()) / 1000

	attrs := metric.WithAttributes(attribute.String("stage", stage.Name()))
	e.stageLatency.Record(ctx, elapsed.Seconds(), attrs)

	if err != nil {
		state.Errors = append(state.Errors, fmt.Sprintf("%s: %v", stage.Name(), err))
		e.stageFailed.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("pipeline stage failed",
			"run_id", state.RunID,
			"stage", stage.Name(),
			"error", err)
		return
	}

	e.stageOK.Add(ctx, 1, attrs)
	span.SetStatus(codes.Ok, "")
	slog.Debug("pipeline stage completed",
		"run_id", state.RunID,
		"stage", stage.Name(),
		"duration", time.Since(start))
}

// checkpoint snapshots the state. Failures are logged, never fatal.
func (e *Engine) checkpoint(ctx context.Context, seq int, stageName string, state *RunState) {
	if e.log == nil {
		return
	}
	cp := Checkpoint{
		Seq:        seq,
		Stage:      stageName,
		RecordedAt: time.Now().UTC(),
		State:      *state,
	}
	if err := e.log.Append(ctx, state.RunID, cp); err != nil {
		slog.Warn("checkpoint append failed",
			"run_id", state.RunID,
			"stage", stageName,
			"error", err)
	}
}
