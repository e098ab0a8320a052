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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
)

type stubStage struct {
	name string
	run  func(ctx context.Context, state *RunState) error
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Run(ctx context.Context, state *RunState) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, state)
}

func TestEngineContinuesPastStageErrors(t *testing.T) {
	var visited []string
	mark := func(name string, err error) Stage {
		return &stubStage{name: name, run: func(_ context.Context, _ *RunState) error {
			visited = append(visited, name)
			return err
		}}
	}

	eng, err := NewEngine([]Stage{
		mark("first", nil),
		mark("second", errors.New("boom")),
		mark("third", nil),
	}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	state := &RunState{RunID: "run1", AssetURI: "svc://a.b.c"}
	if err := eng.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if want := []string{"first", "second", "third"}; len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	if len(state.Errors) != 1 || state.Errors[0] != "second: boom" {
		t.Errorf("Errors = %v, want [second: boom]", state.Errors)
	}
	if !state.Failed() {
		t.Error("Failed() = false, want true")
	}
	for _, name := range []string{"first", "second", "third"} {
		if _, ok := state.Telemetry[name]; !ok {
			t.Errorf("Telemetry missing entry for stage %s", name)
		}
	}
}

func TestEngineRecoversStagePanic(t *testing.T) {
	reached := false
	eng, err := NewEngine([]Stage{
		&stubStage{name: "explode", run: func(_ context.Context, _ *RunState) error {
			panic("kaboom")
		}},
		&stubStage{name: "after", run: func(_ context.Context, _ *RunState) error {
			reached = true
			return nil
		}},
	}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	state := &RunState{RunID: "run1"}
	if err := eng.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(state.Errors) != 1 || state.Errors[0] != "explode: panic: kaboom" {
		t.Errorf("Errors = %v, want [explode: panic: kaboom]", state.Errors)
	}
	if !reached {
		t.Error("stage after the panic did not run")
	}
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reached := false

	log := NewMemoryCheckpointLog()
	eng, err := NewEngine([]Stage{
		&stubStage{name: "first", run: func(_ context.Context, _ *RunState) error {
			cancel()
			return nil
		}},
		&stubStage{name: "second", run: func(_ context.Context, _ *RunState) error {
			reached = true
			return nil
		}},
	}, log)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	state := &RunState{RunID: "run1"}
	runErr := eng.Run(ctx, state)
	if runErr == nil {
		t.Fatal("Run() error = nil, want cancellation error")
	}
	if !errors.Is(runErr, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", runErr)
	}
	if !strings.Contains(runErr.Error(), "second") {
		t.Errorf("Run() error %q does not name the pending stage", runErr)
	}
	if reached {
		t.Error("stage after cancellation ran")
	}

	// The completed stage was still checkpointed.
	history, err := log.StateHistory(context.Background(), "run1")
	if err != nil {
		t.Fatalf("StateHistory() error: %v", err)
	}
	if len(history) != 1 || history[0].Stage != "first" {
		t.Errorf("history = %+v, want one checkpoint for stage first", history)
	}
}

func TestEngineCheckpointsEveryStage(t *testing.T) {
	names := []string{"one", "two", "three"}
	stages := make([]Stage, len(names))
	for i, n := range names {
		stages[i] = &stubStage{name: n}
	}

	log := NewMemoryCheckpointLog()
	eng, err := NewEngine(stages, log)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	state := &RunState{RunID: "run1"}
	if err := eng.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	history, err := log.StateHistory(context.Background(), "run1")
	if err != nil {
		t.Fatalf("StateHistory() error: %v", err)
	}
	if len(history) != len(names) {
		t.Fatalf("got %d checkpoints, want %d", len(history), len(names))
	}
	for i, cp := range history {
		if cp.Seq != i {
			t.Errorf("checkpoint %d Seq = %d", i, cp.Seq)
		}
		if cp.Stage != names[i] {
			t.Errorf("checkpoint %d Stage = %q, want %q", i, cp.Stage, names[i])
		}
	}

	current, err := log.CurrentState(context.Background(), "run1")
	if err != nil {
		t.Fatalf("CurrentState() error: %v", err)
	}
	if current.Stage != "three" {
		t.Errorf("CurrentState().Stage = %q, want three", current.Stage)
	}
}

func TestMemoryCheckpointLogUnknownRun(t *testing.T) {
	log := NewMemoryCheckpointLog()
	if _, err := log.CurrentState(context.Background(), "nope"); !errors.Is(err, ErrNoCheckpoints) {
		t.Errorf("CurrentState() error = %v, want ErrNoCheckpoints", err)
	}
	if _, err := log.StateHistory(context.Background(), "nope"); !errors.Is(err, ErrNoCheckpoints) {
		t.Errorf("StateHistory() error = %v, want ErrNoCheckpoints", err)
	}
}

func TestBadgerCheckpointLog(t *testing.T) {
	db, err := badgerdb.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	log := NewBadgerCheckpointLog(db)
	ctx := context.Background()

	stages := []string{"parse-asset", "retrieve-policy-evidence", "persist-decision"}
	for i, name := range stages {
		cp := Checkpoint{
			Seq:        i,
			Stage:      name,
			RecordedAt: time.Now().UTC(),
			State:      RunState{RunID: "run1", AssetURI: "svc://a.b.c", Errors: nil},
		}
		if err := log.Append(ctx, "run1", cp); err != nil {
			t.Fatalf("Append(%d) error: %v", i, err)
		}
	}
	if err := log.Append(ctx, "run2", Checkpoint{Seq: 0, Stage: "parse-asset"}); err != nil {
		t.Fatalf("Append(run2) error: %v", err)
	}

	history, err := log.StateHistory(ctx, "run1")
	if err != nil {
		t.Fatalf("StateHistory() error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d checkpoints, want 3", len(history))
	}
	for i, cp := range history {
		if cp.Seq != i || cp.Stage != stages[i] {
			t.Errorf("checkpoint %d = {Seq:%d Stage:%q}, want {Seq:%d Stage:%q}",
				i, cp.Seq, cp.Stage, i, stages[i])
		}
		if cp.State.AssetURI != "svc://a.b.c" {
			t.Errorf("checkpoint %d lost state: AssetURI = %q", i, cp.State.AssetURI)
		}
	}

	current, err := log.CurrentState(ctx, "run1")
	if err != nil {
		t.Fatalf("CurrentState() error: %v", err)
	}
	if current.Stage != "persist-decision" {
		t.Errorf("CurrentState().Stage = %q, want persist-decision", current.Stage)
	}

	if _, err := log.CurrentState(ctx, "missing"); !errors.Is(err, ErrNoCheckpoints) {
		t.Errorf("CurrentState(missing) error = %v, want ErrNoCheckpoints", err)
	}
}
