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
	"sync"
)

// MemoryCheckpointLog keeps checkpoints in memory. Intended for tests
// and single-shot CLI runs where history does not need to survive the
// process.
//
// # Thread Safety
//
// MemoryCheckpointLog is safe for concurrent use.
type MemoryCheckpointLog struct {
	mu   sync.RWMutex
	runs map[string][]Checkpoint
}

// NewMemoryCheckpointLog creates an empty log.
func NewMemoryCheckpointLog() *MemoryCheckpointLog {
	return &MemoryCheckpointLog{runs: make(map[string][]Checkpoint)}
}

// Append records a snapshot for a run.
func (l *MemoryCheckpointLog) Append(_ context.Context, runID string, cp Checkpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[runID] = append(l.runs[runID], cp)
	return nil
}

// CurrentState returns the latest snapshot for a run.
func (l *MemoryCheckpointLog) CurrentState(_ context.Context, runID string) (Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cps := l.runs[runID]
	if len(cps) == 0 {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	return cps[len(cps)-1], nil
}

// StateHistory returns all snapshots for a run in order.
func (l *MemoryCheckpointLog) StateHistory(_ context.Context, runID string) ([]Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cps := l.runs[runID]
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	out := make([]Checkpoint, len(cps))
	copy(out, cps)
	return out, nil
}
