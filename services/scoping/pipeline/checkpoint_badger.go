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
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
)

const checkpointPrefix = "checkpoint/"

// BadgerCheckpointLog persists checkpoints in BadgerDB, keyed by run
// ID and sequence so history survives restarts.
//
// Keys are "checkpoint/<runID>/<seq:06d>"; the zero-padded sequence
// makes lexicographic iteration return snapshots in run order.
//
// # Thread Safety
//
// BadgerCheckpointLog is safe for concurrent use.
type BadgerCheckpointLog struct {
	db *badgerdb.DB
}

// NewBadgerCheckpointLog wraps an open database. The caller retains
// ownership of the database.
func NewBadgerCheckpointLog(db *badgerdb.DB) *BadgerCheckpointLog {
	return &BadgerCheckpointLog{db: db}
}

func checkpointKey(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", checkpointPrefix, runID, seq))
}

// Append records a snapshot for a run.
func (l *BadgerCheckpointLog) Append(ctx context.Context, runID string, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return l.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(runID, cp.Seq), raw)
	})
}

// CurrentState returns the latest snapshot for a run.
func (l *BadgerCheckpointLog) CurrentState(ctx context.Context, runID string) (Checkpoint, error) {
	cps, err := l.StateHistory(ctx, runID)
	if err != nil {
		return Checkpoint{}, err
	}
	return cps[len(cps)-1], nil
}

// StateHistory returns all snapshots for a run in order.
func (l *BadgerCheckpointLog) StateHistory(ctx context.Context, runID string) ([]Checkpoint, error) {
	var cps []Checkpoint
	err := l.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(checkpointPrefix + runID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var cp Checkpoint
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			})
			if err != nil {
				return fmt.Errorf("decode checkpoint %s: %w", it.Item().Key(), err)
			}
			cps = append(cps, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	return cps, nil
}
