// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
)

const (
	policyPrefix     = "policy/"
	policyNamePrefix = "policyname/"
	chunkPrefix      = "chunk/"
	feedbackPrefix   = "feedback/"
	decisionPrefix   = "decision/"
)

// BadgerStore implements Store on a managed BadgerDB instance.
//
// # Thread Safety
//
// BadgerStore is safe for concurrent use; Badger transactions provide
// isolation.
type BadgerStore struct {
	db *badgerdb.DB
}

// NewBadgerStore wraps an open database. The caller keeps ownership;
// Close closes it.
func NewBadgerStore(db *badgerdb.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a store at path with production
// defaults.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	cfg := badgerdb.DefaultConfig()
	cfg.Path = path
	db, err := badgerdb.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func putJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), raw)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// scanJSON decodes every value under prefix into fresh T values.
func scanJSON[T any](txn *badger.Txn, prefix string) ([]T, error) {
	var out []T
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		var v T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// AddPolicy inserts or replaces a policy, enforcing name uniqueness
// and keeping the name lookup key in sync.
func (s *BadgerStore) AddPolicy(ctx context.Context, p datatypes.Policy) error {
	if p.ID == "" || p.Name == "" {
		return errors.New("storage: policy requires id and name")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var ownerID string
		item, err := txn.Get([]byte(policyNamePrefix + p.Name))
		switch {
		case err == nil:
			err = item.Value(func(val []byte) error {
				ownerID = string(val)
				return nil
			})
			if err != nil {
				return err
			}
			if ownerID != p.ID {
				return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		// Drop the stale name key if the policy was renamed.
		var prev datatypes.Policy
		err = getJSON(txn, policyPrefix+p.ID, &prev)
		if err == nil && prev.Name != p.Name {
			if err := txn.Delete([]byte(policyNamePrefix + prev.Name)); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := putJSON(txn, policyPrefix+p.ID, p); err != nil {
			return err
		}
		return txn.Set([]byte(policyNamePrefix+p.Name), []byte(p.ID))
	})
}

// GetPolicy returns a policy by ID.
func (s *BadgerStore) GetPolicy(ctx context.Context, id string) (datatypes.Policy, error) {
	var p datatypes.Policy
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, policyPrefix+id, &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.Policy{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return p, err
}

// GetPolicyByName resolves a policy by exact name.
func (s *BadgerStore) GetPolicyByName(ctx context.Context, name string) (datatypes.Policy, error) {
	var p datatypes.Policy
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(policyNamePrefix + name))
		if err != nil {
			return err
		}
		var id string
		err = item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
		if err != nil {
			return err
		}
		return getJSON(txn, policyPrefix+id, &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.Policy{}, fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
	}
	return p, err
}

// ListPolicies returns all policies ordered by name.
func (s *BadgerStore) ListPolicies(ctx context.Context) ([]datatypes.Policy, error) {
	var policies []datatypes.Policy
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		policies, err = scanJSON[datatypes.Policy](txn, policyPrefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies, nil
}

// DeletePolicy removes a policy record and its name lookup key.
func (s *BadgerStore) DeletePolicy(ctx context.Context, id string) error {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var p datatypes.Policy
		if err := getJSON(txn, policyPrefix+id, &p); err != nil {
			return err
		}
		if err := txn.Delete([]byte(policyNamePrefix + p.Name)); err != nil {
			return err
		}
		return txn.Delete([]byte(policyPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return err
}

func chunkKey(policyID, chunkID string) string {
	return chunkPrefix + policyID + "/" + chunkID
}

// AddPolicyChunks replaces a policy's chunk set.
func (s *BadgerStore) AddPolicyChunks(ctx context.Context, policyID string, chunks []datatypes.PolicyChunk) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := deletePrefix(txn, chunkPrefix+policyID+"/"); err != nil {
			return err
		}
		for _, c := range chunks {
			if err := putJSON(txn, chunkKey(policyID, c.ID), c); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPolicyChunks returns a policy's chunks ordered by index.
func (s *BadgerStore) GetPolicyChunks(ctx context.Context, policyID string) ([]datatypes.PolicyChunk, error) {
	var chunks []datatypes.PolicyChunk
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		chunks, err = scanJSON[datatypes.PolicyChunk](txn, chunkPrefix+policyID+"/")
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// GetChunk returns a single chunk.
func (s *BadgerStore) GetChunk(ctx context.Context, policyID, chunkID string) (datatypes.PolicyChunk, error) {
	var c datatypes.PolicyChunk
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, chunkKey(policyID, chunkID), &c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.PolicyChunk{}, fmt.Errorf("storage: chunk %s/%s not found", policyID, chunkID)
	}
	return c, err
}

// DeletePolicyChunks removes all chunks for a policy.
func (s *BadgerStore) DeletePolicyChunks(ctx context.Context, policyID string) (int, error) {
	removed := 0
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		n, err := countAndDeletePrefix(txn, chunkPrefix+policyID+"/")
		removed = n
		return err
	})
	return removed, err
}

// AddFeedback persists a feedback record.
func (s *BadgerStore) AddFeedback(ctx context.Context, f datatypes.FeedbackRecord) error {
	if f.ID == "" {
		return errors.New("storage: feedback requires id")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, feedbackPrefix+f.ID, f)
	})
}

// GetFeedback returns a feedback record by ID.
func (s *BadgerStore) GetFeedback(ctx context.Context, id string) (datatypes.FeedbackRecord, error) {
	var f datatypes.FeedbackRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, feedbackPrefix+id, &f)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.FeedbackRecord{}, fmt.Errorf("%w: %s", ErrFeedbackNotFound, id)
	}
	return f, err
}

// ListFeedback returns feedback matching the filter, newest first.
func (s *BadgerStore) ListFeedback(ctx context.Context, filter FeedbackFilter, limit int) ([]datatypes.FeedbackRecord, error) {
	var records []datatypes.FeedbackRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		records, err = scanJSON[datatypes.FeedbackRecord](txn, feedbackPrefix)
		return err
	})
	if err != nil {
		return nil, err
	}

	filtered := records[:0]
	for _, f := range records {
		if filter.DecisionID != "" && f.DecisionID != filter.DecisionID {
			continue
		}
		if filter.PolicyID != "" && f.PolicyID != filter.PolicyID {
			continue
		}
		filtered = append(filtered, f)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// DeleteFeedback removes a feedback record.
func (s *BadgerStore) DeleteFeedback(ctx context.Context, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := []byte(feedbackPrefix + id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrFeedbackNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// CountFeedback returns the number of stored feedback records.
func (s *BadgerStore) CountFeedback(ctx context.Context) (int, error) {
	count := 0
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(feedbackPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// AddDecision persists a decision record.
func (s *BadgerStore) AddDecision(ctx context.Context, d datatypes.DecisionRecord) error {
	if d.ID == "" {
		return errors.New("storage: decision requires id")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, decisionPrefix+d.ID, d)
	})
}

// GetDecision returns a decision by ID.
func (s *BadgerStore) GetDecision(ctx context.Context, id string) (datatypes.DecisionRecord, error) {
	var d datatypes.DecisionRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, decisionPrefix+id, &d)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.DecisionRecord{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, id)
	}
	return d, err
}

// ListDecisions returns decisions matching the filter, newest first.
func (s *BadgerStore) ListDecisions(ctx context.Context, filter DecisionFilter, limit int) ([]datatypes.DecisionRecord, error) {
	var all []datatypes.DecisionRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		all, err = scanJSON[datatypes.DecisionRecord](txn, decisionPrefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	decisions := all[:0]
	for _, d := range all {
		if filter.AssetURI != "" && d.AssetURI != filter.AssetURI {
			continue
		}
		if filter.PolicyID != "" && d.PolicyID != filter.PolicyID {
			continue
		}
		if filter.Decision != "" && d.Decision != filter.Decision {
			continue
		}
		decisions = append(decisions, d)
	}
	sort.Slice(decisions, func(i, j int) bool {
		if !decisions[i].CreatedAt.Equal(decisions[j].CreatedAt) {
			return decisions[i].CreatedAt.After(decisions[j].CreatedAt)
		}
		return decisions[i].ID < decisions[j].ID
	})
	if limit > 0 && len(decisions) > limit {
		decisions = decisions[:limit]
	}
	return decisions, nil
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	_, err := countAndDeletePrefix(txn, prefix)
	return err
}

func countAndDeletePrefix(txn *badger.Txn, prefix string) (int, error) {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
