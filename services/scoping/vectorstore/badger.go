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

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	badgerDocPrefix = "vec/doc/"
	badgerSeqKey    = "vec/meta/seq"
	badgerDimKey    = "vec/meta/dim"
)

// BadgerIndex is a similarity index persisted in a Badger key-value
// store. Vectors survive restarts; searches are exact full scans, the
// same as MemoryIndex but reading from disk (or Badger's block cache).
//
// # Thread Safety
//
// BadgerIndex is safe for concurrent use. Badger transactions provide
// isolation; conflicting writes are retried by the caller via the
// returned error.
type BadgerIndex struct {
	db *badger.DB

	// ownsDB is set when the index opened the database itself and
	// should close it.
	ownsDB bool
}

type badgerRecord struct {
	Document
	Seq uint64 `json:"seq"`
}

// NewBadgerIndex wraps an already open Badger database. Close does not
// close the database.
func NewBadgerIndex(db *badger.DB) *BadgerIndex {
	return &BadgerIndex{db: db}
}

// OpenBadgerIndex opens (or creates) a Badger database at path and
// returns an index that owns it.
func OpenBadgerIndex(path string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger index at %s: %w", path, err)
	}
	return &BadgerIndex{db: db, ownsDB: true}, nil
}

// Add inserts or replaces documents inside one transaction. Replaced
// documents keep their original sequence number.
func (b *BadgerIndex) Add(_ context.Context, docs ...Document) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		dim, err := readUint64(txn, badgerDimKey)
		if err != nil {
			return err
		}
		seq, err := readUint64(txn, badgerSeqKey)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			if len(doc.Vector) == 0 {
				return ErrEmptyVector
			}
			if dim == 0 {
				dim = uint64(len(doc.Vector))
				if err := writeUint64(txn, badgerDimKey, dim); err != nil {
					return err
				}
			} else if uint64(len(doc.Vector)) != dim {
				return ErrDimensionMismatch
			}

			rec := badgerRecord{Document: doc, Seq: seq}
			key := []byte(badgerDocPrefix + doc.ID)
			if prev, err := readRecord(txn, key); err == nil {
				rec.Seq = prev.Seq
			} else if !errors.Is(err, ErrNotFound) {
				return err
			} else {
				seq++
				if err := writeUint64(txn, badgerSeqKey, seq); err != nil {
					return err
				}
			}

			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal document %s: %w", doc.ID, err)
			}
			if err := txn.Set(key, raw); err != nil {
				return fmt.Errorf("store document %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

// Search scans all stored documents and ranks them by cosine
// similarity.
func (b *BadgerIndex) Search(_ context.Context, q Query) ([]Result, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if b.db.IsClosed() {
		return nil, ErrClosed
	}

	type scored struct {
		res Result
		seq uint64
	}
	var matches []scored

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerDocPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			if !matchesFilter(rec.Metadata, q.Filter) {
				continue
			}
			score := CosineSimilarity(q.Vector, rec.Vector)
			if q.ScoreThreshold > 0 && score < q.ScoreThreshold {
				continue
			}
			matches = append(matches, scored{
				res: Result{ID: rec.ID, Score: score, Metadata: rec.Metadata},
				seq: rec.Seq,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].res.Score != matches[j].res.Score {
			return matches[i].res.Score > matches[j].res.Score
		}
		return matches[i].seq < matches[j].seq
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	results := make([]Result, len(matches))
	for i, s := range matches {
		results[i] = s.res
	}
	return results, nil
}

// GetByID returns a stored document or ErrNotFound.
func (b *BadgerIndex) GetByID(_ context.Context, id string) (Document, error) {
	if b.db.IsClosed() {
		return Document{}, ErrClosed
	}
	var doc Document
	err := b.db.View(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, []byte(badgerDocPrefix+id))
		if err != nil {
			return err
		}
		doc = rec.Document
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DeleteByID removes a document. Absent IDs are a no-op.
func (b *BadgerIndex) DeleteByID(_ context.Context, id string) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(badgerDocPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// DeleteByFilter removes every document matching the metadata filter.
func (b *BadgerIndex) DeleteByFilter(_ context.Context, filter map[string]string) (int, error) {
	if b.db.IsClosed() {
		return 0, ErrClosed
	}
	removed := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		removed = 0
		var keys [][]byte
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(badgerDocPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				it.Close()
				return fmt.Errorf("decode document: %w", err)
			}
			if matchesFilter(rec.Metadata, filter) {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Count returns the number of stored documents matching the filter.
// An empty filter skips value decoding entirely.
func (b *BadgerIndex) Count(_ context.Context, filter map[string]string) (int, error) {
	if b.db.IsClosed() {
		return 0, ErrClosed
	}
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = len(filter) > 0
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(badgerDocPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if len(filter) == 0 {
				count++
				continue
			}
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			if matchesFilter(rec.Metadata, filter) {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the underlying database if this index opened it.
func (b *BadgerIndex) Close() error {
	if !b.ownsDB {
		return nil
	}
	return b.db.Close()
}

func readRecord(txn *badger.Txn, key []byte) (badgerRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return badgerRecord{}, ErrNotFound
	}
	if err != nil {
		return badgerRecord{}, err
	}
	var rec badgerRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func readUint64(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter at %s", key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func writeUint64(txn *badger.Txn, key string, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return txn.Set([]byte(key), buf)
}
