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
	"errors"
	"testing"
	"time"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error: %v", err)
	}
	store := NewBadgerStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStorePolicyCRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p := datatypes.Policy{
		ID:          "p1",
		Name:        "data-retention",
		Description: "Retention limits for customer data",
		FullText:    "All customer data must be deleted after 90 days.",
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.AddPolicy(ctx, p); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}

	got, err := store.GetPolicy(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPolicy() error: %v", err)
	}
	if got.Name != p.Name {
		t.Errorf("GetPolicy().Name = %q, want %q", got.Name, p.Name)
	}

	byName, err := store.GetPolicyByName(ctx, "data-retention")
	if err != nil {
		t.Fatalf("GetPolicyByName() error: %v", err)
	}
	if byName.ID != "p1" {
		t.Errorf("GetPolicyByName().ID = %q, want p1", byName.ID)
	}

	if _, err := store.GetPolicy(ctx, "missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("GetPolicy(missing) error = %v, want ErrPolicyNotFound", err)
	}
	if _, err := store.GetPolicyByName(ctx, "missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("GetPolicyByName(missing) error = %v, want ErrPolicyNotFound", err)
	}

	if err := store.DeletePolicy(ctx, "p1"); err != nil {
		t.Fatalf("DeletePolicy() error: %v", err)
	}
	if _, err := store.GetPolicy(ctx, "p1"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("GetPolicy() after delete error = %v, want ErrPolicyNotFound", err)
	}
	if _, err := store.GetPolicyByName(ctx, "data-retention"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("name still resolves after delete: %v", err)
	}
	// Deleting frees the name for re-use.
	if err := store.AddPolicy(ctx, datatypes.Policy{ID: "p2", Name: "data-retention"}); err != nil {
		t.Errorf("AddPolicy() after delete error: %v", err)
	}
	if err := store.DeletePolicy(ctx, "missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("DeletePolicy(missing) error = %v, want ErrPolicyNotFound", err)
	}
}

func TestBadgerStorePolicyNameUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddPolicy(ctx, datatypes.Policy{ID: "p1", Name: "gdpr"}); err != nil {
		t.Fatalf("AddPolicy() error: %v", err)
	}
	if err := store.AddPolicy(ctx, datatypes.Policy{ID: "p2", Name: "gdpr"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("AddPolicy(duplicate name) error = %v, want ErrDuplicateName", err)
	}

	// Renaming p1 frees the old name.
	if err := store.AddPolicy(ctx, datatypes.Policy{ID: "p1", Name: "gdpr-v2"}); err != nil {
		t.Fatalf("rename error: %v", err)
	}
	if _, err := store.GetPolicyByName(ctx, "gdpr"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("old name still resolves after rename: %v", err)
	}
	if err := store.AddPolicy(ctx, datatypes.Policy{ID: "p2", Name: "gdpr"}); err != nil {
		t.Errorf("AddPolicy() after rename error: %v", err)
	}
}

func TestBadgerStoreChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunks := []datatypes.PolicyChunk{
		{ID: "c2", PolicyID: "p1", Text: "second", Index: 1},
		{ID: "c1", PolicyID: "p1", Text: "first", Index: 0},
	}
	if err := store.AddPolicyChunks(ctx, "p1", chunks); err != nil {
		t.Fatalf("AddPolicyChunks() error: %v", err)
	}

	got, err := store.GetPolicyChunks(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPolicyChunks() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Errorf("GetPolicyChunks() = %+v, want index order [c1 c2]", got)
	}

	// Re-adding replaces the old set.
	if err := store.AddPolicyChunks(ctx, "p1", chunks[:1]); err != nil {
		t.Fatalf("AddPolicyChunks() replace error: %v", err)
	}
	got, _ = store.GetPolicyChunks(ctx, "p1")
	if len(got) != 1 {
		t.Errorf("chunk set after replace = %d entries, want 1", len(got))
	}

	removed, err := store.DeletePolicyChunks(ctx, "p1")
	if err != nil {
		t.Fatalf("DeletePolicyChunks() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeletePolicyChunks() removed %d, want 1", removed)
	}
}

func TestBadgerStoreFeedback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []datatypes.FeedbackRecord{
		{ID: "f1", DecisionID: "d1", PolicyID: "p1", Rating: datatypes.RatingUp, CreatedAt: base},
		{ID: "f2", DecisionID: "d2", PolicyID: "p1", Rating: datatypes.RatingDown, CreatedAt: base.Add(time.Hour)},
		{ID: "f3", DecisionID: "d1", PolicyID: "p2", Rating: datatypes.RatingUp, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, f := range records {
		if err := store.AddFeedback(ctx, f); err != nil {
			t.Fatalf("AddFeedback(%s) error: %v", f.ID, err)
		}
	}

	count, err := store.CountFeedback(ctx)
	if err != nil {
		t.Fatalf("CountFeedback() error: %v", err)
	}
	if count != 3 {
		t.Errorf("CountFeedback() = %d, want 3", count)
	}

	byPolicy, err := store.ListFeedback(ctx, FeedbackFilter{PolicyID: "p1"}, 0)
	if err != nil {
		t.Fatalf("ListFeedback() error: %v", err)
	}
	if len(byPolicy) != 2 || byPolicy[0].ID != "f2" || byPolicy[1].ID != "f1" {
		t.Errorf("ListFeedback(p1) = %+v, want [f2 f1] newest first", byPolicy)
	}

	byDecision, err := store.ListFeedback(ctx, FeedbackFilter{DecisionID: "d1"}, 1)
	if err != nil {
		t.Fatalf("ListFeedback() error: %v", err)
	}
	if len(byDecision) != 1 || byDecision[0].ID != "f3" {
		t.Errorf("ListFeedback(d1, limit 1) = %+v, want [f3]", byDecision)
	}

	if err := store.DeleteFeedback(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFeedback() error: %v", err)
	}
	if err := store.DeleteFeedback(ctx, "f1"); !errors.Is(err, ErrFeedbackNotFound) {
		t.Errorf("DeleteFeedback(missing) error = %v, want ErrFeedbackNotFound", err)
	}
}

func TestBadgerStoreDecisions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"d1", "d2", "d3"} {
		err := store.AddDecision(ctx, datatypes.DecisionRecord{
			ID:        id,
			AssetURI:  "asset://database.customer_email.orders_db",
			PolicyID:  "p1",
			Decision:  datatypes.DecisionInScope,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("AddDecision(%s) error: %v", id, err)
		}
	}
	err := store.AddDecision(ctx, datatypes.DecisionRecord{
		ID:        "d4",
		AssetURI:  "asset://database.order_totals.orders_db",
		PolicyID:  "p2",
		Decision:  datatypes.DecisionOutOfScope,
		CreatedAt: base.Add(4 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AddDecision(d4) error: %v", err)
	}

	got, err := store.GetDecision(ctx, "d2")
	if err != nil {
		t.Fatalf("GetDecision() error: %v", err)
	}
	if got.Decision != datatypes.DecisionInScope {
		t.Errorf("GetDecision().Decision = %v, want in-scope", got.Decision)
	}
	if _, err := store.GetDecision(ctx, "missing"); !errors.Is(err, ErrDecisionNotFound) {
		t.Errorf("GetDecision(missing) error = %v, want ErrDecisionNotFound", err)
	}

	list, err := store.ListDecisions(ctx, DecisionFilter{}, 2)
	if err != nil {
		t.Fatalf("ListDecisions() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "d4" || list[1].ID != "d3" {
		t.Errorf("ListDecisions(2) = %+v, want [d4 d3]", list)
	}

	byPolicy, err := store.ListDecisions(ctx, DecisionFilter{PolicyID: "p1"}, 0)
	if err != nil {
		t.Fatalf("ListDecisions(p1) error: %v", err)
	}
	if len(byPolicy) != 3 || byPolicy[0].ID != "d3" {
		t.Errorf("ListDecisions(p1) = %+v, want [d3 d2 d1]", byPolicy)
	}

	outOfScope, err := store.ListDecisions(ctx, DecisionFilter{Decision: datatypes.DecisionOutOfScope}, 0)
	if err != nil {
		t.Fatalf("ListDecisions(out-of-scope) error: %v", err)
	}
	if len(outOfScope) != 1 || outOfScope[0].ID != "d4" {
		t.Errorf("ListDecisions(out-of-scope) = %+v, want [d4]", outOfScope)
	}

	byAsset, err := store.ListDecisions(ctx, DecisionFilter{AssetURI: "asset://database.order_totals.orders_db"}, 0)
	if err != nil {
		t.Fatalf("ListDecisions(asset) error: %v", err)
	}
	if len(byAsset) != 1 || byAsset[0].ID != "d4" {
		t.Errorf("ListDecisions(asset) = %+v, want [d4]", byAsset)
	}
}
