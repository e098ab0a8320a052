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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateIndex is a similarity index backed by a managed Weaviate
// instance.
//
// # Description
//
// Documents are stored in a dedicated class with pre-computed vectors
// (vectorizer "none"). Weaviate returns certainty in [0,1]; the index
// converts it back to cosine similarity (certainty*2-1) and re-sorts
// results client-side by score then insertion order, so callers see
// the same ordering contract as the local backends.
//
// Metadata keys must be GraphQL-identifier safe (letters, digits,
// underscore) because each key becomes a filterable class property.
//
// # Thread Safety
//
// WeaviateIndex is safe for concurrent use. The underlying client
// handles connection pooling.
type WeaviateIndex struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateIndex creates an index over the given class, creating the
// class schema if it does not exist yet.
//
// Inputs:
//
//	ctx - Context for the schema check.
//	client - Connected Weaviate client.
//	class - Class name, e.g. "ScopingVector". Must start with an
//	        uppercase letter per Weaviate naming rules.
//	metadataKeys - Metadata keys that will be used in filters. Each
//	               becomes an indexed text property.
func NewWeaviateIndex(ctx context.Context, client *weaviate.Client, class string, metadataKeys []string) (*WeaviateIndex, error) {
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("check class %s: %w", class, err)
	}
	if !exists {
		props := []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "seq", DataType: []string{"int"}},
			{Name: "metadataJson", DataType: []string{"text"}},
		}
		for _, key := range metadataKeys {
			props = append(props, &models.Property{
				Name:     metadataProperty(key),
				DataType: []string{"text"},
			})
		}
		err := client.Schema().ClassCreator().WithClass(&models.Class{
			Class:      class,
			Vectorizer: "none",
			Properties: props,
		}).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("create class %s: %w", class, err)
		}
	}
	return &WeaviateIndex{client: client, class: class}, nil
}

// metadataProperty maps a metadata key to its class property name.
func metadataProperty(key string) string {
	return "meta_" + key
}

// weaviateObjectID derives a stable UUID from a document ID so upserts
// land on the same object.
func weaviateObjectID(docID string) strfmt.UUID {
	hash := sha256.Sum256([]byte(docID))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}

// Add batch-inserts documents. Re-adding an existing document ID
// overwrites the object in place and keeps its insertion sequence.
func (w *WeaviateIndex) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	objects := make([]*models.Object, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			return ErrEmptyVector
		}
		seq, err := w.existingSeq(ctx, doc.ID)
		if err != nil {
			return err
		}
		if seq == 0 {
			seq = time.Now().UnixNano()
		}
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}
		properties := map[string]interface{}{
			"docId":        doc.ID,
			"seq":          seq,
			"metadataJson": string(metaJSON),
		}
		for k, v := range doc.Metadata {
			properties[metadataProperty(k)] = v
		}
		objects = append(objects, &models.Object{
			Class:      w.class,
			ID:         weaviateObjectID(doc.ID),
			Vector:     doc.Vector,
			Properties: properties,
		})
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch insert: %w", err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch insert: %s", item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// existingSeq returns the stored insertion sequence for a document ID,
// or 0 if the object does not exist.
func (w *WeaviateIndex) existingSeq(ctx context.Context, docID string) (int64, error) {
	objs, err := w.client.Data().ObjectsGetter().
		WithClassName(w.class).
		WithID(string(weaviateObjectID(docID))).
		Do(ctx)
	if err != nil {
		if isWeaviateNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup %s: %w", docID, err)
	}
	if len(objs) == 0 {
		return 0, nil
	}
	props, ok := objs[0].Properties.(map[string]interface{})
	if !ok {
		return 0, nil
	}
	if seq, ok := props["seq"].(float64); ok {
		return int64(seq), nil
	}
	return 0, nil
}

func isWeaviateNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

// Search runs a NearVector query and re-sorts results client-side.
func (w *WeaviateIndex) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)
	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "seq"},
		{Name: "metadataJson"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	query := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(q.TopK)
	if where := buildWhere(q.Filter); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	type scored struct {
		res Result
		seq int64
	}
	var matches []scored

	getMap, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	items, ok := getMap[w.class].([]interface{})
	if !ok {
		return nil, nil
	}
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		docID, _ := item["docId"].(string)
		seq, _ := item["seq"].(float64)
		var certainty float64
		if add, ok := item["_additional"].(map[string]interface{}); ok {
			certainty, _ = add["certainty"].(float64)
		}
		// Weaviate certainty = (cosine + 1) / 2.
		score := certainty*2 - 1
		if q.ScoreThreshold > 0 && score < q.ScoreThreshold {
			continue
		}
		var metadata map[string]string
		if metaJSON, ok := item["metadataJson"].(string); ok && metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", docID, err)
			}
		}
		matches = append(matches, scored{
			res: Result{ID: docID, Score: score, Metadata: metadata},
			seq: int64(seq),
		})
	}

	// Weaviate orders by distance only; restore the deterministic
	// score-then-insertion ordering.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].res.Score != matches[j].res.Score {
			return matches[i].res.Score > matches[j].res.Score
		}
		return matches[i].seq < matches[j].seq
	})

	results := make([]Result, len(matches))
	for i, s := range matches {
		results[i] = s.res
	}
	return results, nil
}

func buildWhere(filter map[string]string) *filters.WhereBuilder {
	if len(filter) == 0 {
		return nil
	}
	operands := make([]*filters.WhereBuilder, 0, len(filter))
	for k, v := range filter {
		operands = append(operands, filters.Where().
			WithPath([]string{metadataProperty(k)}).
			WithOperator(filters.Equal).
			WithValueText(v))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// GetByID fetches a document, including its vector.
func (w *WeaviateIndex) GetByID(ctx context.Context, id string) (Document, error) {
	objs, err := w.client.Data().ObjectsGetter().
		WithClassName(w.class).
		WithID(string(weaviateObjectID(id))).
		WithVector().
		Do(ctx)
	if err != nil {
		if isWeaviateNotFound(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("weaviate get %s: %w", id, err)
	}
	if len(objs) == 0 {
		return Document{}, ErrNotFound
	}

	doc := Document{ID: id, Vector: objs[0].Vector}
	if props, ok := objs[0].Properties.(map[string]interface{}); ok {
		if metaJSON, ok := props["metadataJson"].(string); ok && metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
				return Document{}, fmt.Errorf("decode metadata for %s: %w", id, err)
			}
		}
	}
	return doc, nil
}

// DeleteByID removes a document. Absent IDs are a no-op.
func (w *WeaviateIndex) DeleteByID(ctx context.Context, id string) error {
	err := w.client.Data().Deleter().
		WithClassName(w.class).
		WithID(string(weaviateObjectID(id))).
		Do(ctx)
	if err != nil && !isWeaviateNotFound(err) {
		return fmt.Errorf("weaviate delete %s: %w", id, err)
	}
	return nil
}

// DeleteByFilter batch-deletes every document matching the metadata
// filter. An empty filter deletes nothing; use the schema API to drop
// a whole class.
func (w *WeaviateIndex) DeleteByFilter(ctx context.Context, filter map[string]string) (int, error) {
	where := buildWhere(filter)
	if where == nil {
		return 0, nil
	}
	resp, err := w.client.Batch().ObjectsBatchDeleter().
		WithClassName(w.class).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate batch delete: %w", err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	return int(resp.Results.Successful), nil
}

// Count returns the number of objects in the class matching the
// filter.
func (w *WeaviateIndex) Count(ctx context.Context, filter map[string]string) (int, error) {
	agg := w.client.GraphQL().Aggregate().
		WithClassName(w.class).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		})
	if where := buildWhere(filter); where != nil {
		agg = agg.WithWhere(where)
	}
	result, err := agg.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate count: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate count: %s", result.Errors[0].Message)
	}

	aggMap, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := aggMap[w.class].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// Close is a no-op; the Weaviate client does not hold local resources.
func (w *WeaviateIndex) Close() error {
	return nil
}
