// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/evidentia-ai/evidentia/services/scoping/config"
	"github.com/evidentia-ai/evidentia/services/scoping/embeddings"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
	"github.com/evidentia-ai/evidentia/services/scoping/ingest"
	"github.com/evidentia-ai/evidentia/services/scoping/llm"
	"github.com/evidentia-ai/evidentia/services/scoping/pipeline"
	"github.com/evidentia-ai/evidentia/services/scoping/retrieval"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/storage/badgerdb"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

// app wires the full engine from one Config. Every command that
// touches the pipeline builds one, uses it, and closes it.
type app struct {
	cfg config.Config

	db    *badgerdb.DB
	store storage.Store
	index vectorstore.Index

	embedder  embeddings.Provider
	model     llm.Provider
	retriever *retrieval.Retriever
	processor *feedback.Processor
	collector *feedback.Collector
	ingestor  *ingest.Ingestor

	checkpoints pipeline.CheckpointLog
	engine      *pipeline.Engine
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := badgerdb.Open(badgerdb.Config{
		Path:           filepath.Join(cfg.DataDir, "store"),
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	store := storage.NewBadgerStore(db)

	vcfg := cfg.VectorStore
	if vcfg.Backend == vectorstore.BackendBadger && vcfg.Path == "" {
		vcfg.Path = filepath.Join(cfg.DataDir, "vectors")
	}
	index, err := vectorstore.New(ctx, vcfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	var embedder embeddings.Provider
	switch cfg.Embeddings.Provider {
	case "service":
		embedder = embeddings.NewServiceProvider(cfg.Embeddings.ServiceURL)
	default:
		embedder = embeddings.NewOpenAIProvider(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL, cfg.Embeddings.Model)
	}
	model := llm.NewOpenAIProvider(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Model)

	retriever := retrieval.NewRetriever(index, store, cfg.Retrieval.ToRetrieval())
	processor := feedback.NewProcessor(index, store, cfg.Feedback.ToFeedback())

	var checkpoints pipeline.CheckpointLog
	if cfg.Checkpoints.Backend == "memory" {
		checkpoints = pipeline.NewMemoryCheckpointLog()
	} else {
		checkpoints = pipeline.NewBadgerCheckpointLog(db)
	}

	engine, err := pipeline.NewEngine(pipeline.DefaultStages(pipeline.Deps{
		Store:      store,
		Index:      index,
		Embedder:   embedder,
		Retriever:  retriever,
		Feedback:   processor,
		Model:      model,
		Thresholds: cfg.Confidence.ToThresholds(),
	}), checkpoints)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		db:          db,
		store:       store,
		index:       index,
		embedder:    embedder,
		model:       model,
		retriever:   retriever,
		processor:   processor,
		collector:   feedback.NewCollector(index, store),
		ingestor:    ingest.NewIngestor(store, index, embedder, retriever, cfg.Ingest),
		checkpoints: checkpoints,
		engine:      engine,
	}, nil
}

// Close releases the index (when it holds resources) and the record
// store. Safe to call once per app.
func (a *app) Close() error {
	var errs []error
	if closer, ok := a.index.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
