// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the engine configuration with priority
// env > file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/evidentia-ai/evidentia/services/scoping/confidence"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
	"github.com/evidentia-ai/evidentia/services/scoping/ingest"
	"github.com/evidentia-ai/evidentia/services/scoping/retrieval"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

var validate = validator.New()

// Config is the full engine configuration.
//
// Thread Safety: safe to read concurrently, not safe to modify after
// Load.
type Config struct {
	// DataDir is the root directory for all local persistence
	// (record store, badger vector index, checkpoint log).
	DataDir string `yaml:"data_dir" validate:"required"`

	Server      ServerConfig       `yaml:"server"`
	VectorStore vectorstore.Config `yaml:"vectorstore"`
	Embeddings  EmbeddingsConfig   `yaml:"embeddings"`
	Model       ModelConfig        `yaml:"model"`
	Retrieval   RetrievalConfig    `yaml:"retrieval"`
	Feedback    FeedbackConfig     `yaml:"feedback"`
	Confidence  ConfidenceConfig   `yaml:"confidence"`
	Ingest      ingest.Config      `yaml:"ingest"`
	Checkpoints CheckpointConfig   `yaml:"checkpoints"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" (API-compatible endpoint) or "service"
	// (local batch-embed HTTP service).
	Provider string `yaml:"provider" validate:"oneof=openai service"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// ServiceURL is the base URL of the local embedding service,
	// used when Provider is "service".
	ServiceURL string `yaml:"service_url"`
}

// ModelConfig configures the generative-decision provider.
type ModelConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RetrievalConfig mirrors the retrieval knobs.
type RetrievalConfig struct {
	SummaryTopK      int     `yaml:"summary_top_k" validate:"min=1"`
	SummaryThreshold float64 `yaml:"summary_threshold" validate:"min=0,max=1"`
	ChunksPerPolicy  int     `yaml:"chunks_per_policy" validate:"min=1"`
	MaxChunks        int     `yaml:"max_chunks" validate:"min=1"`
}

// ToRetrieval converts to the retrieval package's config.
func (c RetrievalConfig) ToRetrieval() retrieval.Config {
	return retrieval.Config{
		SummaryTopK:      c.SummaryTopK,
		SummaryThreshold: c.SummaryThreshold,
		ChunksPerPolicy:  c.ChunksPerPolicy,
		MaxChunks:        c.MaxChunks,
	}
}

// FeedbackConfig mirrors the feedback ranking knobs.
type FeedbackConfig struct {
	TopK         int     `yaml:"top_k" validate:"min=1"`
	Threshold    float64 `yaml:"threshold" validate:"min=0,max=1"`
	RecencyAware bool    `yaml:"recency_aware"`
}

// ToFeedback converts to the feedback package's config.
func (c FeedbackConfig) ToFeedback() feedback.Config {
	return feedback.Config{TopK: c.TopK, Threshold: c.Threshold, RecencyAware: c.RecencyAware}
}

// ConfidenceConfig holds the level buckets.
type ConfidenceConfig struct {
	High   float64 `yaml:"high" validate:"min=0,max=1"`
	Medium float64 `yaml:"medium" validate:"min=0,max=1"`
	Low    float64 `yaml:"low" validate:"min=0,max=1"`
}

// ToThresholds converts to the confidence package's thresholds.
func (c ConfidenceConfig) ToThresholds() confidence.Thresholds {
	return confidence.Thresholds{High: c.High, Medium: c.Medium, Low: c.Low}
}

// CheckpointConfig selects the checkpoint log backend.
type CheckpointConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend" validate:"oneof=memory badger"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir is the directory for JSON log files. Empty disables file
	// logging.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// Default returns the production defaults.
func Default() Config {
	r := retrieval.DefaultConfig()
	f := feedback.DefaultConfig()
	t := confidence.DefaultThresholds()
	return Config{
		DataDir: "./data",
		Server: ServerConfig{
			ListenAddr:   ":8090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		VectorStore: vectorstore.Config{
			Backend: vectorstore.BackendMemory,
			MetadataKeys: []string{
				"type", "policy_id", "chunk_id", "asset_uri", "rating", "decision",
			},
		},
		Embeddings: EmbeddingsConfig{Provider: "openai"},
		Retrieval: RetrievalConfig{
			SummaryTopK:      r.SummaryTopK,
			SummaryThreshold: r.SummaryThreshold,
			ChunksPerPolicy:  r.ChunksPerPolicy,
			MaxChunks:        r.MaxChunks,
		},
		Feedback:   FeedbackConfig{TopK: f.TopK, Threshold: f.Threshold, RecencyAware: f.RecencyAware},
		Confidence: ConfidenceConfig{High: t.High, Medium: t.Medium, Low: t.Low},
		Ingest: ingest.Config{
			ChunkSize:      ingest.DefaultChunkSize,
			ChunkOverlap:   ingest.DefaultChunkOverlap,
			MinChunkLen:    ingest.DefaultMinChunkLen,
			EmbedBatchSize: 16,
		},
		Checkpoints: CheckpointConfig{Backend: "badger"},
		Logging:     LoggingConfig{Level: "info"},
	}
}

// Load reads the config with priority env > file > defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("EVIDENTIA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EVIDENTIA_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("EVIDENTIA_VECTOR_BACKEND"); v != "" {
		cfg.VectorStore.Backend = v
	}
	if v := os.Getenv("EVIDENTIA_WEAVIATE_URL"); v != "" {
		cfg.VectorStore.WeaviateURL = v
	}
	if v := os.Getenv("EVIDENTIA_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("EVIDENTIA_EMBED_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("EVIDENTIA_EMBED_SERVICE_URL"); v != "" {
		cfg.Embeddings.ServiceURL = v
	}
	if v := os.Getenv("EVIDENTIA_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("EVIDENTIA_OPENAI_BASE_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
		cfg.Model.BaseURL = v
	}
	// The dedicated variable wins over the conventional one.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("EVIDENTIA_OPENAI_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("EVIDENTIA_CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoints.Backend = v
	}
	if v := os.Getenv("EVIDENTIA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EVIDENTIA_FEEDBACK_RECENCY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Feedback.RecencyAware = b
		}
	}
}

// Validate checks struct tags plus the cross-field constraints the
// tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Confidence.High < c.Confidence.Medium || c.Confidence.Medium < c.Confidence.Low {
		return fmt.Errorf("confidence buckets must be ordered: high >= medium >= low")
	}
	if c.Embeddings.Provider == "service" && c.Embeddings.ServiceURL == "" {
		return fmt.Errorf("embeddings provider %q requires service_url", c.Embeddings.Provider)
	}
	if c.VectorStore.Backend == vectorstore.BackendWeaviate && c.VectorStore.WeaviateURL == "" {
		return fmt.Errorf("vector backend %q requires weaviate_url", c.VectorStore.Backend)
	}
	return nil
}
