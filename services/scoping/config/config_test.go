// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.VectorStore.Backend != "memory" {
		t.Errorf("VectorStore.Backend = %q, want memory", cfg.VectorStore.Backend)
	}
	if cfg.Retrieval.SummaryTopK != 3 || cfg.Retrieval.MaxChunks != 10 {
		t.Errorf("Retrieval = %+v, want defaults", cfg.Retrieval)
	}
	if cfg.Feedback.TopK != 5 || cfg.Feedback.Threshold != 0.70 {
		t.Errorf("Feedback = %+v, want defaults", cfg.Feedback)
	}
	if cfg.Confidence.High != 0.85 || cfg.Confidence.Medium != 0.70 || cfg.Confidence.Low != 0.50 {
		t.Errorf("Confidence = %+v, want default buckets", cfg.Confidence)
	}
	if cfg.Ingest.ChunkSize != 512 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("Ingest = %+v, want defaults", cfg.Ingest)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.Server.ListenAddr)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
data_dir: /var/lib/evidentia
server:
  listen_addr: ":9999"
vectorstore:
  backend: badger
  path: /var/lib/evidentia/vectors
feedback:
  top_k: 8
  recency_aware: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != "/var/lib/evidentia" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.Server.ListenAddr)
	}
	if cfg.VectorStore.Backend != "badger" {
		t.Errorf("Backend = %q, want badger", cfg.VectorStore.Backend)
	}
	if cfg.Feedback.TopK != 8 || !cfg.Feedback.RecencyAware {
		t.Errorf("Feedback = %+v, want top_k 8 recency-aware", cfg.Feedback)
	}
	// Untouched sections keep defaults.
	if cfg.Retrieval.SummaryThreshold != 0.6 {
		t.Errorf("SummaryThreshold = %v, want 0.6", cfg.Retrieval.SummaryThreshold)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	t.Setenv("EVIDENTIA_LISTEN_ADDR", ":7070")
	t.Setenv("EVIDENTIA_LOG_LEVEL", "debug")
	t.Setenv("EVIDENTIA_OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want env value :7070", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Embeddings.APIKey != "sk-test" || cfg.Model.APIKey != "sk-test" {
		t.Error("api key env did not reach both providers")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown vector backend", func(c *Config) { c.VectorStore.Backend = "postgres" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unordered confidence buckets", func(c *Config) { c.Confidence.Medium = 0.9 }},
		{"service provider without url", func(c *Config) { c.Embeddings.Provider = "service" }},
		{"weaviate without url", func(c *Config) { c.VectorStore.Backend = "weaviate" }},
		{"zero retrieval top k", func(c *Config) { c.Retrieval.SummaryTopK = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
