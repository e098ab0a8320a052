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
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendWeaviate = "weaviate"
)

// Config selects and configures an index backend. The backend is
// chosen once at startup; there is no runtime switching.
type Config struct {
	// Backend is "memory", "badger", or "weaviate".
	Backend string `yaml:"backend" validate:"oneof=memory badger weaviate"`

	// Path is the on-disk directory for the badger backend.
	Path string `yaml:"path,omitempty"`

	// WeaviateURL is the server URL for the weaviate backend, e.g.
	// "http://localhost:8080".
	WeaviateURL string `yaml:"weaviate_url,omitempty"`

	// WeaviateClass is the class name for the weaviate backend.
	WeaviateClass string `yaml:"weaviate_class,omitempty"`

	// MetadataKeys lists the metadata keys used in filters. Only the
	// weaviate backend needs them (to build its schema).
	MetadataKeys []string `yaml:"metadata_keys,omitempty"`
}

// New constructs the index named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Index, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryIndex(), nil

	case BackendBadger:
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger backend requires a path")
		}
		return OpenBadgerIndex(cfg.Path)

	case BackendWeaviate:
		if cfg.WeaviateURL == "" {
			return nil, fmt.Errorf("weaviate backend requires a url")
		}
		class := cfg.WeaviateClass
		if class == "" {
			class = "ScopingVector"
		}
		host, scheme := splitURL(cfg.WeaviateURL)
		client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client: %w", err)
		}
		return NewWeaviateIndex(ctx, client, class, cfg.MetadataKeys)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func splitURL(url string) (host, scheme string) {
	scheme = "http"
	host = url
	if rest, ok := strings.CutPrefix(url, "https://"); ok {
		scheme = "https"
		host = rest
	} else if rest, ok := strings.CutPrefix(url, "http://"); ok {
		host = rest
	}
	return host, scheme
}
