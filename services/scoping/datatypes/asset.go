// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the domain model shared across the scoping
// engine: asset references, policies and their chunks, feedback records,
// decision records, and the structured verdict returned by the
// generative-decision provider.
package datatypes

import (
	"fmt"
	"strings"
)

// AssetReference is a parsed asset identifier.
//
// Asset identifiers have the form "scheme://type.descriptor.domain",
// for example "asset://database.customer_email.orders_db". The three
// dot-separated segments after the scheme are mandatory; anything else
// is a parse error, never a silent default.
//
// An AssetReference is immutable once parsed.
type AssetReference struct {
	// Raw is the full identifier as supplied by the caller.
	Raw string `json:"raw"`

	// Type is the first segment (e.g., "database", "service").
	Type string `json:"type"`

	// Descriptor is the second segment (e.g., "customer_email").
	Descriptor string `json:"descriptor"`

	// Domain is the third segment (e.g., "orders_db").
	Domain string `json:"domain"`
}

// ParseAssetReference parses an asset identifier string.
//
// Inputs:
//
//	uri - Identifier of the form "scheme://type.descriptor.domain".
//
// Outputs:
//
//	AssetReference - The parsed reference.
//	error - Non-nil if the scheme is missing or the path does not have
//	        exactly three non-empty dot-separated segments.
func ParseAssetReference(uri string) (AssetReference, error) {
	_, path, found := strings.Cut(uri, "://")
	if !found {
		return AssetReference{}, fmt.Errorf(
			"invalid asset identifier %q: expected scheme://type.descriptor.domain", uri)
	}

	parts := strings.Split(path, ".")
	if len(parts) != 3 {
		return AssetReference{}, fmt.Errorf(
			"invalid asset identifier %q: expected exactly 3 segments (type.descriptor.domain), got %d",
			uri, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return AssetReference{}, fmt.Errorf(
				"invalid asset identifier %q: empty segment", uri)
		}
	}

	return AssetReference{
		Raw:        uri,
		Type:       parts[0],
		Descriptor: parts[1],
		Domain:     parts[2],
	}, nil
}
