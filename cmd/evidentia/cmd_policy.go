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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

// runPolicyIngest is the CLI handler for "evidentia policy ingest".
//
// It reads the policy document from disk, then chunks, embeds, and
// indexes it. Re-using an id replaces every chunk and the summary of
// the previous generation before the new ones are written.
func runPolicyIngest(cmd *cobra.Command, args []string) {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	name := policyName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	result, err := a.ingestor.IngestPolicy(ctx, datatypes.Policy{
		ID:       policyID,
		Name:     name,
		Domain:   policyDomain,
		FullText: string(data),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Ingested %q as %s (%d chunks", name, result.PolicyID, result.Chunks)
	if result.ReplacedChunks > 0 {
		fmt.Printf(", replaced %d", result.ReplacedChunks)
	}
	fmt.Println(")")
}

// runPolicyList is the CLI handler for "evidentia policy list".
func runPolicyList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	policies, err := a.store.ListPolicies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(policies) == 0 {
		fmt.Println("No policies ingested.")
		return
	}
	for _, p := range policies {
		fmt.Printf("%-36s  %-30s  %s\n", p.ID, p.Name, p.Description)
	}
}

// runPolicyRemove is the CLI handler for "evidentia policy remove".
func runPolicyRemove(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.ingestor.RemovePolicy(ctx, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed policy %s\n", args[0])
}
