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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/evidentia-ai/evidentia/services/scoping/pipeline"
)

// runDecide is the CLI handler for "evidentia decide [asset-uri]".
//
// It runs the full scoping pipeline once and prints the decision. With
// --json the entire terminal run state is printed instead, including
// evidence, similar decisions, and per-stage telemetry.
func runDecide(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	state := &pipeline.RunState{
		RunID:     uuid.NewString(),
		SessionID: decideSessionID,
		AssetURI:  args[0],
		PolicyID:  decidePolicyID,
	}
	if err := a.engine.Run(ctx, state); err != nil {
		fmt.Fprintf(os.Stderr, "Error: pipeline aborted: %v\n", err)
		os.Exit(1)
	}

	if decideJSON {
		if err := outputJSON(state); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Run:        %s\n", state.RunID)
	if state.Decision != nil {
		fmt.Printf("Decision:   %s\n", state.Decision.Decision)
		fmt.Printf("Record:     %s\n", state.Decision.ID)
	}
	fmt.Printf("Confidence: %.2f (%s)\n", state.Confidence.Score, state.Confidence.Level)
	if state.Decision != nil && state.Decision.Reasoning != "" {
		fmt.Printf("Reasoning:  %s\n", state.Decision.Reasoning)
	}
	for _, ref := range referencedNames(state) {
		fmt.Printf("Policy:     %s\n", ref)
	}
	if state.Failed() {
		fmt.Println("Stage errors:")
		for _, e := range state.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// referencedNames lists the policies the decision cited.
func referencedNames(state *pipeline.RunState) []string {
	if state.Decision == nil {
		return nil
	}
	names := make([]string, 0, len(state.Decision.Referenced))
	for _, ref := range state.Decision.Referenced {
		if ref.PolicyName != "" {
			names = append(names, ref.PolicyName)
		} else {
			names = append(names, ref.PolicyID)
		}
	}
	return names
}

// runRunHistory is the CLI handler for "evidentia run history [run-id]".
func runRunHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	history, err := a.checkpoints.StateHistory(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, cp := range history {
		fmt.Printf("%2d  %-28s %s", cp.Seq, cp.Stage, cp.RecordedAt.Format("2006-01-02T15:04:05.000Z07:00"))
		if ms, ok := cp.State.Telemetry[cp.Stage]; ok {
			fmt.Printf("  %.1fms", ms)
		}
		fmt.Println()
	}
}
