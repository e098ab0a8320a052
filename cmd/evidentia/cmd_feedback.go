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

	"github.com/spf13/cobra"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
)

// runFeedbackSubmit is the CLI handler for "evidentia feedback submit".
//
// A down rating must carry --correction so future runs learn what the
// right decision was.
func runFeedbackSubmit(cmd *cobra.Command, args []string) {
	rating, err := datatypes.ParseRating(feedbackRating)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var correction datatypes.Decision
	if feedbackCorrection != "" {
		correction, err = datatypes.ParseDecision(feedbackCorrection)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	rec, err := a.collector.Submit(ctx, feedback.Submission{
		DecisionID: args[0],
		Rating:     rating,
		Reason:     feedbackReason,
		Correction: correction,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded %s feedback %s on decision %s\n", rec.Rating, rec.ID, rec.DecisionID)
}

// runFeedbackStats is the CLI handler for "evidentia feedback stats".
func runFeedbackStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.collector.CorpusStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Feedback records: %d\n", stats.Total)
	fmt.Printf("  Up:             %d\n", stats.Up)
	fmt.Printf("  Down:           %d\n", stats.Down)
	if stats.Total > 0 {
		fmt.Printf("  Agent accuracy: %.1f%%\n", stats.Accuracy*100)
	}
}
