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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	decidePolicyID  string
	decideSessionID string
	decideJSON      bool

	policyID     string
	policyName   string
	policyDomain string

	feedbackRating     string
	feedbackReason     string
	feedbackCorrection string

	rootCmd = &cobra.Command{
		Use:   "evidentia",
		Short: "A cli to run and manage the Evidentia governance scoping engine",
		Long: `Evidentia decides whether a named data asset falls in scope of your
				governance policies, backed by retrieved policy evidence, prior
				decisions, and reviewer feedback.`,
	}

	// --- Serve ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Decide ---
	decideCmd = &cobra.Command{
		Use:   "decide [asset-uri]",
		Short: "Run a scoping decision for a single data asset",
		Args:  cobra.ExactArgs(1),
		Run:   runDecide, // Defined in cmd_decide.go
	}

	// ingestCmd is a simplified alias for policy ingest
	ingestCmd = &cobra.Command{
		Use:     "ingest [file]",
		Short:   "Ingest a policy document (alias for policy ingest)",
		Aliases: []string{"i"},
		Args:    cobra.ExactArgs(1),
		Run:     runPolicyIngest,
	}

	// --- Policies ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Manage the policy corpus the engine retrieves evidence from",
	}
	policyIngestCmd = &cobra.Command{
		Use:   "ingest [file]",
		Short: "Chunk, embed, and index a policy document",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyIngest, // Defined in cmd_policy.go
	}
	policyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all ingested policies",
		Run:   runPolicyList, // Defined in cmd_policy.go
	}
	policyRemoveCmd = &cobra.Command{
		Use:   "remove [policy-id]",
		Short: "Remove a policy and all its indexed chunks",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyRemove, // Defined in cmd_policy.go
	}

	// --- Feedback ---
	feedbackCmd = &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect reviewer feedback on decisions",
	}
	feedbackSubmitCmd = &cobra.Command{
		Use:   "submit [decision-id]",
		Short: "Record a reviewer judgement on a stored decision",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackSubmit, // Defined in cmd_feedback.go
	}
	feedbackStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Summarize the feedback corpus",
		Run:   runFeedbackStats, // Defined in cmd_feedback.go
	}

	// --- Runs ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Inspect pipeline run checkpoints",
	}
	runHistoryCmd = &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show every checkpoint recorded for a run",
		Args:  cobra.ExactArgs(1),
		Run:   runRunHistory, // Defined in cmd_decide.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().StringVar(&decidePolicyID, "policy", "",
		"Check against one policy (id or name) instead of discovering candidates")
	decideCmd.Flags().StringVar(&decideSessionID, "session", "", "Session id to group related runs")
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "Print the full run state as JSON")

	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&policyID, "id", "", "Policy id. Re-using an id replaces the previous generation.")
	ingestCmd.Flags().StringVar(&policyName, "name", "", "Policy name. Defaults to the file name.")
	ingestCmd.Flags().StringVar(&policyDomain, "domain", "", "Governance domain, e.g. privacy or security")

	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyIngestCmd)
	policyIngestCmd.Flags().StringVar(&policyID, "id", "", "Policy id. Re-using an id replaces the previous generation.")
	policyIngestCmd.Flags().StringVar(&policyName, "name", "", "Policy name. Defaults to the file name.")
	policyIngestCmd.Flags().StringVar(&policyDomain, "domain", "", "Governance domain, e.g. privacy or security")
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyRemoveCmd)

	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackSubmitCmd)
	feedbackSubmitCmd.Flags().StringVar(&feedbackRating, "rating", "", "Judgement: up or down (required)")
	feedbackSubmitCmd.Flags().StringVar(&feedbackReason, "reason", "", "Why the decision was right or wrong")
	feedbackSubmitCmd.Flags().StringVar(&feedbackCorrection, "correction", "",
		"The right decision (in-scope, out-of-scope, insufficient-data). Required for down ratings.")
	_ = feedbackSubmitCmd.MarkFlagRequired("rating")
	feedbackCmd.AddCommand(feedbackStatsCmd)

	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runHistoryCmd)
}
