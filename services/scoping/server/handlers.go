// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
	"github.com/evidentia-ai/evidentia/services/scoping/ingest"
	"github.com/evidentia-ai/evidentia/services/scoping/pipeline"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
)

type decideRequest struct {
	AssetURI  string `json:"asset_uri" binding:"required"`
	PolicyID  string `json:"policy_id"`
	SessionID string `json:"session_id"`
}

type decideResponse struct {
	RunID      string                         `json:"run_id"`
	Decision   *datatypes.DecisionRecord      `json:"decision"`
	Confidence datatypes.ConfidenceAssessment `json:"confidence"`
	Errors     []string                       `json:"errors,omitempty"`
}

// handleDecide runs the full scoping pipeline for one asset.
func handleDecide(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req decideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		state := &pipeline.RunState{
			RunID:     uuid.NewString(),
			SessionID: req.SessionID,
			AssetURI:  req.AssetURI,
			PolicyID:  req.PolicyID,
		}
		slog.Info("decision requested",
			"run_id", state.RunID,
			"asset_uri", req.AssetURI,
			"policy_id", req.PolicyID)

		if err := d.Engine.Run(c.Request.Context(), state); err != nil {
			slog.Error("pipeline aborted", "run_id", state.RunID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "pipeline aborted", "run_id": state.RunID})
			return
		}

		c.JSON(http.StatusOK, decideResponse{
			RunID:      state.RunID,
			Decision:   state.Decision,
			Confidence: state.Confidence,
			Errors:     state.Errors,
		})
	}
}

func handleGetDecision(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := store.GetDecision(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrDecisionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decision"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// handleListDecisions lists stored decisions newest first, narrowed
// by the asset_uri, policy_id, and decision query parameters.
func handleListDecisions(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := storage.DecisionFilter{
			AssetURI: c.Query("asset_uri"),
			PolicyID: c.Query("policy_id"),
		}
		if v := c.Query("decision"); v != "" {
			decision, err := datatypes.ParseDecision(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Decision = decision
		}
		limit := 0
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}

		decisions, err := store.ListDecisions(c.Request.Context(), filter, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": decisions})
	}
}

type feedbackRequest struct {
	DecisionID string `json:"decision_id" binding:"required"`
	Rating     string `json:"rating" binding:"required"`
	Reason     string `json:"reason"`
	Correction string `json:"correction"`
}

// handleSubmitFeedback records a reviewer judgement on a decision.
// A down rating without a correction is a 400: the correction is
// what future runs learn from.
func handleSubmitFeedback(collector *feedback.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req feedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rating, err := datatypes.ParseRating(req.Rating)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sub := feedback.Submission{
			DecisionID: req.DecisionID,
			Rating:     rating,
			Reason:     req.Reason,
		}
		if req.Correction != "" {
			correction, err := datatypes.ParseDecision(req.Correction)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			sub.Correction = correction
		}

		rec, err := collector.Submit(c.Request.Context(), sub)
		switch {
		case errors.Is(err, feedback.ErrCorrectionRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "down rating requires a correction"})
			return
		case errors.Is(err, storage.ErrDecisionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
			return
		case err != nil:
			slog.Error("feedback submission failed", "decision_id", req.DecisionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func handleFeedbackStats(collector *feedback.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := collector.CorpusStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func handleRunState(log pipeline.CheckpointLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		cp, err := log.CurrentState(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, pipeline.ErrNoCheckpoints) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run state"})
			return
		}
		c.JSON(http.StatusOK, cp)
	}
}

func handleRunHistory(log pipeline.CheckpointLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := log.StateHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, pipeline.ErrNoCheckpoints) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "checkpoints": history})
	}
}

type ingestRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	FullText    string `json:"full_text" binding:"required"`
}

func handleIngestPolicy(ing *ingest.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := ing.IngestPolicy(c.Request.Context(), datatypes.Policy{
			ID:          req.ID,
			Name:        req.Name,
			Description: req.Description,
			Domain:      req.Domain,
			FullText:    req.FullText,
		})
		switch {
		case errors.Is(err, ingest.ErrEmptyPolicy):
			c.JSON(http.StatusBadRequest, gin.H{"error": "policy text yields no chunks"})
			return
		case errors.Is(err, storage.ErrDuplicateName):
			c.JSON(http.StatusConflict, gin.H{"error": "policy name already in use"})
			return
		case err != nil:
			slog.Error("policy ingestion failed", "name", req.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest policy"})
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

func handleListPolicies(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		policies, err := store.ListPolicies(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list policies"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"policies": policies})
	}
}
