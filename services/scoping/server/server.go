// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the scoping engine over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
	"github.com/evidentia-ai/evidentia/services/scoping/ingest"
	"github.com/evidentia-ai/evidentia/services/scoping/pipeline"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
)

// Deps is everything the HTTP API operates on.
type Deps struct {
	Engine      *pipeline.Engine
	Store       storage.Store
	Collector   *feedback.Collector
	Ingestor    *ingest.Ingestor
	Checkpoints pipeline.CheckpointLog
}

// NewRouter builds the gin router with all API routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/decisions", handleDecide(d))
		v1.GET("/decisions", handleListDecisions(d.Store))
		v1.GET("/decisions/:id", handleGetDecision(d.Store))
		v1.POST("/feedback", handleSubmitFeedback(d.Collector))
		v1.GET("/feedback/stats", handleFeedbackStats(d.Collector))
		v1.GET("/runs/:id/state", handleRunState(d.Checkpoints))
		v1.GET("/runs/:id/history", handleRunHistory(d.Checkpoints))
		v1.POST("/policies", handleIngestPolicy(d.Ingestor))
		v1.GET("/policies", handleListPolicies(d.Store))
	}
	return router
}

// NewServer wraps the router in an http.Server with timeouts.
func NewServer(addr string, d Deps, readTimeout, writeTimeout time.Duration) *http.Server {
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(d),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
