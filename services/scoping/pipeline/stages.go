// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evidentia-ai/evidentia/services/scoping/confidence"
	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
	"github.com/evidentia-ai/evidentia/services/scoping/embeddings"
	"github.com/evidentia-ai/evidentia/services/scoping/feedback"
	"github.com/evidentia-ai/evidentia/services/scoping/llm"
	"github.com/evidentia-ai/evidentia/services/scoping/retrieval"
	"github.com/evidentia-ai/evidentia/services/scoping/storage"
	"github.com/evidentia-ai/evidentia/services/scoping/vectorstore"
)

// Stage names, in execution order.
const (
	StageParseAsset        = "parse-asset"
	StageRetrieveEvidence  = "retrieve-policy-evidence"
	StageRetrieveDecisions = "retrieve-decisions"
	StageRetrieveFeedback  = "retrieve-feedback"
	StageScoreConfidence   = "score-confidence"
	StageBuildPrompt       = "build-prompt"
	StageCallModel         = "call-model"
	StagePersistDecision   = "persist-decision"
)

// Metadata values for decision vectors.
const TypeDecision = "decision"

// Deps bundles everything the default stages need.
type Deps struct {
	Store     storage.Store
	Index     vectorstore.Index
	Embedder  embeddings.Provider
	Retriever *retrieval.Retriever
	Feedback  *feedback.Processor
	Model     llm.Provider

	// Thresholds buckets the confidence score. Zero value selects
	// confidence.DefaultThresholds.
	Thresholds confidence.Thresholds

	// DecisionTopK caps retrieved similar decisions (default 3) and
	// DecisionThreshold is their similarity floor (default 0.6).
	DecisionTopK      int
	DecisionThreshold float64
}

// DefaultStages returns the production stage sequence.
func DefaultStages(d Deps) []Stage {
	if d.Thresholds == (confidence.Thresholds{}) {
		d.Thresholds = confidence.DefaultThresholds()
	}
	if d.DecisionTopK < 1 {
		d.DecisionTopK = 3
	}
	if d.DecisionThreshold <= 0 {
		d.DecisionThreshold = 0.6
	}
	return []Stage{
		&parseAssetStage{},
		&retrieveEvidenceStage{embedder: d.Embedder, retriever: d.Retriever},
		&retrieveDecisionsStage{index: d.Index, store: d.Store, topK: d.DecisionTopK, threshold: d.DecisionThreshold},
		&retrieveFeedbackStage{processor: d.Feedback},
		&scoreConfidenceStage{thresholds: d.Thresholds},
		&buildPromptStage{},
		&callModelStage{model: d.Model},
		&persistDecisionStage{store: d.Store, index: d.Index},
	}
}

// parseAssetStage decodes the asset identifier.
type parseAssetStage struct{}

func (s *parseAssetStage) Name() string { return StageParseAsset }

func (s *parseAssetStage) Run(_ context.Context, state *RunState) error {
	asset, err := datatypes.ParseAssetReference(state.AssetURI)
	if err != nil {
		return err
	}
	state.Asset = asset
	return nil
}

// retrieveEvidenceStage computes the query embedding once and gathers
// policy chunk evidence, in direct or discovery mode.
type retrieveEvidenceStage struct {
	embedder  embeddings.Provider
	retriever *retrieval.Retriever
}

func (s *retrieveEvidenceStage) Name() string { return StageRetrieveEvidence }

func (s *retrieveEvidenceStage) Run(ctx context.Context, state *RunState) error {
	var policies []datatypes.Policy

	if state.PolicyID != "" {
		p, err := s.retriever.ResolvePolicy(ctx, state.PolicyID)
		if err != nil {
			return fmt.Errorf("resolve policy %q: %w", state.PolicyID, err)
		}
		policies = []datatypes.Policy{p}
	}

	// The embedding is computed once here and reused by every later
	// stage, so decisions, feedback, and the persisted record all
	// refer to the same point in vector space.
	queryText := buildQueryText(state.AssetURI, policies)
	vector, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	state.QueryEmbedding = vector

	if len(policies) == 0 {
		policies, err = s.retriever.DiscoverPolicies(ctx, vector)
		if err != nil {
			if errors.Is(err, retrieval.ErrNoPolicies) {
				slog.Info("no candidate policies discovered", "run_id", state.RunID)
				return err
			}
			return fmt.Errorf("discover policies: %w", err)
		}
	}
	state.Policies = policies

	matches, stats, err := s.retriever.RetrieveChunks(ctx, vector, policies)
	if err != nil {
		return fmt.Errorf("retrieve chunks: %w", err)
	}
	state.Retrieval = stats
	for _, m := range matches {
		state.Evidence = append(state.Evidence, datatypes.Evidence{
			PolicyID:   m.Chunk.PolicyID,
			ChunkID:    m.Chunk.ID,
			Text:       m.Chunk.Text,
			Similarity: m.Score,
		})
	}
	return nil
}

// buildQueryText renders the text whose embedding drives all retrieval
// for the run.
func buildQueryText(assetURI string, policies []datatypes.Policy) string {
	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Asset: %s.", assetURI)
	if len(names) > 0 {
		fmt.Fprintf(&b, " Commitments/Policies: %s.", strings.Join(names, ", "))
	}
	b.WriteString(" Determine if asset is in-scope or out-of-scope.")
	return b.String()
}

// retrieveDecisionsStage finds prior decisions near the query, used as
// precedent in the prompt.
type retrieveDecisionsStage struct {
	index     vectorstore.Index
	store     storage.Store
	topK      int
	threshold float64
}

func (s *retrieveDecisionsStage) Name() string { return StageRetrieveDecisions }

func (s *retrieveDecisionsStage) Run(ctx context.Context, state *RunState) error {
	if len(state.QueryEmbedding) == 0 {
		return errors.New("no query embedding available")
	}

	results, err := s.index.Search(ctx, vectorstore.Query{
		Vector:         state.QueryEmbedding,
		TopK:           s.topK,
		Filter:         map[string]string{retrieval.MetaType: TypeDecision},
		ScoreThreshold: s.threshold,
	})
	if err != nil {
		return fmt.Errorf("search decisions: %w", err)
	}

	for _, res := range results {
		rec, err := s.store.GetDecision(ctx, res.ID)
		if err != nil {
			slog.Warn("decision vector references missing record",
				"decision_id", res.ID, "error", err)
			continue
		}
		state.SimilarDecisions = append(state.SimilarDecisions, datatypes.SimilarDecision{
			DecisionID: rec.ID,
			AssetURI:   rec.AssetURI,
			Decision:   rec.Decision,
			Similarity: res.Score,
		})
	}
	return nil
}

// retrieveFeedbackStage pulls ranked reviewer feedback for the query.
type retrieveFeedbackStage struct {
	processor *feedback.Processor
}

func (s *retrieveFeedbackStage) Name() string { return StageRetrieveFeedback }

func (s *retrieveFeedbackStage) Run(ctx context.Context, state *RunState) error {
	if len(state.QueryEmbedding) == 0 {
		return errors.New("no query embedding available")
	}

	policyID := ""
	if len(state.Policies) == 1 {
		policyID = state.Policies[0].ID
	}

	ranked, stats, err := s.processor.Retrieve(ctx, state.QueryEmbedding, policyID)
	if err != nil {
		return err
	}
	state.Feedback = ranked
	state.FeedbackStats = stats
	return nil
}

// scoreConfidenceStage computes the evidence confidence. It is a pure
// computation and cannot fail.
type scoreConfidenceStage struct {
	thresholds confidence.Thresholds
}

func (s *scoreConfidenceStage) Name() string { return StageScoreConfidence }

func (s *scoreConfidenceStage) Run(_ context.Context, state *RunState) error {
	in := confidence.Inputs{
		Retrieval: state.Retrieval,
		Feedback:  state.FeedbackStats,
	}
	for _, r := range state.Feedback {
		in.FeedbackDecisions = append(in.FeedbackDecisions, r.Record.AgentDecision)
		in.FeedbackRatings = append(in.FeedbackRatings, r.Record.Rating)
	}
	state.Confidence = confidence.Score(in, s.thresholds)
	return nil
}

// buildPromptStage renders the prompts from the gathered evidence.
type buildPromptStage struct{}

func (s *buildPromptStage) Name() string { return StageBuildPrompt }

func (s *buildPromptStage) Run(_ context.Context, state *RunState) error {
	in := llm.PromptInputs{
		Asset:            state.Asset,
		Policies:         state.Policies,
		Evidence:         state.Evidence,
		SimilarDecisions: state.SimilarDecisions,
		Confidence:       state.Confidence,
	}
	for _, r := range state.Feedback {
		in.Feedback = append(in.Feedback, llm.FeedbackContext{
			Record:     r.Record,
			Similarity: r.Similarity,
		})
	}
	state.SystemPrompt, state.UserPrompt = llm.BuildPrompts(in)
	return nil
}

// callModelStage asks the model for a verdict.
type callModelStage struct {
	model llm.Provider
}

func (s *callModelStage) Name() string { return StageCallModel }

func (s *callModelStage) Run(ctx context.Context, state *RunState) error {
	if state.SystemPrompt == "" || state.UserPrompt == "" {
		return llm.ErrEmptyPrompt
	}

	verdict, err := s.model.Decide(ctx, state.SystemPrompt, state.UserPrompt)
	if err != nil {
		return err
	}

	// Resolve commitment names the model cited against the candidate
	// policies; unknown names are kept by name only.
	for i, c := range verdict.Commitments {
		for _, p := range state.Policies {
			if p.Name == c.PolicyName {
				verdict.Commitments[i].PolicyID = p.ID
				break
			}
		}
	}
	verdict.Evidence = state.Evidence
	state.Verdict = verdict
	return nil
}

// persistDecisionStage writes the decision record and indexes its
// vector so future runs can retrieve it as precedent. It always runs,
// so even a failed run leaves an auditable record.
type persistDecisionStage struct {
	store storage.Store
	index vectorstore.Index
}

func (s *persistDecisionStage) Name() string { return StagePersistDecision }

func (s *persistDecisionStage) Run(ctx context.Context, state *RunState) error {
	rec := datatypes.DecisionRecord{
		ID:             uuid.NewString(),
		RunID:          state.RunID,
		AssetURI:       state.AssetURI,
		Decision:       datatypes.DecisionInsufficientData,
		QueryEmbedding: state.QueryEmbedding,
		Confidence:     state.Confidence,
		Evidence:       state.Evidence,
		Similar:        state.SimilarDecisions,
		Errors:         state.Errors,
		CreatedAt:      time.Now().UTC(),
	}
	if len(state.Policies) == 1 {
		rec.PolicyID = state.Policies[0].ID
	}
	if state.Verdict != nil {
		rec.Decision = state.Verdict.Decision
		rec.Reasoning = state.Verdict.Reasoning
		rec.Referenced = state.Verdict.Commitments
	} else {
		rec.Reasoning = "pipeline completed without a model verdict"
	}

	if err := s.store.AddDecision(ctx, rec); err != nil {
		return fmt.Errorf("store decision: %w", err)
	}
	state.Decision = &rec

	if len(state.QueryEmbedding) == 0 {
		// Nothing to index; the record is still persisted.
		return nil
	}
	err := s.index.Add(ctx, vectorstore.Document{
		ID:     rec.ID,
		Vector: state.QueryEmbedding,
		Metadata: map[string]string{
			retrieval.MetaType: TypeDecision,
			"asset_uri":        rec.AssetURI,
			"decision":         string(rec.Decision),
		},
	})
	if err != nil {
		return fmt.Errorf("index decision: %w", err)
	}
	return nil
}
