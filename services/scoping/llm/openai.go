package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

// OpenAIProvider asks an OpenAI chat model (or an API-compatible local
// server) for a verdict in JSON mode.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIProvider creates a provider. An empty baseURL selects
// api.openai.com; an empty model defaults to gpt-4o-mini.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("model not set, defaulting to gpt-4o-mini")
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.1,
	}
}

// verdictPayload is the JSON shape the model is instructed to emit.
type verdictPayload struct {
	Decision            string   `json:"decision"`
	Reasoning           string   `json:"reasoning"`
	Commitments         []string `json:"referenced_commitments"`
	MissingInformation  []string `json:"missing_information"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

// Decide sends the prompts and parses the structured reply.
func (p *OpenAIProvider) Decide(ctx context.Context, systemPrompt, userPrompt string) (*datatypes.Verdict, error) {
	if systemPrompt == "" || userPrompt == "" {
		return nil, ErrEmptyPrompt
	}
	slog.Debug("requesting verdict", "model", p.model)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
	}

	return parseVerdict(resp.Choices[0].Message.Content)
}

// parseVerdict decodes the model's JSON reply, tolerating markdown
// code fences some models wrap around JSON.
func parseVerdict(content string) (*datatypes.Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	decision, err := datatypes.ParseDecision(payload.Decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if payload.Reasoning == "" {
		return nil, fmt.Errorf("%w: missing reasoning", ErrMalformedOutput)
	}

	verdict := &datatypes.Verdict{
		Decision:            decision,
		Reasoning:           payload.Reasoning,
		MissingInformation:  payload.MissingInformation,
		ClarifyingQuestions: payload.ClarifyingQuestions,
	}
	for _, name := range payload.Commitments {
		if name == "" {
			continue
		}
		verdict.Commitments = append(verdict.Commitments, datatypes.CommitmentReference{PolicyName: name})
	}
	return verdict, nil
}
