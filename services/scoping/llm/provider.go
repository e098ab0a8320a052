// Package llm turns the assembled evidence into a final scoping
// verdict by asking a chat model for a structured JSON answer.
package llm

import (
	"context"
	"errors"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

// ErrMalformedOutput is returned when the model's reply cannot be
// parsed into a verdict.
var ErrMalformedOutput = errors.New("llm: model returned malformed output")

// ErrEmptyPrompt is returned when Decide is called without prompts.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

// Provider produces a scoping verdict from assembled prompts.
type Provider interface {
	Decide(ctx context.Context, systemPrompt, userPrompt string) (*datatypes.Verdict, error)
}
