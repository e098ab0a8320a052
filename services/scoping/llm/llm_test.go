package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    datatypes.Decision
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"decision":"in-scope","reasoning":"policy covers customer data","referenced_commitments":["data-retention"]}`,
			want:    datatypes.DecisionInScope,
		},
		{
			name:    "fenced json",
			content: "```json\n{\"decision\":\"out-of-scope\",\"reasoning\":\"no coverage\"}\n```",
			want:    datatypes.DecisionOutOfScope,
		},
		{
			name:    "unknown decision",
			content: `{"decision":"maybe","reasoning":"unsure"}`,
			wantErr: true,
		},
		{
			name:    "missing reasoning",
			content: `{"decision":"in-scope","reasoning":""}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "the asset is in scope",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("parseVerdict() error = %v, want ErrMalformedOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict() error: %v", err)
			}
			if got.Decision != tt.want {
				t.Errorf("Decision = %v, want %v", got.Decision, tt.want)
			}
		})
	}
}

func TestParseVerdictCommitments(t *testing.T) {
	got, err := parseVerdict(`{"decision":"in-scope","reasoning":"r","referenced_commitments":["a","","b"]}`)
	if err != nil {
		t.Fatalf("parseVerdict() error: %v", err)
	}
	if len(got.Commitments) != 2 {
		t.Fatalf("Commitments = %d entries, want 2 (empty dropped)", len(got.Commitments))
	}
	if got.Commitments[0].PolicyName != "a" || got.Commitments[1].PolicyName != "b" {
		t.Errorf("Commitments = %+v", got.Commitments)
	}
}

func TestBuildPrompts(t *testing.T) {
	asset, err := datatypes.ParseAssetReference("asset://database.customer_email.orders_db")
	if err != nil {
		t.Fatalf("ParseAssetReference() error: %v", err)
	}

	system, user := BuildPrompts(PromptInputs{
		Asset: asset,
		Policies: []datatypes.Policy{
			{ID: "p1", Name: "data-retention", Description: "retention limits"},
		},
		Evidence: []datatypes.Evidence{
			{PolicyID: "p1", Text: "Customer data must be deleted after 90 days.", Similarity: 0.91},
		},
		Feedback: []FeedbackContext{
			{
				Record: datatypes.FeedbackRecord{
					AssetURI:        "asset://database.old_email.orders_db",
					AgentDecision:   datatypes.DecisionInScope,
					Rating:          datatypes.RatingDown,
					HumanCorrection: datatypes.DecisionOutOfScope,
					HumanReason:     "table was decommissioned",
				},
				Similarity: 0.88,
			},
		},
		Confidence: datatypes.ConfidenceAssessment{
			Level: datatypes.ConfidenceMedium, Score: 0.72, Reasoning: "good chunk coverage",
		},
	})

	if system == "" {
		t.Fatal("system prompt is empty")
	}
	for _, want := range []string{
		"asset://database.customer_email.orders_db",
		"data-retention",
		"Customer data must be deleted after 90 days.",
		"corrected to \"out-of-scope\"",
		"table was decommissioned",
		"medium",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestBuildPromptsEmptyEvidence(t *testing.T) {
	asset, _ := datatypes.ParseAssetReference("svc://service.payments.billing")
	_, user := BuildPrompts(PromptInputs{Asset: asset})
	if !strings.Contains(user, "(no relevant passages retrieved)") {
		t.Error("user prompt does not flag missing evidence")
	}
	if !strings.Contains(user, "(none found)") {
		t.Error("user prompt does not flag missing policies")
	}
}
