package llm

import (
	"fmt"
	"strings"

	"github.com/evidentia-ai/evidentia/services/scoping/datatypes"
)

const systemPrompt = `You are a data governance analyst. You decide whether a named data asset falls within the scope of governance policies, based only on the evidence provided.

Respond with a single JSON object:
{
  "decision": "in-scope" | "out-of-scope" | "insufficient-data",
  "reasoning": "<2-4 sentences citing the evidence>",
  "referenced_commitments": ["<policy name>", ...],
  "missing_information": ["<what would change the decision>", ...],
  "clarifying_questions": ["<question for the data owner>", ...]
}

Only populate missing_information and clarifying_questions for an insufficient-data decision.

Rules:
- "in-scope" only when the policy evidence covers the asset's type, descriptor, or domain.
- "out-of-scope" when the evidence shows the policies do not apply.
- "insufficient-data" when the evidence is too thin or contradictory to decide.
- Weigh prior human feedback heavily: reviewers correcting past decisions know the organization better than the text alone.`

// FeedbackContext is one prior judgement summarized for the prompt.
type FeedbackContext struct {
	Record     datatypes.FeedbackRecord
	Similarity float64
}

// PromptInputs is the evidence assembled by the pipeline.
type PromptInputs struct {
	Asset            datatypes.AssetReference
	Policies         []datatypes.Policy
	Evidence         []datatypes.Evidence
	SimilarDecisions []datatypes.SimilarDecision
	Feedback         []FeedbackContext
	Confidence       datatypes.ConfidenceAssessment
}

// BuildPrompts renders the system and user prompts for a run.
func BuildPrompts(in PromptInputs) (string, string) {
	var b strings.Builder

	fmt.Fprintf(&b, "## Asset\nURI: %s\nType: %s\nDescriptor: %s\nDomain: %s\n",
		in.Asset.Raw, in.Asset.Type, in.Asset.Descriptor, in.Asset.Domain)

	b.WriteString("\n## Candidate policies\n")
	if len(in.Policies) == 0 {
		b.WriteString("(none found)\n")
	}
	for _, p := range in.Policies {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
	}

	b.WriteString("\n## Policy evidence\n")
	if len(in.Evidence) == 0 {
		b.WriteString("(no relevant passages retrieved)\n")
	}
	for i, ev := range in.Evidence {
		fmt.Fprintf(&b, "[%d] (policy %s, similarity %.2f)\n%s\n", i+1, ev.PolicyID, ev.Similarity, ev.Text)
	}

	if len(in.SimilarDecisions) > 0 {
		b.WriteString("\n## Similar past decisions\n")
		for _, d := range in.SimilarDecisions {
			fmt.Fprintf(&b, "- %s was decided %s (similarity %.2f)\n", d.AssetURI, d.Decision, d.Similarity)
		}
	}

	if len(in.Feedback) > 0 {
		b.WriteString("\n## Prior human feedback\n")
		for _, f := range in.Feedback {
			rec := f.Record
			fmt.Fprintf(&b, "- %s rated %s on decision %q", rec.AssetURI, rec.Rating, rec.AgentDecision)
			if rec.Rating == datatypes.RatingDown && rec.HumanCorrection != "" {
				fmt.Fprintf(&b, "; corrected to %q", rec.HumanCorrection)
			}
			if rec.HumanReason != "" {
				fmt.Fprintf(&b, " (%s)", rec.HumanReason)
			}
			fmt.Fprintf(&b, " [similarity %.2f]\n", f.Similarity)
		}
	}

	fmt.Fprintf(&b, "\n## Evidence confidence\nLevel: %s (score %.2f)\n%s\n",
		in.Confidence.Level, in.Confidence.Score, in.Confidence.Reasoning)

	b.WriteString("\nDecide whether the asset is in scope of the candidate policies.")
	return systemPrompt, b.String()
}
