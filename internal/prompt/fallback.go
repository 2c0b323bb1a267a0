package prompt

import (
	"fmt"
	"strings"
)

const fallbackRatingSystemPrompt = `You are an expert business analyst. Select the most relevant experts for a startup idea and simulate their feedback: a 0-10 rating, a sentiment (positive/neutral/cautious), one key insight and why each expert is relevant. Be realistic and critical.`

// FallbackRatingUserPrompt renders the rating prompt without templates.
func FallbackRatingUserPrompt(data RatingPromptData) string {
	var experts strings.Builder
	for _, e := range data.Experts {
		fmt.Fprintf(&experts, "%d. %s (ID: %s)\n   Industry: %s\n   Expertise: %s\n   Location: %s\n",
			e.Number, e.Name, e.ID, e.Industry, strings.Join(e.Expertise, ", "), e.Location)
	}

	var material strings.Builder
	for _, a := range data.Attachments {
		fmt.Fprintf(&material, "--- %s ---\n%s\n", a.Name, a.Content)
	}
	if material.Len() > 0 {
		material.WriteString("\n")
	}

	return fmt.Sprintf(`Startup Idea: "%s"

%sAvailable Experts:
%s
Please select up to %d most relevant experts and provide their analysis.

Respond in JSON format:
{"selected_experts": [{"persona_id": "expert_id", "relevance_score": 0.95, "reasoning": "...", "rating": 7.5, "sentiment": "positive|neutral|cautious", "key_insight": "..."}]}`,
		data.Idea,
		material.String(),
		experts.String(),
		data.MaxPersonas,
	)
}
