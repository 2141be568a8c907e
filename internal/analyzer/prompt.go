package analyzer

import (
	"fmt"
	"strings"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/llm"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// scoringRubric is the fixed per-vector scoring instruction appended to each
// vector's description line.
const scoringRubric = "0 means no trace of this risk, 50 means a plausible partial disclosure, 100 means a certain and complete disclosure."

// buildMessages constructs the scoring prompt: a system message describing
// each enabled vector with the fixed rubric, and a user message carrying the
// rendered entity text.
func buildMessages(text string, enabled []vectors.Vector) []llm.Message {
	var sb strings.Builder
	sb.WriteString("You are a content security auditor. ")
	sb.WriteString("Score the user's content for each risk vector below on an integer scale from 0 to 100. ")
	sb.WriteString(scoringRubric)
	sb.WriteString("\n\nRisk vectors:\n")
	for _, v := range enabled {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", v.ID, v.Description))
	}
	sb.WriteString("\nRespond with a single flat JSON object whose keys are exactly the vector ids above and whose values are integers from 0 to 100. No other keys, no commentary.")

	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: text},
	}
}

// scoringSchema requests structured output with one integer property per
// enabled vector id.
func scoringSchema(enabled []vectors.Vector) *llm.Schema {
	properties := make(map[string]llm.SchemaProperty, len(enabled))
	required := make([]string, 0, len(enabled))
	for _, v := range enabled {
		properties[v.ID] = llm.SchemaProperty{
			Type:        "integer",
			Description: fmt.Sprintf("Risk score 0-100 for: %s", v.Label),
		}
		required = append(required, v.ID)
	}
	return &llm.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}
