package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/communitykit/companion/llm"
)

const analysisPrompt = `Analyze the following agent interactions and assess the agent's performance.

%s

Respond with a JSON object only, no surrounding prose:
{
  "analysis": "overall assessment in two or three sentences",
  "insights": ["specific observations about what worked or did not"],
  "recommendations": ["concrete changes to improve future interactions"],
  "metrics": {
    "response_quality_score": 0.0,
    "user_satisfaction_score": 0.0,
    "task_completion_rate": 0.0,
    "improvement_potential": 0.0
  }
}
All metric values must be between 0 and 1.`

// LLMAnalyzer analyzes interactions with a generative backend.
type LLMAnalyzer struct {
	generator llm.Generator
}

// NewLLMAnalyzer creates an analyzer over the given generator.
func NewLLMAnalyzer(generator llm.Generator) *LLMAnalyzer {
	return &LLMAnalyzer{generator: generator}
}

// Analyze formats the interactions into a transcript, asks the backend for a
// structured assessment, and parses the JSON reply.
func (a *LLMAnalyzer) Analyze(ctx context.Context, interactions []Interaction) (*Analysis, error) {
	prompt := fmt.Sprintf(analysisPrompt, Transcript(interactions))

	raw, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	return &analysis, nil
}

// Transcript renders interactions as a numbered plain-text transcript.
func Transcript(interactions []Interaction) string {
	var sb strings.Builder
	for i, it := range interactions {
		fmt.Fprintf(&sb, "Interaction %d:\nUser: %s\nAgent: %s\n\n", i+1, it.UserInput, it.AgentResponse)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// extractJSON strips markdown code fences and any prose around the first
// top-level JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
