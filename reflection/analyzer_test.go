package reflection_test

import (
	"context"
	"strings"
	"testing"

	"github.com/communitykit/companion/llm"
	"github.com/communitykit/companion/reflection"
)

func TestLLMAnalyzer_ParsesJSON(t *testing.T) {
	ctx := context.Background()
	generator := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "Interaction 1:") {
			t.Fatalf("Expected transcript in prompt, got %q", prompt)
		}
		return `{"analysis":"solid","insights":["a"],"recommendations":["b"],"metrics":{"response_quality_score":0.8}}`, nil
	})
	analyzer := reflection.NewLLMAnalyzer(generator)

	analysis, err := analyzer.Analyze(ctx, []reflection.Interaction{
		{UserInput: "hi", AgentResponse: "hello"},
	})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if analysis.Analysis != "solid" {
		t.Fatalf("Unexpected analysis: %s", analysis.Analysis)
	}
	if analysis.Metrics[reflection.MetricResponseQuality] != 0.8 {
		t.Fatalf("Unexpected metrics: %v", analysis.Metrics)
	}
}

func TestLLMAnalyzer_StripsCodeFences(t *testing.T) {
	ctx := context.Background()
	generator := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "```json\n{\"analysis\":\"fenced\",\"metrics\":{}}\n```", nil
	})
	analyzer := reflection.NewLLMAnalyzer(generator)

	analysis, err := analyzer.Analyze(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to analyze fenced response: %v", err)
	}
	if analysis.Analysis != "fenced" {
		t.Fatalf("Unexpected analysis: %s", analysis.Analysis)
	}
}

func TestLLMAnalyzer_InvalidJSON(t *testing.T) {
	ctx := context.Background()
	generator := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "I think the agent did fine overall.", nil
	})
	analyzer := reflection.NewLLMAnalyzer(generator)

	if _, err := analyzer.Analyze(ctx, nil); err == nil {
		t.Fatal("Expected parse error for non-JSON response")
	}
}
