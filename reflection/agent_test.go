package reflection_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/communitykit/companion/embed/hash"
	"github.com/communitykit/companion/memory"
	"github.com/communitykit/companion/reflection"
	"github.com/communitykit/companion/vectorstore/memindex"
)

// stubAnalyzer returns a fixed analysis or error.
type stubAnalyzer struct {
	analysis *reflection.Analysis
	err      error
	calls    int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, interactions []reflection.Interaction) (*reflection.Analysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

func newTestMemory(t *testing.T) *memory.Service {
	t.Helper()
	return memory.NewService(memindex.New(64), hash.NewWithDimensions(64), "gdg-x")
}

func TestReflectOnSession_EmptySessionSentinel(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)
	analyzer := &stubAnalyzer{}
	agent := reflection.NewAgent(mem, analyzer)

	ref, err := agent.ReflectOnSession(ctx, "empty-session")
	if err != nil {
		t.Fatalf("Failed to reflect: %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatal("Expected no analysis for an empty session")
	}
	if ref.Metrics[reflection.MetricImprovementPotential] != 1 {
		t.Fatalf("Expected improvement potential 1, got %v", ref.Metrics)
	}
	if ref.Metrics[reflection.MetricResponseQuality] != 0 {
		t.Fatalf("Expected zero quality score, got %v", ref.Metrics)
	}

	// The sentinel is not persisted.
	stats, err := mem.Statistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.Counts[memory.TypeReflection] != 0 {
		t.Fatalf("Expected no stored reflections, got %d", stats.Counts[memory.TypeReflection])
	}
}

func TestReflectOnSession_StoresReflection(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)

	if _, err := mem.StoreEpisodic(ctx, &memory.Episodic{
		SessionID: "s1", UserInput: "hello", AgentResponse: "hi there",
	}); err != nil {
		t.Fatalf("Failed to store episodic memory: %v", err)
	}

	analyzer := &stubAnalyzer{analysis: &reflection.Analysis{
		Analysis:        "Good session",
		Insights:        []string{"greeting handled well"},
		Recommendations: []string{"keep it up"},
		Metrics: map[string]float64{
			reflection.MetricResponseQuality: 0.9,
		},
	}}
	agent := reflection.NewAgent(mem, analyzer)

	ref, err := agent.ReflectOnSession(ctx, "s1")
	if err != nil {
		t.Fatalf("Failed to reflect: %v", err)
	}
	if ref.Analysis != "Good session" {
		t.Fatalf("Unexpected analysis: %s", ref.Analysis)
	}
	if ref.SessionID != "s1" || ref.ReflectionID != "s1" {
		t.Fatalf("Unexpected reflection identity: %+v", ref)
	}

	stats, err := mem.Statistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.Counts[memory.TypeReflection] != 1 {
		t.Fatalf("Expected 1 stored reflection, got %d", stats.Counts[memory.TypeReflection])
	}
}

func TestReflectOnSession_AnalyzerErrorFallback(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)

	if _, err := mem.StoreEpisodic(ctx, &memory.Episodic{
		SessionID: "s1", UserInput: "hello", AgentResponse: "hi",
	}); err != nil {
		t.Fatalf("Failed to store episodic memory: %v", err)
	}

	analyzer := &stubAnalyzer{err: fmt.Errorf("backend down")}
	agent := reflection.NewAgent(mem, analyzer)

	ref, err := agent.ReflectOnSession(ctx, "s1")
	if err != nil {
		t.Fatalf("Expected fallback instead of error: %v", err)
	}
	if !strings.HasPrefix(ref.Analysis, "Analysis error:") {
		t.Fatalf("Unexpected fallback analysis: %s", ref.Analysis)
	}
	want := map[string]float64{
		reflection.MetricResponseQuality:      0.5,
		reflection.MetricUserSatisfaction:     0.5,
		reflection.MetricTaskCompletion:       0.5,
		reflection.MetricImprovementPotential: 0.8,
	}
	for key, value := range want {
		if ref.Metrics[key] != value {
			t.Fatalf("Expected %s=%v, got %v", key, value, ref.Metrics[key])
		}
	}
	if len(ref.Insights) != 1 || len(ref.Recommendations) != 1 {
		t.Fatalf("Expected fallback insight and recommendation, got %+v", ref)
	}

	// The fallback reflection is still stored.
	stats, _ := mem.Statistics(ctx)
	if stats.Counts[memory.TypeReflection] != 1 {
		t.Fatalf("Expected fallback reflection stored, got %d", stats.Counts[memory.TypeReflection])
	}
}

func TestSummary_AveragesSkipMissingKeys(t *testing.T) {
	ctx := context.Background()
	mem := newTestMemory(t)
	agent := reflection.NewAgent(mem, &stubAnalyzer{})

	now := time.Now().UTC()
	if _, err := mem.StoreReflection(ctx, &memory.Reflection{
		ReflectionID: "r1", Timestamp: now.Add(-2 * time.Hour),
		Analysis: "first",
		Insights: []string{"shared insight", "only in first"},
		Metrics: map[string]float64{
			reflection.MetricResponseQuality:  0.4,
			reflection.MetricUserSatisfaction: 0.6,
		},
	}); err != nil {
		t.Fatalf("Failed to store reflection: %v", err)
	}
	if _, err := mem.StoreReflection(ctx, &memory.Reflection{
		ReflectionID: "r2", Timestamp: now.Add(-1 * time.Hour),
		Analysis: "second",
		Insights: []string{"shared insight"},
		Metrics: map[string]float64{
			reflection.MetricResponseQuality: 0.8,
			// user_satisfaction_score absent here on purpose.
		},
	}); err != nil {
		t.Fatalf("Failed to store reflection: %v", err)
	}

	summary, err := agent.Summary(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if summary.ReflectionCount != 2 {
		t.Fatalf("Expected 2 reflections, got %d", summary.ReflectionCount)
	}

	if got := summary.AverageMetrics[reflection.MetricResponseQuality]; got < 0.599 || got > 0.601 {
		t.Fatalf("Expected response quality average 0.6, got %v", got)
	}
	// The absent metric is averaged over the one reflection carrying it,
	// not diluted by the other.
	if got := summary.AverageMetrics[reflection.MetricUserSatisfaction]; got != 0.6 {
		t.Fatalf("Expected user satisfaction 0.6, got %v", got)
	}

	// Insights are deduplicated.
	if len(summary.TopInsights) != 2 {
		t.Fatalf("Expected 2 distinct insights, got %v", summary.TopInsights)
	}

	// 0.4 -> 0.8 across halves is an improvement.
	if summary.Trends[reflection.MetricResponseQuality] != "improving" {
		t.Fatalf("Expected improving trend, got %s", summary.Trends[reflection.MetricResponseQuality])
	}
}

func TestSummary_NoReflections(t *testing.T) {
	ctx := context.Background()
	agent := reflection.NewAgent(newTestMemory(t), &stubAnalyzer{})

	summary, err := agent.Summary(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to summarize: %v", err)
	}
	if summary.ReflectionCount != 0 {
		t.Fatalf("Expected 0 reflections, got %d", summary.ReflectionCount)
	}
	if len(summary.AverageMetrics) != 0 {
		t.Fatalf("Expected no averages, got %v", summary.AverageMetrics)
	}
}

func TestTranscript(t *testing.T) {
	transcript := reflection.Transcript([]reflection.Interaction{
		{UserInput: "hi", AgentResponse: "hello"},
		{UserInput: "bye", AgentResponse: "goodbye"},
	})
	if !strings.Contains(transcript, "Interaction 1:\nUser: hi\nAgent: hello") {
		t.Fatalf("Unexpected transcript: %q", transcript)
	}
	if !strings.Contains(transcript, "Interaction 2:") {
		t.Fatalf("Expected numbered interactions: %q", transcript)
	}
}
