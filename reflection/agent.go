package reflection

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/communitykit/companion/memory"
)

// summaryQueryLimit bounds how many reflections a summary aggregates.
const summaryQueryLimit = 20

// trendThreshold is the metric delta below which a trend counts as stable.
const trendThreshold = 0.05

// Agent runs reflection analysis over stored memories.
type Agent struct {
	mem      *memory.Service
	analyzer Analyzer
}

// NewAgent creates a reflection agent over a memory service and analyzer.
func NewAgent(mem *memory.Service, analyzer Analyzer) *Agent {
	return &Agent{mem: mem, analyzer: analyzer}
}

// ReflectOnSession analyzes all episodic memories of one session and stores
// the resulting reflection. A session with no memories yields a sentinel
// reflection (all scores zero, improvement potential one) that is returned
// without being stored.
func (a *Agent) ReflectOnSession(ctx context.Context, sessionID string) (*memory.Reflection, error) {
	memories, err := a.mem.SessionMemories(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session memories: %w", err)
	}

	if len(memories) == 0 {
		log.Printf("[REFLECTION] No memories found for session %s", sessionID)
		return &memory.Reflection{
			ReflectionID: sessionID,
			SessionID:    sessionID,
			Timestamp:    time.Now().UTC(),
			Analysis:     "No interactions found for this session",
			Metrics: map[string]float64{
				MetricResponseQuality:      0,
				MetricUserSatisfaction:     0,
				MetricTaskCompletion:       0,
				MetricImprovementPotential: 1,
			},
		}, nil
	}

	interactions := interactionsFromMemories(memories)
	analysis := a.analyzeWithFallback(ctx, interactions)

	reflection := &memory.Reflection{
		ReflectionID:    sessionID,
		SessionID:       sessionID,
		Timestamp:       time.Now().UTC(),
		Analysis:        analysis.Analysis,
		Insights:        analysis.Insights,
		Recommendations: analysis.Recommendations,
		Metrics:         analysis.Metrics,
	}
	if _, err := a.mem.StoreReflection(ctx, reflection); err != nil {
		return nil, fmt.Errorf("store session reflection: %w", err)
	}

	log.Printf("[REFLECTION] Completed reflection for session %s over %d interactions", sessionID, len(interactions))
	return reflection, nil
}

// ReflectOnInteractions analyzes an ad-hoc batch of interactions under a
// caller-chosen scope label and stores the resulting reflection.
func (a *Agent) ReflectOnInteractions(ctx context.Context, interactions []Interaction, scope string) (*memory.Reflection, error) {
	analysis := a.analyzeWithFallback(ctx, interactions)

	reflection := &memory.Reflection{
		ReflectionID:    scope,
		Timestamp:       time.Now().UTC(),
		Analysis:        analysis.Analysis,
		Insights:        analysis.Insights,
		Recommendations: analysis.Recommendations,
		Metrics:         analysis.Metrics,
	}
	if _, err := a.mem.StoreReflection(ctx, reflection); err != nil {
		return nil, fmt.Errorf("store reflection: %w", err)
	}
	return reflection, nil
}

// analyzeWithFallback never fails: an analyzer error degrades to a neutral
// analysis with mid-range scores and a high improvement potential, so the
// reflection loop keeps running when the backend is down.
func (a *Agent) analyzeWithFallback(ctx context.Context, interactions []Interaction) *Analysis {
	analysis, err := a.analyzer.Analyze(ctx, interactions)
	if err != nil {
		log.Printf("[REFLECTION] Analysis failed, recording fallback: %v", err)
		return &Analysis{
			Analysis:        fmt.Sprintf("Analysis error: %v", err),
			Insights:        []string{"Unable to analyze interactions due to processing error"},
			Recommendations: []string{"Review interaction data and retry analysis"},
			Metrics: map[string]float64{
				MetricResponseQuality:      0.5,
				MetricUserSatisfaction:     0.5,
				MetricTaskCompletion:       0.5,
				MetricImprovementPotential: 0.8,
			},
		}
	}
	return analysis
}

// Summary aggregates recent reflections into period-level metrics.
type Summary struct {
	PeriodDays      int                `json:"period_days"`
	ReflectionCount int                `json:"reflection_count"`
	AverageMetrics  map[string]float64 `json:"average_metrics"`
	TopInsights     []string           `json:"top_insights"`
	Trends          map[string]string  `json:"trends"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// Summary aggregates the reflections of the last N days: per-metric averages
// over the reflections that carry the metric, deduplicated insights capped at
// five, and a first-half versus second-half trend per core metric.
func (a *Agent) Summary(ctx context.Context, days int) (*Summary, error) {
	results, err := a.mem.RetrieveRelevant(ctx, "agent performance reflection analysis",
		[]memory.Type{memory.TypeReflection}, summaryQueryLimit, "")
	if err != nil {
		return nil, fmt.Errorf("retrieve reflections: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var recent []timedReflection
	for _, r := range results[memory.TypeReflection] {
		ts, ok := r.Metadata["timestamp"].(string)
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil || at.Before(cutoff) {
			continue
		}
		recent = append(recent, timedReflection{
			at:       at,
			metrics:  floatMap(r.Metadata["metrics"]),
			insights: stringSlice(r.Metadata["insights"]),
		})
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].at.Before(recent[j].at) })

	summary := &Summary{
		PeriodDays:      days,
		ReflectionCount: len(recent),
		AverageMetrics:  map[string]float64{},
		Trends:          map[string]string{},
		GeneratedAt:     time.Now().UTC(),
	}
	if len(recent) == 0 {
		return summary, nil
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	seen := map[string]bool{}
	for _, r := range recent {
		for key, value := range r.metrics {
			sums[key] += value
			counts[key]++
		}
		for _, insight := range r.insights {
			if seen[insight] || len(summary.TopInsights) >= 5 {
				continue
			}
			seen[insight] = true
			summary.TopInsights = append(summary.TopInsights, insight)
		}
	}
	for key, sum := range sums {
		summary.AverageMetrics[key] = sum / float64(counts[key])
	}

	coreMetrics := []string{
		MetricResponseQuality,
		MetricUserSatisfaction,
		MetricTaskCompletion,
		MetricImprovementPotential,
	}
	for _, key := range coreMetrics {
		summary.Trends[key] = trend(recent, key)
	}
	return summary, nil
}

// timedReflection is one reflection's aggregation-relevant fields in time
// order.
type timedReflection struct {
	at       time.Time
	metrics  map[string]float64
	insights []string
}

// trend compares the metric's average over the older half of reflections
// against the newer half.
func trend(recent []timedReflection, key string) string {
	half := len(recent) / 2
	if half == 0 {
		return "stable"
	}
	older := averageOf(recent[:half], key)
	newer := averageOf(recent[half:], key)
	switch {
	case newer-older > trendThreshold:
		return "improving"
	case older-newer > trendThreshold:
		return "declining"
	default:
		return "stable"
	}
}

func averageOf(rs []timedReflection, key string) float64 {
	sum, n := 0.0, 0
	for _, r := range rs {
		if v, ok := r.metrics[key]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// interactionsFromMemories converts retrieved episodic metadata back into
// interactions for analysis.
func interactionsFromMemories(memories []memory.Retrieved) []Interaction {
	interactions := make([]Interaction, 0, len(memories))
	for _, m := range memories {
		user, _ := m.Metadata["user_input"].(string)
		agent, _ := m.Metadata["agent_response"].(string)
		interactionContext, _ := m.Metadata["context"].(map[string]any)
		interactions = append(interactions, Interaction{
			UserInput:     user,
			AgentResponse: agent,
			Context:       interactionContext,
		})
	}
	return interactions
}

// floatMap normalizes a metadata value into a float map. Backends differ in
// whether they return map[string]float64 or decoded map[string]any.
func floatMap(v any) map[string]float64 {
	switch m := v.(type) {
	case map[string]float64:
		return m
	case map[string]any:
		out := make(map[string]float64, len(m))
		for k, val := range m {
			if f, ok := val.(float64); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}

// stringSlice normalizes a metadata value into a string slice.
func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, val := range s {
			if str, ok := val.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
