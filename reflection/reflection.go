// Package reflection derives self-assessment insights from stored episodic
// memories and persists them back as reflection memories.
package reflection

import "context"

// Metric keys produced by every analysis. Values are in [0, 1].
const (
	MetricResponseQuality      = "response_quality_score"
	MetricUserSatisfaction     = "user_satisfaction_score"
	MetricTaskCompletion       = "task_completion_rate"
	MetricImprovementPotential = "improvement_potential"
)

// Interaction is one user/agent exchange under analysis.
type Interaction struct {
	UserInput     string
	AgentResponse string
	Context       map[string]any
}

// Analysis is the structured outcome of analyzing a batch of interactions.
type Analysis struct {
	Analysis        string             `json:"analysis"`
	Insights        []string           `json:"insights"`
	Recommendations []string           `json:"recommendations"`
	Metrics         map[string]float64 `json:"metrics"`
}

// Analyzer turns a batch of interactions into an Analysis.
type Analyzer interface {
	Analyze(ctx context.Context, interactions []Interaction) (*Analysis, error)
}
