package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/communitykit/companion/knowledge"
	"github.com/communitykit/companion/llm"
)

// Categorization assigns content a knowledge layer and type.
type Categorization struct {
	Layer knowledge.Layer `json:"layer"`
	Type  string          `json:"type"`
}

// ParseError reports a classification response that was not valid JSON. The
// accompanying Categorization is still usable: it is derived from keyword
// matching on the raw response.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse categorization response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const categorizePrompt = `Categorize the following content into the appropriate knowledge layer and type:

%s

Knowledge Layers:
1. Semantic Layer: Static, foundational information (templates, guidelines, definitions)
2. Kinetic Layer: Process knowledge and workflows
3. Dynamic Layer: Learning and evolving knowledge based on performance

Common Types:
- template: Content templates
- brand_voice: Brand voice guidelines
- workflow: Process workflows
- procedure: Step-by-step procedures
- best_practice: Best practices and recommendations
- performance_data: Performance metrics and learnings

Return a JSON object with layer and type.`

// Classifier assigns knowledge items to layers using a generative backend.
type Classifier struct {
	generator llm.Generator
}

// NewClassifier creates a classifier.
func NewClassifier(generator llm.Generator) *Classifier {
	return &Classifier{generator: generator}
}

// Categorize asks the backend to classify the text. A response that is not
// valid JSON degrades to keyword matching over the raw response; in that case
// the fallback categorization is returned together with a *ParseError so
// callers can log the degradation.
func (c *Classifier) Categorize(ctx context.Context, text string) (Categorization, error) {
	raw, err := c.generator.Generate(ctx, fmt.Sprintf(categorizePrompt, text))
	if err != nil {
		return Categorization{}, fmt.Errorf("generate categorization: %w", err)
	}

	var cat Categorization
	if err := json.Unmarshal([]byte(raw), &cat); err != nil {
		return fallbackCategorization(raw), &ParseError{Raw: raw, Err: err}
	}
	if !cat.Layer.Valid() {
		cat.Layer = knowledge.LayerKinetic
	}
	if cat.Type == "" {
		cat.Type = "general"
	}
	return cat, nil
}

// fallbackCategorization keyword-matches the raw model response.
func fallbackCategorization(raw string) Categorization {
	lower := strings.ToLower(raw)

	layer := knowledge.LayerKinetic
	if strings.Contains(lower, "semantic") {
		layer = knowledge.LayerSemantic
	} else if strings.Contains(lower, "dynamic") {
		layer = knowledge.LayerDynamic
	}

	contentType := "general"
	switch {
	case strings.Contains(lower, "template"):
		contentType = "template"
	case strings.Contains(lower, "brand"):
		contentType = "brand_voice"
	case strings.Contains(lower, "workflow"):
		contentType = "workflow"
	case strings.Contains(lower, "procedure"):
		contentType = "procedure"
	case strings.Contains(lower, "practice"):
		contentType = "best_practice"
	case strings.Contains(lower, "performance"):
		contentType = "performance_data"
	}

	return Categorization{Layer: layer, Type: contentType}
}

// StoreClassified categorizes untyped content and stores it in the resulting
// layer. A classification parse failure is logged; the keyword fallback still
// decides the placement.
func (a *Agent) StoreClassified(ctx context.Context, classifier *Classifier, content knowledge.GenericContent) (string, knowledge.Layer, error) {
	cat, err := classifier.Categorize(ctx, content.EmbeddingText())
	if err != nil {
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			return "", "", err
		}
		log.Printf("[CONTENT] Categorization fell back to keyword matching: %v", err)
	}

	id, err := a.knowledge.StoreItem(ctx, cat.Layer, content, map[string]any{"type": cat.Type})
	if err != nil {
		return "", "", err
	}
	return id, cat.Layer, nil
}
