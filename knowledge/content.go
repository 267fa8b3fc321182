package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the tagged union of knowledge payloads. Each variant knows its
// kind tag and its canonical text view for embedding, so text selection is
// exhaustive instead of a chain of map-key probes.
type Content interface {
	// Kind is the content type tag stored in metadata ("template",
	// "brand_voice", "workflow", "social_post", "general").
	Kind() string

	// EmbeddingText is the canonical text representation used to compute
	// the item's vector.
	EmbeddingText() string
}

// TemplateContent is a reusable social-post template.
type TemplateContent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Template    string   `json:"template"`
	Platforms   []string `json:"platforms,omitempty"`
}

func (t TemplateContent) Kind() string { return "template" }

func (t TemplateContent) EmbeddingText() string {
	desc := t.Description
	if desc == "" {
		desc = t.Template
	}
	return t.Name + "\n" + desc
}

// BrandVoiceContent captures a chapter's tone and style guidelines.
type BrandVoiceContent struct {
	Tone       string            `json:"tone"`
	Values     []string          `json:"values,omitempty"`
	StyleGuide map[string]string `json:"style_guide,omitempty"`
}

func (b BrandVoiceContent) Kind() string { return "brand_voice" }

func (b BrandVoiceContent) EmbeddingText() string {
	var sb strings.Builder
	sb.WriteString("Brand voice guidelines\n")
	sb.WriteString("Tone: " + b.Tone)
	if len(b.Values) > 0 {
		sb.WriteString("\nValues: " + strings.Join(b.Values, ", "))
	}
	return sb.String()
}

// WorkflowContent is a process description in the kinetic layer.
type WorkflowContent struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps,omitempty"`
}

func (w WorkflowContent) Kind() string { return "workflow" }

func (w WorkflowContent) EmbeddingText() string {
	return w.Name + "\n" + w.Description
}

// PostContent is a generated social-media post.
type PostContent struct {
	Text       string `json:"text"`
	Platform   string `json:"platform"`
	EventID    string `json:"event_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func (p PostContent) Kind() string { return "social_post" }

func (p PostContent) EmbeddingText() string { return p.Text }

// GenericContent carries untyped payloads. Its canonical text selection
// prefers title+description, then name+description, then text, and falls
// back to a full serialization of the mapping.
type GenericContent map[string]any

func (g GenericContent) Kind() string {
	if k, ok := g["type"].(string); ok && k != "" {
		return k
	}
	return "general"
}

func (g GenericContent) EmbeddingText() string {
	str := func(key string) (string, bool) {
		v, ok := g[key].(string)
		return v, ok && v != ""
	}
	if title, ok := str("title"); ok {
		if desc, ok := str("description"); ok {
			return title + "\n" + desc
		}
	}
	if name, ok := str("name"); ok {
		if desc, ok := str("description"); ok {
			return name + "\n" + desc
		}
	}
	if text, ok := str("text"); ok {
		return text
	}
	b, err := json.Marshal(map[string]any(g))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(g))
	}
	return string(b)
}

// contentDocument renders content into the plain map form stored under the
// "content" metadata key, so every backend and the backup format see one
// shape.
func contentDocument(c Content) (map[string]any, error) {
	if g, ok := c.(GenericContent); ok {
		doc := make(map[string]any, len(g))
		for k, v := range g {
			doc[k] = v
		}
		return doc, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	return doc, nil
}
