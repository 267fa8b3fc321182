// Package content generates platform-specific social posts from chapter
// knowledge, publishes them, and feeds engagement results back into the
// dynamic knowledge layer.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/communitykit/companion/knowledge"
	"github.com/communitykit/companion/llm"
	"github.com/communitykit/companion/social"
	"github.com/communitykit/companion/vectorstore"
)

// similarContentLimit bounds how many past posts feed the generation prompt.
const similarContentLimit = 3

// performanceThreshold is the minimum performance score for a past post to
// count as a positive example.
const performanceThreshold = 0.7

// Event describes the event a post is generated for.
type Event struct {
	ID          string
	Title       string
	Type        string
	Date        string
	Time        string
	Description string
	Link        string
}

// Agent generates, publishes, and tracks social content for one chapter.
type Agent struct {
	knowledge *knowledge.Service
	generator llm.Generator
	social    *social.Service
}

// NewAgent creates a content agent.
func NewAgent(ks *knowledge.Service, generator llm.Generator, ss *social.Service) *Agent {
	return &Agent{knowledge: ks, generator: generator, social: ss}
}

// Templates returns the chapter's stored templates, optionally narrowed to
// one template type. When the knowledge store has none, the built-in
// defaults are returned instead.
func (a *Agent) Templates(ctx context.Context, templateType string) ([]knowledge.TemplateContent, error) {
	items, err := a.knowledge.Semantic().Templates(ctx, templateType, 5)
	if err != nil {
		return nil, fmt.Errorf("search templates: %w", err)
	}

	var templates []knowledge.TemplateContent
	for _, item := range items {
		var t knowledge.TemplateContent
		if err := decodeContent(item, &t); err != nil {
			log.Printf("[CONTENT] Skipping malformed template %s: %v", item.ID, err)
			continue
		}
		templates = append(templates, t)
	}
	if len(templates) > 0 {
		return templates, nil
	}

	defaults := knowledge.DefaultTemplates()
	if templateType == "" {
		return defaults, nil
	}
	for _, t := range defaults {
		if t.ID == templateType {
			return []knowledge.TemplateContent{t}, nil
		}
	}
	return nil, nil
}

// BrandVoice returns the chapter's stored brand voice, or the built-in
// default when none is stored.
func (a *Agent) BrandVoice(ctx context.Context) (knowledge.BrandVoiceContent, error) {
	item, err := a.knowledge.Semantic().BrandVoice(ctx)
	if err != nil {
		return knowledge.BrandVoiceContent{}, fmt.Errorf("search brand voice: %w", err)
	}
	if item == nil {
		return knowledge.DefaultBrandVoice(), nil
	}
	var voice knowledge.BrandVoiceContent
	if err := decodeContent(*item, &voice); err != nil {
		log.Printf("[CONTENT] Stored brand voice is malformed, using default: %v", err)
		return knowledge.DefaultBrandVoice(), nil
	}
	return voice, nil
}

// SimilarContent returns past posts for the platform whose performance score
// cleared the threshold.
func (a *Agent) SimilarContent(ctx context.Context, platform string, keywords []string) ([]knowledge.Item, error) {
	query := platform + " " + strings.Join(keywords, " ")
	filter := vectorstore.Filter{
		"type":              "social_post",
		"platform":          platform,
		"performance_score": map[string]any{"$gt": performanceThreshold},
	}
	return a.knowledge.Dynamic().Search(ctx, query, filter, similarContentLimit)
}

// GeneratePost drafts one post for a platform and event, guided by the
// chapter's template, brand voice, and past high performers.
func (a *Agent) GeneratePost(ctx context.Context, platform string, event Event, templateID string) (*knowledge.PostContent, error) {
	templates, err := a.Templates(ctx, templateID)
	if err != nil {
		return nil, err
	}
	var template *knowledge.TemplateContent
	if len(templates) > 0 {
		template = &templates[0]
	}

	voice, err := a.BrandVoice(ctx)
	if err != nil {
		return nil, err
	}

	similar, err := a.SimilarContent(ctx, platform, []string{event.Title, event.Type})
	if err != nil {
		log.Printf("[CONTENT] Similar content lookup failed, generating without examples: %v", err)
		similar = nil
	}

	prompt := buildPrompt(platform, event, template, voice, similar)
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate post: %w", err)
	}

	post := &knowledge.PostContent{
		Text:      text,
		Platform:  platform,
		EventID:   event.ID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if template != nil {
		post.TemplateID = template.ID
	}
	return post, nil
}

// SaveGenerated stores a generated post in the given layer. Performance
// metrics, when present, are recorded alongside a single performance score
// used for later similarity filtering.
func (a *Agent) SaveGenerated(ctx context.Context, post knowledge.PostContent, layer knowledge.Layer, performance map[string]float64) (string, error) {
	metadata := map[string]any{
		"type":     "social_post",
		"platform": post.Platform,
	}
	if performance != nil {
		metadata["performance"] = floatMapToAny(performance)
		metadata["performance_score"] = performanceScore(performance)
	}
	return a.knowledge.StoreItem(ctx, layer, post, metadata)
}

// GeneratedPost is the per-platform outcome of a generation run.
type GeneratedPost struct {
	Post      knowledge.PostContent `json:"post"`
	ContentID string                `json:"content_id"`
	PostID    string                `json:"post_id,omitempty"`
	URL       string                `json:"url,omitempty"`
}

// GenerateContent drafts and saves a post per platform, optionally publishing
// immediately. Publishing failures are per-platform: the generated content is
// kept either way.
func (a *Agent) GenerateContent(ctx context.Context, platforms []string, event Event, templateID string, publish bool, images []social.Image) (map[string]*GeneratedPost, error) {
	results := make(map[string]*GeneratedPost, len(platforms))
	for _, platform := range platforms {
		post, err := a.GeneratePost(ctx, platform, event, templateID)
		if err != nil {
			return nil, fmt.Errorf("generate %s post: %w", platform, err)
		}
		contentID, err := a.SaveGenerated(ctx, *post, knowledge.LayerKinetic, nil)
		if err != nil {
			return nil, fmt.Errorf("save %s post: %w", platform, err)
		}
		results[platform] = &GeneratedPost{Post: *post, ContentID: contentID}
	}

	if !publish {
		return results, nil
	}

	for platform, generated := range results {
		posted, errs := a.social.PostToAll(ctx, generated.Post.Text, images, event.Link, []string{platform})
		if err, ok := errs[platform]; ok {
			log.Printf("[CONTENT] Publishing to %s failed: %v", platform, err)
			continue
		}
		if result, ok := posted[platform]; ok {
			generated.PostID = result.PostID
			generated.URL = result.URL
		}
	}
	return results, nil
}

// RecordPerformance attaches engagement metrics to previously generated
// content: the post is looked up in the kinetic layer and re-stored in the
// dynamic layer with its performance score.
func (a *Agent) RecordPerformance(ctx context.Context, contentID string, metrics map[string]float64) (string, error) {
	items, err := a.knowledge.Kinetic().Search(ctx, "content id:"+contentID,
		vectorstore.Filter{"type": "social_post"}, 50)
	if err != nil {
		return "", fmt.Errorf("find content %s: %w", contentID, err)
	}

	var found *knowledge.Item
	for i := range items {
		if items[i].ID == contentID {
			found = &items[i]
			break
		}
	}
	if found == nil {
		return "", fmt.Errorf("content not found: %s", contentID)
	}

	var post knowledge.PostContent
	if err := decodeContent(*found, &post); err != nil {
		return "", fmt.Errorf("decode content %s: %w", contentID, err)
	}

	dynamicID, err := a.SaveGenerated(ctx, post, knowledge.LayerDynamic, metrics)
	if err != nil {
		return "", err
	}
	log.Printf("[CONTENT] Recorded performance for content %s: %.3f", contentID, performanceScore(metrics))
	return dynamicID, nil
}

// FetchMetrics pulls raw counters for published posts and derives an
// engagement rate per platform. Impressions are floored at one to keep the
// rate defined when a platform reports none.
func (a *Agent) FetchMetrics(ctx context.Context, postIDs map[string]string) (map[string]map[string]float64, error) {
	results := make(map[string]map[string]float64, len(postIDs))
	for platform, postID := range postIDs {
		metrics, err := a.social.Metrics(ctx, platform, postID)
		if err != nil {
			return nil, err
		}

		var engagement float64
		switch platform {
		case "linkedin":
			engagement = metrics["likes"] + metrics["comments"] + metrics["shares"]
		case "bluesky":
			engagement = metrics["likes"] + metrics["reposts"] + metrics["replies"]
		}
		impressions := metrics["impressions"]
		if impressions < 1 {
			impressions = 1
		}
		metrics["engagement_rate"] = engagement / impressions
		results[platform] = metrics
	}
	return results, nil
}

// performanceScore collapses engagement and click rates into one score.
func performanceScore(metrics map[string]float64) float64 {
	return (metrics["engagement_rate"] + metrics["click_rate"]) / 2
}

// buildPrompt assembles the generation prompt from event data, template,
// brand voice, and past examples.
func buildPrompt(platform string, event Event, template *knowledge.TemplateContent, voice knowledge.BrandVoiceContent, similar []knowledge.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s post for this event:\n\n", platform)
	fmt.Fprintf(&sb, "Title: %s\n", event.Title)
	fmt.Fprintf(&sb, "Date: %s\n", event.Date)
	fmt.Fprintf(&sb, "Time: %s\n", event.Time)
	fmt.Fprintf(&sb, "Description: %s\n", event.Description)
	fmt.Fprintf(&sb, "Link: %s\n\n", event.Link)

	if template != nil {
		fmt.Fprintf(&sb, "Using this template: %s\n\n", template.Template)
	}

	sb.WriteString("Follow these brand voice guidelines:\n")
	fmt.Fprintf(&sb, "Tone: %s\n", voice.Tone)
	fmt.Fprintf(&sb, "Values: %s\n", strings.Join(voice.Values, ", "))
	fmt.Fprintf(&sb, "Style: %v\n\n", voice.StyleGuide)

	switch platform {
	case "linkedin":
		sb.WriteString("Optimize for LinkedIn: Be professional but approachable, highlight value, and use paragraph breaks.\n\n")
	case "bluesky":
		sb.WriteString("Optimize for Bluesky: Be concise but conversational, use paragraph breaks, and engage the tech community. Limit to 300 characters for best visibility.\n\n")
	}

	if len(similar) > 0 {
		sb.WriteString("Here are examples of successful past posts that performed well:\n\n")
		for i, item := range similar {
			var post knowledge.PostContent
			if err := decodeContent(item, &post); err != nil {
				continue
			}
			fmt.Fprintf(&sb, "Example %d: %s\n\n", i+1, post.Text)
		}
	}
	return sb.String()
}

// decodeContent unpacks an item's content document into a typed struct.
func decodeContent(item knowledge.Item, out any) error {
	content, ok := item.Content()
	if !ok {
		return fmt.Errorf("item %s has no content", item.ID)
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

func floatMapToAny(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
