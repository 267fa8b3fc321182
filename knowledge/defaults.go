package knowledge

import (
	"context"
	"log"
)

// Default knowledge seeded into a fresh chapter. Chapters overwrite or extend
// these through the normal store operations.

// DefaultTemplates returns the built-in content templates.
func DefaultTemplates() []TemplateContent {
	return []TemplateContent{
		{
			ID:        "event-announcement",
			Name:      "Event Announcement",
			Template:  "Join us for {event_name} on {date} at {time}! {description} Register now: {link}",
			Platforms: []string{"linkedin", "bluesky"},
		},
		{
			ID:        "event-recap",
			Name:      "Event Recap",
			Template:  "Thanks to everyone who joined our {event_name} yesterday! {highlights}",
			Platforms: []string{"linkedin", "bluesky"},
		},
	}
}

// DefaultBrandVoice returns the built-in brand voice guidelines.
func DefaultBrandVoice() BrandVoiceContent {
	return BrandVoiceContent{
		Tone:   "Friendly, approachable, technical but not intimidating",
		Values: []string{"Community", "Learning", "Innovation", "Inclusivity"},
		StyleGuide: map[string]string{
			"emojis":     "Use sparingly to emphasize key points",
			"hashtags":   "#GDG #Google plus one chapter tag",
			"formatting": "Short paragraphs, clear CTAs",
		},
	}
}

// DefaultWorkflows returns the built-in process knowledge.
func DefaultWorkflows() []WorkflowContent {
	return []WorkflowContent{
		{
			Name:        "Event promotion",
			Description: "Announce an upcoming event across platforms and track engagement",
			Steps: []string{
				"Generate platform-specific posts from the announcement template",
				"Review and publish to each platform",
				"Collect engagement metrics after 48 hours",
				"Record performance into the dynamic layer",
			},
		},
		{
			Name:        "Event recap",
			Description: "Summarize a completed event and thank attendees",
			Steps: []string{
				"Collect highlights and photos",
				"Generate recap posts from the recap template",
				"Publish and tag speakers",
			},
		},
	}
}

// InitializeDefaults seeds every layer with its default content and returns
// the count of items created per layer. A layer that fails to seed is logged
// and reported as zero.
func (s *Service) InitializeDefaults(ctx context.Context) (map[Layer]int, error) {
	log.Printf("[KNOWLEDGE] Initializing default knowledge for chapter %s", s.chapterID)
	results := map[Layer]int{LayerSemantic: 0, LayerKinetic: 0, LayerDynamic: 0}

	semantic := s.Semantic()
	for _, t := range DefaultTemplates() {
		if _, err := semantic.StoreTemplate(ctx, t); err != nil {
			log.Printf("[KNOWLEDGE] Failed to seed template %s: %v", t.ID, err)
			continue
		}
		results[LayerSemantic]++
	}
	if _, err := semantic.StoreBrandVoice(ctx, DefaultBrandVoice()); err != nil {
		log.Printf("[KNOWLEDGE] Failed to seed brand voice: %v", err)
	} else {
		results[LayerSemantic]++
	}

	kinetic := s.Kinetic()
	for _, w := range DefaultWorkflows() {
		if _, err := kinetic.StoreItem(ctx, w, map[string]any{"category": "workflow"}); err != nil {
			log.Printf("[KNOWLEDGE] Failed to seed workflow %s: %v", w.Name, err)
			continue
		}
		results[LayerKinetic]++
	}

	total := results[LayerSemantic] + results[LayerKinetic] + results[LayerDynamic]
	log.Printf("[KNOWLEDGE] Initialized %d knowledge items across all layers", total)
	return results, nil
}
