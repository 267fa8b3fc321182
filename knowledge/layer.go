package knowledge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/communitykit/companion/embed"
	"github.com/communitykit/companion/vectorstore"
)

// ErrUnsupported is returned for operations the configured index backend
// does not provide (export, range delete, counting).
var ErrUnsupported = fmt.Errorf("operation not supported by index backend")

// LayerStore is one chapter-scoped knowledge layer over the shared index.
type LayerStore struct {
	layer     Layer
	chapterID string
	prefix    string
	index     vectorstore.Index
	embedder  embed.Embedder
}

// NewLayerStore creates a store for one layer of one chapter.
func NewLayerStore(layer Layer, chapterID, prefix string, index vectorstore.Index, embedder embed.Embedder) *LayerStore {
	return &LayerStore{
		layer:     layer,
		chapterID: chapterID,
		prefix:    prefix,
		index:     index,
		embedder:  embedder,
	}
}

// Layer returns which layer this store serves.
func (s *LayerStore) Layer() Layer { return s.layer }

// Namespace returns the index namespace backing this layer.
func (s *LayerStore) Namespace() string {
	return Namespace(s.prefix, s.chapterID, s.layer)
}

// StoreItem embeds the content and stores it with the given metadata,
// returning the generated item id (prefixed by the content kind). Nothing is
// written when embedding fails.
func (s *LayerStore) StoreItem(ctx context.Context, content Content, metadata map[string]any) (string, error) {
	vector, err := embed.Structured(ctx, s.embedder, content)
	if err != nil {
		return "", &embed.Error{Op: "embed content", Err: err}
	}

	doc, err := contentDocument(content)
	if err != nil {
		return "", err
	}

	meta := make(map[string]any, len(metadata)+4)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["type"]; !ok {
		meta["type"] = content.Kind()
	}
	meta["content"] = doc
	meta["chapter_id"] = s.chapterID
	if _, ok := meta["created_at"]; !ok {
		meta["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	id := fmt.Sprintf("%s_%s", content.Kind(), uuid.New().String())
	if err := s.index.Upsert(ctx, s.Namespace(), id, vector, meta); err != nil {
		return "", fmt.Errorf("store item: %w", err)
	}
	return id, nil
}

// Search embeds the query text and returns up to limit matching items.
func (s *LayerStore) Search(ctx context.Context, query string, filter vectorstore.Filter, limit int) ([]Item, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &embed.Error{Op: "embed query", Err: err}
	}
	return s.SearchVector(ctx, vector, filter, limit)
}

// SearchVector queries the layer with a precomputed vector. Cross-layer
// callers embed once and fan the vector out.
func (s *LayerStore) SearchVector(ctx context.Context, vector []float32, filter vectorstore.Filter, limit int) ([]Item, error) {
	matches, err := s.index.Query(ctx, s.Namespace(), vector, filter, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(matches))
	for i, m := range matches {
		items[i] = Item{ID: m.ID, Score: m.Score, Layer: s.layer, Metadata: m.Metadata}
	}
	return items, nil
}

// Statistics describes the stored contents of one layer.
type Statistics struct {
	Layer      Layer  `json:"layer"`
	Namespace  string `json:"namespace"`
	TotalItems int    `json:"total_items"`
}

// Statistics counts the layer's items. Backends without the Counter
// capability report zero items.
func (s *LayerStore) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{Layer: s.layer, Namespace: s.Namespace()}
	counter, ok := s.index.(vectorstore.Counter)
	if !ok {
		log.Printf("[KNOWLEDGE] Index backend cannot count; reporting 0 items for %s", s.Namespace())
		return stats, nil
	}
	count, err := counter.Count(ctx, s.Namespace())
	if err != nil {
		return stats, fmt.Errorf("count %s: %w", s.Namespace(), err)
	}
	stats.TotalItems = count
	return stats, nil
}

// Export enumerates the layer's records for backup. Returns ErrUnsupported
// when the backend cannot enumerate.
func (s *LayerStore) Export(ctx context.Context) ([]vectorstore.Record, error) {
	exporter, ok := s.index.(vectorstore.Exporter)
	if !ok {
		return nil, fmt.Errorf("export %s: %w", s.Namespace(), ErrUnsupported)
	}
	return exporter.Export(ctx, s.Namespace())
}

// Import restores previously exported records, preserving ids and vectors.
// Records that fail to write are logged and skipped; the count of restored
// records is returned.
func (s *LayerStore) Import(ctx context.Context, records []vectorstore.Record) (int, error) {
	restored := 0
	for _, rec := range records {
		if err := s.index.Upsert(ctx, s.Namespace(), rec.ID, rec.Vector, rec.Metadata); err != nil {
			log.Printf("[KNOWLEDGE] Skipping record %s during import: %v", rec.ID, err)
			continue
		}
		restored++
	}
	return restored, nil
}

// Semantic-layer typed helpers. These are meaningful on the semantic layer,
// which holds templates and brand-voice documents.

// StoreTemplate stores a content template. The template id doubles as the
// template_type filter key.
func (s *LayerStore) StoreTemplate(ctx context.Context, t TemplateContent) (string, error) {
	return s.StoreItem(ctx, t, map[string]any{
		"type":          "template",
		"template_type": t.ID,
		"category":      "template",
	})
}

// StoreBrandVoice stores the chapter's brand voice guidelines.
func (s *LayerStore) StoreBrandVoice(ctx context.Context, b BrandVoiceContent) (string, error) {
	return s.StoreItem(ctx, b, map[string]any{
		"type":     "brand_voice",
		"category": "brand_voice",
	})
}

// Templates searches the layer for stored templates, optionally narrowed to
// one template type. An empty result is not an error; callers decide whether
// to fall back to their own defaults.
func (s *LayerStore) Templates(ctx context.Context, templateType string, limit int) ([]Item, error) {
	filter := vectorstore.Filter{"type": "template"}
	query := "content template"
	if templateType != "" {
		filter["template_type"] = templateType
		query += " " + templateType
	}
	return s.Search(ctx, query, filter, limit)
}

// BrandVoice returns the stored brand voice document, or nil when none
// exists.
func (s *LayerStore) BrandVoice(ctx context.Context) (*Item, error) {
	items, err := s.Search(ctx, "brand voice guidelines tone style", vectorstore.Filter{"type": "brand_voice"}, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
