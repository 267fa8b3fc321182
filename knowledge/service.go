package knowledge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/communitykit/companion/embed"
	"github.com/communitykit/companion/vectorstore"
)

// Service provides unified access to a chapter's knowledge across all three
// layers. It is stateless over the index; construct it once with a connected
// index and embedder.
type Service struct {
	chapterID string
	prefix    string
	index     vectorstore.Index
	embedder  embed.Embedder
	layers    map[Layer]*LayerStore
}

// Option configures the service.
type Option func(*Service)

// WithNamespacePrefix overrides the default namespace prefix.
func WithNamespacePrefix(prefix string) Option {
	return func(s *Service) {
		s.prefix = prefix
	}
}

// NewService creates a knowledge service for one chapter.
func NewService(chapterID string, index vectorstore.Index, embedder embed.Embedder, opts ...Option) *Service {
	s := &Service{
		chapterID: chapterID,
		prefix:    DefaultNamespacePrefix,
		index:     index,
		embedder:  embedder,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.layers = make(map[Layer]*LayerStore, len(Layers))
	for _, layer := range Layers {
		s.layers[layer] = NewLayerStore(layer, chapterID, s.prefix, index, embedder)
	}

	log.Printf("[KNOWLEDGE] Service initialized for chapter %s", chapterID)
	return s
}

// ChapterID returns the chapter this service is scoped to.
func (s *Service) ChapterID() string { return s.chapterID }

// Semantic returns the semantic layer store.
func (s *Service) Semantic() *LayerStore { return s.layers[LayerSemantic] }

// Kinetic returns the kinetic layer store.
func (s *Service) Kinetic() *LayerStore { return s.layers[LayerKinetic] }

// Dynamic returns the dynamic layer store.
func (s *Service) Dynamic() *LayerStore { return s.layers[LayerDynamic] }

// Layer returns the store for a named layer.
func (s *Service) Layer(layer Layer) (*LayerStore, error) {
	store, ok := s.layers[layer]
	if !ok {
		return nil, fmt.Errorf("unknown layer: %s", layer)
	}
	return store, nil
}

// StoreItem stores content in the given layer, stamping chapter and creation
// time into the metadata.
func (s *Service) StoreItem(ctx context.Context, layer Layer, content Content, metadata map[string]any) (string, error) {
	store, err := s.Layer(layer)
	if err != nil {
		return "", err
	}
	return store.StoreItem(ctx, content, metadata)
}

// SearchAcrossLayers queries each requested layer (all layers when layers is
// nil) concurrently. A failure in one layer is logged and yields an empty
// list for that layer; the aggregate call never fails because a single layer
// is unavailable. Only a failure to embed the query itself is returned.
func (s *Service) SearchAcrossLayers(ctx context.Context, query string, layers []Layer, limit int) (map[Layer][]Item, error) {
	if layers == nil {
		layers = Layers
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &embed.Error{Op: "embed query", Err: err}
	}

	results := make(map[Layer][]Item, len(layers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, layer := range layers {
		store, ok := s.layers[layer]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(layer Layer, store *LayerStore) {
			defer wg.Done()
			items, err := store.SearchVector(ctx, vector, nil, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[KNOWLEDGE] %v", &LayerSearchError{Layer: layer, Err: err})
				results[layer] = []Item{}
				return
			}
			results[layer] = items
		}(layer, store)
	}
	wg.Wait()

	total := 0
	for _, items := range results {
		total += len(items)
	}
	log.Printf("[KNOWLEDGE] Cross-layer search for %q returned %d results", query, total)
	return results, nil
}

// Retrieve searches one layer, or all layers in priority order when layer is
// empty: semantic first, then dynamic, then kinetic. Pooled results are
// re-sorted by score with a stable sort, so the priority order decides ties,
// and truncated to topK.
func (s *Service) Retrieve(ctx context.Context, query string, layer Layer, contentType string, topK int) ([]Item, error) {
	var filter vectorstore.Filter
	if contentType != "" {
		filter = vectorstore.Filter{"type": contentType}
	}

	if layer != "" {
		store, err := s.Layer(layer)
		if err != nil {
			return nil, err
		}
		return store.Search(ctx, query, filter, topK)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &embed.Error{Op: "embed query", Err: err}
	}

	var pooled []Item
	for _, l := range PriorityOrder {
		items, err := s.layers[l].SearchVector(ctx, vector, filter, topK)
		if err != nil {
			log.Printf("[KNOWLEDGE] %v", &LayerSearchError{Layer: l, Err: err})
			continue
		}
		pooled = append(pooled, items...)
	}

	sort.SliceStable(pooled, func(i, j int) bool { return pooled[i].Score > pooled[j].Score })
	if len(pooled) > topK {
		pooled = pooled[:topK]
	}
	return pooled, nil
}

// Recommendations groups contextual hits by their category metadata tag.
type Recommendations struct {
	Templates []Item `json:"templates"`
	Workflows []Item `json:"workflows"`
	Patterns  []Item `json:"patterns"`
	Insights  []Item `json:"insights"`
}

// ContextualKnowledge is the structured response of a contextual lookup.
type ContextualKnowledge struct {
	Context         string           `json:"context"`
	Recommendations Recommendations  `json:"recommendations"`
	Results         map[Layer][]Item `json:"search_results"`
	Timestamp       time.Time        `json:"timestamp"`
}

// GetContextualKnowledge searches all layers for the context description and
// classifies each hit into templates, workflows, patterns, or insights by its
// category metadata tag. When knowledgeType is non-empty only that bucket is
// populated.
func (s *Service) GetContextualKnowledge(ctx context.Context, contextText, knowledgeType string, limit int) (*ContextualKnowledge, error) {
	results, err := s.SearchAcrossLayers(ctx, contextText, nil, limit)
	if err != nil {
		return nil, err
	}

	ck := &ContextualKnowledge{
		Context:   contextText,
		Results:   results,
		Timestamp: time.Now().UTC(),
	}

	want := func(category string) bool {
		return knowledgeType == "" || knowledgeType == category
	}

	for _, item := range results[LayerSemantic] {
		if item.Metadata["category"] == "template" && want("template") {
			ck.Recommendations.Templates = append(ck.Recommendations.Templates, item)
		}
	}
	for _, item := range results[LayerKinetic] {
		if item.Metadata["category"] == "workflow" && want("workflow") {
			ck.Recommendations.Workflows = append(ck.Recommendations.Workflows, item)
		}
	}
	for _, item := range results[LayerDynamic] {
		switch item.Metadata["category"] {
		case "pattern":
			if want("pattern") {
				ck.Recommendations.Patterns = append(ck.Recommendations.Patterns, item)
			}
		case "insight":
			if want("insight") {
				ck.Recommendations.Insights = append(ck.Recommendations.Insights, item)
			}
		}
	}
	return ck, nil
}

// ServiceStatistics aggregates per-layer counts.
type ServiceStatistics struct {
	ChapterID  string               `json:"chapter_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Layers     map[Layer]Statistics `json:"layers"`
	TotalItems int                  `json:"total_items"`
}

// Statistics reports item counts for every layer.
func (s *Service) Statistics(ctx context.Context) (*ServiceStatistics, error) {
	stats := &ServiceStatistics{
		ChapterID: s.chapterID,
		Timestamp: time.Now().UTC(),
		Layers:    make(map[Layer]Statistics, len(Layers)),
	}
	for _, layer := range Layers {
		ls, err := s.layers[layer].Statistics(ctx)
		if err != nil {
			return nil, err
		}
		stats.Layers[layer] = ls
		stats.TotalItems += ls.TotalItems
	}
	return stats, nil
}

// Backup is a full export of a chapter's knowledge.
type Backup struct {
	ChapterID string                         `json:"chapter_id"`
	Timestamp time.Time                      `json:"backup_timestamp"`
	Version   string                         `json:"version"`
	Layers    map[Layer][]vectorstore.Record `json:"layers"`
}

// BackupVersion is the current backup format version.
const BackupVersion = "1.0"

// Backup exports every layer. A layer that cannot be exported is logged and
// recorded as empty rather than failing the whole backup.
func (s *Service) Backup(ctx context.Context) (*Backup, error) {
	backup := &Backup{
		ChapterID: s.chapterID,
		Timestamp: time.Now().UTC(),
		Version:   BackupVersion,
		Layers:    make(map[Layer][]vectorstore.Record, len(Layers)),
	}
	for _, layer := range Layers {
		records, err := s.layers[layer].Export(ctx)
		if err != nil {
			log.Printf("[KNOWLEDGE] Failed to back up %s layer: %v", layer, err)
			backup.Layers[layer] = nil
			continue
		}
		backup.Layers[layer] = records
	}
	return backup, nil
}

// Restore imports a backup, returning restored counts per layer. Layers
// absent from the backup restore zero items. A chapter-id mismatch between
// backup and target is logged as a warning and the restore proceeds.
func (s *Service) Restore(ctx context.Context, backup *Backup) (map[Layer]int, error) {
	if backup.ChapterID != s.chapterID {
		log.Printf("[KNOWLEDGE] Backup chapter ID mismatch: %s != %s", backup.ChapterID, s.chapterID)
	}

	results := make(map[Layer]int, len(Layers))
	for _, layer := range Layers {
		records, ok := backup.Layers[layer]
		if !ok {
			results[layer] = 0
			continue
		}
		restored, err := s.layers[layer].Import(ctx, records)
		if err != nil {
			log.Printf("[KNOWLEDGE] Failed to restore %s layer: %v", layer, err)
			results[layer] = 0
			continue
		}
		results[layer] = restored
	}

	total := 0
	for _, n := range results {
		total += n
	}
	log.Printf("[KNOWLEDGE] Restored %d knowledge items across all layers", total)
	return results, nil
}
