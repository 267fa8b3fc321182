package knowledge_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/communitykit/companion/embed/hash"
	"github.com/communitykit/companion/knowledge"
	"github.com/communitykit/companion/vectorstore"
	"github.com/communitykit/companion/vectorstore/memindex"
)

func newTestService(t *testing.T) *knowledge.Service {
	t.Helper()
	embedder := hash.NewWithDimensions(64)
	index := memindex.New(64)
	return knowledge.NewService("gdg-x", index, embedder)
}

func TestStoreAndRetrieve_SameTextScoresOne(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	template := knowledge.TemplateContent{
		ID:       "event-announcement",
		Name:     "Event Announcement",
		Template: "Join us for {event_name}!",
	}
	id, err := service.Semantic().StoreTemplate(ctx, template)
	if err != nil {
		t.Fatalf("Failed to store template: %v", err)
	}
	if !strings.HasPrefix(id, "template_") {
		t.Fatalf("Expected template_ id prefix, got %s", id)
	}

	items, err := service.Retrieve(ctx, template.EmbeddingText(), knowledge.LayerSemantic, "", 5)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Score < 0.999 {
		t.Fatalf("Expected score near 1.0 for identical text, got %v", items[0].Score)
	}
	if items[0].Layer != knowledge.LayerSemantic {
		t.Fatalf("Expected semantic layer, got %s", items[0].Layer)
	}
	if items[0].Metadata["chapter_id"] != "gdg-x" {
		t.Fatalf("Expected chapter_id stamp, got %v", items[0].Metadata["chapter_id"])
	}
}

func TestSearchAcrossLayers(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	if _, err := service.StoreItem(ctx, knowledge.LayerSemantic,
		knowledge.GenericContent{"title": "Brand rules", "description": "tone"}, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := service.StoreItem(ctx, knowledge.LayerKinetic,
		knowledge.WorkflowContent{Name: "Event promotion", Description: "promote events"}, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	results, err := service.SearchAcrossLayers(ctx, "events", nil, 5)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(results) != len(knowledge.Layers) {
		t.Fatalf("Expected an entry per layer, got %d", len(results))
	}
	if len(results[knowledge.LayerSemantic]) != 1 {
		t.Fatalf("Expected 1 semantic hit, got %d", len(results[knowledge.LayerSemantic]))
	}
	if len(results[knowledge.LayerDynamic]) != 0 {
		t.Fatalf("Expected no dynamic hits, got %d", len(results[knowledge.LayerDynamic]))
	}
}

// failingIndex wraps an index and fails queries against selected namespaces.
type failingIndex struct {
	*memindex.Index
	failSubstring string
}

func (f *failingIndex) Query(ctx context.Context, ns string, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	if strings.Contains(ns, f.failSubstring) {
		return nil, fmt.Errorf("namespace %s unavailable", ns)
	}
	return f.Index.Query(ctx, ns, vector, filter, topK)
}

func TestSearchAcrossLayers_PartialFailure(t *testing.T) {
	ctx := context.Background()
	embedder := hash.NewWithDimensions(64)
	index := &failingIndex{Index: memindex.New(64), failSubstring: "dynamic"}
	service := knowledge.NewService("gdg-x", index, embedder)

	if _, err := service.StoreItem(ctx, knowledge.LayerSemantic,
		knowledge.GenericContent{"text": "stored fine"}, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	results, err := service.SearchAcrossLayers(ctx, "stored fine", nil, 5)
	if err != nil {
		t.Fatalf("Expected aggregate search to survive one failing layer, got %v", err)
	}
	if len(results[knowledge.LayerSemantic]) != 1 {
		t.Fatalf("Expected semantic hit despite dynamic failure, got %d", len(results[knowledge.LayerSemantic]))
	}
	if items := results[knowledge.LayerDynamic]; items == nil || len(items) != 0 {
		t.Fatalf("Expected empty (non-nil) dynamic result, got %v", items)
	}
}

func TestRetrieve_PriorityOrderBreaksTies(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	// The same content in two layers ties on score; semantic outranks
	// kinetic in the pooled result.
	content := knowledge.GenericContent{"text": "identical content"}
	if _, err := service.StoreItem(ctx, knowledge.LayerKinetic, content, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := service.StoreItem(ctx, knowledge.LayerSemantic, content, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	items, err := service.Retrieve(ctx, "identical content", "", "", 2)
	if err != nil {
		t.Fatalf("Failed to retrieve: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Layer != knowledge.LayerSemantic {
		t.Fatalf("Expected semantic layer to win the tie, got %s", items[0].Layer)
	}
}

func TestGetContextualKnowledge_Buckets(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	if _, err := service.Semantic().StoreTemplate(ctx, knowledge.TemplateContent{
		ID: "event-announcement", Name: "Event Announcement", Template: "Join us!",
	}); err != nil {
		t.Fatalf("Failed to store template: %v", err)
	}
	if _, err := service.StoreItem(ctx, knowledge.LayerKinetic,
		knowledge.WorkflowContent{Name: "Event promotion", Description: "announce events"},
		map[string]any{"category": "workflow"}); err != nil {
		t.Fatalf("Failed to store workflow: %v", err)
	}

	ck, err := service.GetContextualKnowledge(ctx, "announce an event", "", 5)
	if err != nil {
		t.Fatalf("Failed to get contextual knowledge: %v", err)
	}
	if len(ck.Recommendations.Templates) != 1 {
		t.Fatalf("Expected 1 template recommendation, got %d", len(ck.Recommendations.Templates))
	}
	if len(ck.Recommendations.Workflows) != 1 {
		t.Fatalf("Expected 1 workflow recommendation, got %d", len(ck.Recommendations.Workflows))
	}

	// Narrowing to one knowledge type empties the other buckets.
	ck, err = service.GetContextualKnowledge(ctx, "announce an event", "template", 5)
	if err != nil {
		t.Fatalf("Failed to get contextual knowledge: %v", err)
	}
	if len(ck.Recommendations.Templates) != 1 || len(ck.Recommendations.Workflows) != 0 {
		t.Fatalf("Expected only templates, got %+v", ck.Recommendations)
	}
}

func TestInitializeDefaults(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	results, err := service.InitializeDefaults(ctx)
	if err != nil {
		t.Fatalf("Failed to initialize defaults: %v", err)
	}
	// Two templates plus the brand voice document.
	if results[knowledge.LayerSemantic] != 3 {
		t.Fatalf("Expected 3 semantic items, got %d", results[knowledge.LayerSemantic])
	}
	if results[knowledge.LayerKinetic] != 2 {
		t.Fatalf("Expected 2 kinetic items, got %d", results[knowledge.LayerKinetic])
	}
	if results[knowledge.LayerDynamic] != 0 {
		t.Fatalf("Expected 0 dynamic items, got %d", results[knowledge.LayerDynamic])
	}

	voice, err := service.Semantic().BrandVoice(ctx)
	if err != nil {
		t.Fatalf("Failed to fetch brand voice: %v", err)
	}
	if voice == nil {
		t.Fatal("Expected seeded brand voice")
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newTestService(t)

	if _, err := source.InitializeDefaults(ctx); err != nil {
		t.Fatalf("Failed to initialize defaults: %v", err)
	}

	backup, err := source.Backup(ctx)
	if err != nil {
		t.Fatalf("Failed to back up: %v", err)
	}
	if backup.Version != knowledge.BackupVersion {
		t.Fatalf("Expected version %s, got %s", knowledge.BackupVersion, backup.Version)
	}
	if len(backup.Layers[knowledge.LayerSemantic]) != 3 {
		t.Fatalf("Expected 3 semantic records, got %d", len(backup.Layers[knowledge.LayerSemantic]))
	}

	target := knowledge.NewService("gdg-x", memindex.New(64), hash.NewWithDimensions(64))
	restored, err := target.Restore(ctx, backup)
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if restored[knowledge.LayerSemantic] != 3 || restored[knowledge.LayerKinetic] != 2 {
		t.Fatalf("Unexpected restore counts: %v", restored)
	}

	stats, err := target.Statistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.TotalItems != 5 {
		t.Fatalf("Expected 5 restored items, got %d", stats.TotalItems)
	}
}

func TestBackup_UnsupportedBackendDegrades(t *testing.T) {
	ctx := context.Background()
	embedder := hash.NewWithDimensions(64)
	// An index without the Exporter capability.
	index := &queryOnlyIndex{inner: memindex.New(64)}
	service := knowledge.NewService("gdg-x", index, embedder)

	backup, err := service.Backup(ctx)
	if err != nil {
		t.Fatalf("Expected backup to degrade rather than fail: %v", err)
	}
	for _, layer := range knowledge.Layers {
		if len(backup.Layers[layer]) != 0 {
			t.Fatalf("Expected empty %s layer backup", layer)
		}
	}
}

func TestRestore_ChapterMismatchProceeds(t *testing.T) {
	ctx := context.Background()
	source := knowledge.NewService("gdg-a", memindex.New(64), hash.NewWithDimensions(64))
	if _, err := source.StoreItem(ctx, knowledge.LayerSemantic,
		knowledge.GenericContent{"text": "from another chapter"}, nil); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	backup, err := source.Backup(ctx)
	if err != nil {
		t.Fatalf("Failed to back up: %v", err)
	}

	target := knowledge.NewService("gdg-b", memindex.New(64), hash.NewWithDimensions(64))
	restored, err := target.Restore(ctx, backup)
	if err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}
	if restored[knowledge.LayerSemantic] != 1 {
		t.Fatalf("Expected restore to proceed despite chapter mismatch, got %v", restored)
	}
}

// queryOnlyIndex hides the capability interfaces of the wrapped index.
type queryOnlyIndex struct {
	inner *memindex.Index
}

func (q *queryOnlyIndex) Upsert(ctx context.Context, ns, id string, vector []float32, metadata map[string]any) error {
	return q.inner.Upsert(ctx, ns, id, vector, metadata)
}

func (q *queryOnlyIndex) Query(ctx context.Context, ns string, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	return q.inner.Query(ctx, ns, vector, filter, topK)
}

func (q *queryOnlyIndex) Dimensions() int {
	return q.inner.Dimensions()
}

func TestNamespace(t *testing.T) {
	ns := knowledge.Namespace("gdg", "gdg-x", knowledge.LayerSemantic)
	if ns != "gdg-gdg-x-semantic" {
		t.Fatalf("Unexpected namespace: %s", ns)
	}
}
