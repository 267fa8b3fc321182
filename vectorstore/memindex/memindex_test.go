package memindex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/communitykit/companion/embed/hash"
	"github.com/communitykit/companion/vectorstore"
	"github.com/communitykit/companion/vectorstore/memindex"
)

func TestUpsertAndQuery_SelfSimilarity(t *testing.T) {
	ctx := context.Background()
	embedder := hash.NewWithDimensions(64)
	index := memindex.New(64)

	vec, err := embedder.Embed(ctx, "flutter workshop announcement")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	if err := index.Upsert(ctx, "ns", "item1", vec, map[string]any{"type": "template"}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	matches, err := index.Query(ctx, "ns", vec, nil, 5)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	if matches[0].ID != "item1" {
		t.Fatalf("Expected item1, got %s", matches[0].ID)
	}
	if matches[0].Score < 0.999 {
		t.Fatalf("Expected self-similarity near 1.0, got %v", matches[0].Score)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(64)

	err := index.Upsert(ctx, "ns", "bad", make([]float32, 32), nil)
	if err == nil {
		t.Fatal("Expected dimension error")
	}
	var dimErr *vectorstore.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("Expected DimensionError, got %T", err)
	}
	if dimErr.Want != 64 || dimErr.Got != 32 {
		t.Fatalf("Unexpected dimension error: %v", dimErr)
	}

	// Nothing was written.
	count, err := index.Count(ctx, "ns")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected empty namespace after failed upsert, got %d", count)
	}
}

func TestQuery_UnknownNamespace(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(8)

	matches, err := index.Query(ctx, "nowhere", make([]float32, 8), nil, 3)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Expected empty result, got %d matches", len(matches))
	}
}

func TestQuery_TopKAndOrdering(t *testing.T) {
	ctx := context.Background()
	embedder := hash.NewWithDimensions(64)
	index := memindex.New(64)

	query, _ := embedder.Embed(ctx, "query text")
	texts := []string{"query text", "somewhat related", "entirely different subject"}
	for i, text := range texts {
		vec, _ := embedder.Embed(ctx, text)
		id := []string{"exact", "near", "far"}[i]
		if err := index.Upsert(ctx, "ns", id, vec, nil); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	matches, err := index.Query(ctx, "ns", query, nil, 2)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "exact" {
		t.Fatalf("Expected exact match first, got %s", matches[0].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatal("Expected descending score order")
	}
}

func TestQuery_StableTieBreak(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)

	// Identical vectors, so every score ties; insertion order decides.
	vec := []float32{1, 0, 0, 0}
	for _, id := range []string{"first", "second", "third"} {
		if err := index.Upsert(ctx, "ns", id, vec, nil); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	matches, err := index.Query(ctx, "ns", vec, nil, 3)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	got := []string{matches[0].ID, matches[1].ID, matches[2].ID}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected insertion-order ties %v, got %v", want, got)
		}
	}
}

func TestQuery_TopKZero(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)
	if err := index.Upsert(ctx, "ns", "a", []float32{1, 0, 0, 0}, nil); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	matches, err := index.Query(ctx, "ns", []float32{1, 0, 0, 0}, nil, 0)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Expected no matches for topK 0, got %d", len(matches))
	}
}

func TestQuery_Filtered(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)
	vec := []float32{0, 1, 0, 0}

	index.Upsert(ctx, "ns", "tpl", vec, map[string]any{"type": "template", "score": 0.9})
	index.Upsert(ctx, "ns", "wf", vec, map[string]any{"type": "workflow", "score": 0.5})

	matches, err := index.Query(ctx, "ns", vec, vectorstore.Filter{"type": "template"}, 10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "tpl" {
		t.Fatalf("Expected only tpl, got %v", matches)
	}

	matches, err = index.Query(ctx, "ns", vec, vectorstore.Filter{"score": map[string]any{"$gt": 0.7}}, 10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "tpl" {
		t.Fatalf("Expected only tpl above threshold, got %v", matches)
	}
}

func TestDeleteWhere(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)
	vec := []float32{0, 0, 1, 0}

	index.Upsert(ctx, "ns", "old", vec, map[string]any{"timestamp_unix": float64(100)})
	index.Upsert(ctx, "ns", "new", vec, map[string]any{"timestamp_unix": float64(900)})

	deleted, err := index.DeleteWhere(ctx, "ns", vectorstore.Filter{
		"timestamp_unix": map[string]any{"$lt": float64(500)},
	})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Expected 1 deleted, got %d", deleted)
	}

	count, _ := index.Count(ctx, "ns")
	if count != 1 {
		t.Fatalf("Expected 1 remaining, got %d", count)
	}
}

func TestExport_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)
	vec := []float32{1, 1, 0, 0}

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		index.Upsert(ctx, "ns", id, vec, map[string]any{"id": id})
	}

	records, err := index.Export(ctx, "ns")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, id := range ids {
		if records[i].ID != id {
			t.Fatalf("Expected insertion order %v, got %s at %d", ids, records[i].ID, i)
		}
	}
}

func TestUpsert_OverwritePreservesOrder(t *testing.T) {
	ctx := context.Background()
	index := memindex.New(4)
	vec := []float32{1, 0, 0, 0}

	index.Upsert(ctx, "ns", "a", vec, map[string]any{"v": 1})
	index.Upsert(ctx, "ns", "b", vec, map[string]any{"v": 1})
	index.Upsert(ctx, "ns", "a", vec, map[string]any{"v": 2})

	records, err := index.Export(ctx, "ns")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Fatalf("Expected overwrite to keep position, got %s, %s", records[0].ID, records[1].ID)
	}
	if v, _ := records[0].Metadata["v"].(int); v != 2 {
		t.Fatalf("Expected overwritten metadata, got %v", records[0].Metadata["v"])
	}
}
