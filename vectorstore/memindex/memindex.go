// Package memindex is the in-memory reference implementation of the
// vectorstore.Index contract: exact cosine similarity, full filter support,
// and the delete/export/count capabilities. It backs tests and local
// deployments that don't need persistence.
package memindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/communitykit/companion/vectorstore"
)

// record keeps its insertion sequence so equal-score query results come back
// in insertion order.
type record struct {
	id       string
	vector   []float32
	metadata map[string]any
	seq      int
}

type namespace struct {
	records map[string]*record
	nextSeq int
}

// Index is a namespaced in-memory vector index.
type Index struct {
	dimensions int

	mu         sync.RWMutex
	namespaces map[string]*namespace
}

// New creates an index with a fixed vector dimension.
func New(dimensions int) *Index {
	return &Index{
		dimensions: dimensions,
		namespaces: make(map[string]*namespace),
	}
}

// Dimensions returns the fixed vector dimension.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// Upsert stores a record, overwriting an existing id within the namespace.
// An overwrite keeps the original insertion sequence so tie-break ordering
// stays stable.
func (ix *Index) Upsert(ctx context.Context, ns, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != ix.dimensions {
		return &vectorstore.DimensionError{Want: ix.dimensions, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, ok := ix.namespaces[ns]
	if !ok {
		n = &namespace{records: make(map[string]*record)}
		ix.namespaces[ns] = n
	}

	if existing, ok := n.records[id]; ok {
		existing.vector = vec
		existing.metadata = meta
		return nil
	}

	n.records[id] = &record{id: id, vector: vec, metadata: meta, seq: n.nextSeq}
	n.nextSeq++
	return nil
}

// Query returns the topK most similar records of the namespace matching the
// filter. An unknown namespace yields an empty result.
func (ix *Index) Query(ctx context.Context, ns string, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	if len(vector) != ix.dimensions {
		return nil, &vectorstore.DimensionError{Want: ix.dimensions, Got: len(vector)}
	}
	if topK <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, ok := ix.namespaces[ns]
	if !ok {
		return nil, nil
	}

	type scored struct {
		rec   *record
		score float32
	}
	candidates := make([]scored, 0, len(n.records))
	for _, rec := range n.records {
		if !filter.Matches(rec.metadata) {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: cosine(vector, rec.vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]vectorstore.Match, len(candidates))
	for i, c := range candidates {
		meta := make(map[string]any, len(c.rec.metadata))
		for k, v := range c.rec.metadata {
			meta[k] = v
		}
		matches[i] = vectorstore.Match{ID: c.rec.id, Score: c.score, Metadata: meta}
	}
	return matches, nil
}

// DeleteWhere removes every record of the namespace matching the filter and
// returns how many were removed.
func (ix *Index) DeleteWhere(ctx context.Context, ns string, filter vectorstore.Filter) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, ok := ix.namespaces[ns]
	if !ok {
		return 0, nil
	}

	deleted := 0
	for id, rec := range n.records {
		if filter.Matches(rec.metadata) {
			delete(n.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Export enumerates all records of a namespace in insertion order.
func (ix *Index) Export(ctx context.Context, ns string) ([]vectorstore.Record, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, ok := ix.namespaces[ns]
	if !ok {
		return nil, nil
	}

	records := make([]*record, 0, len(n.records))
	for _, rec := range n.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	out := make([]vectorstore.Record, len(records))
	for i, rec := range records {
		vec := make([]float32, len(rec.vector))
		copy(vec, rec.vector)
		meta := make(map[string]any, len(rec.metadata))
		for k, v := range rec.metadata {
			meta[k] = v
		}
		out[i] = vectorstore.Record{ID: rec.id, Vector: vec, Metadata: meta}
	}
	return out, nil
}

// Count returns the number of records in a namespace.
func (ix *Index) Count(ctx context.Context, ns string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n, ok := ix.namespaces[ns]
	if !ok {
		return 0, nil
	}
	return len(n.records), nil
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
