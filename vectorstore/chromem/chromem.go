// Package chromem backs the vectorstore.Index contract with chromem-go, a
// pure Go embedded vector database.
//
// chromem-go natively supports string-equality metadata filters. Operator
// expressions ($gt/$lt) are applied here after the similarity query, over an
// over-fetched candidate set. The store does not implement the Deleter or
// Exporter capabilities; cleanup and backup degrade explicitly on this
// backend.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/communitykit/companion/vectorstore"
)

// overFetchFactor widens similarity queries so post-applied operator filters
// still have topK survivors to choose from.
const overFetchFactor = 4

// Store wraps chromem-go as a namespaced vector index.
type Store struct {
	dimensions  int
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates a chromem-backed store with a fixed vector dimension.
func New(dimensions int) (*Store, error) {
	return &Store{
		dimensions:  dimensions,
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Dimensions returns the fixed vector dimension.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// getOrCreateCollection returns the collection for a namespace.
func (s *Store) getOrCreateCollection(ns string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[ns]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if col, exists := s.collections[ns]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(ns, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[ns] = col
	return col, nil
}

// getCollection returns the collection for a namespace if it exists.
func (s *Store) getCollection(ns string) (*chromem.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[ns]
	return col, ok
}

// Upsert stores a record with its embedding.
func (s *Store) Upsert(ctx context.Context, ns, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != s.dimensions {
		return &vectorstore.DimensionError{Want: s.dimensions, Got: len(vector)}
	}

	col, err := s.getOrCreateCollection(ns)
	if err != nil {
		return err
	}

	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: vector,
		Metadata:  encoded,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns the topK most similar records of the namespace. Equality
// filter terms are pushed down to chromem; operator terms are applied to the
// over-fetched results.
func (s *Store) Query(ctx context.Context, ns string, vector []float32, filter vectorstore.Filter, topK int) ([]vectorstore.Match, error) {
	if len(vector) != s.dimensions {
		return nil, &vectorstore.DimensionError{Want: s.dimensions, Got: len(vector)}
	}
	if topK <= 0 {
		return nil, nil
	}

	col, ok := s.getCollection(ns)
	if !ok {
		// Unknown namespace is an empty result, not an error.
		return nil, nil
	}

	where, operators, err := splitFilter(filter)
	if err != nil {
		return nil, err
	}

	want := topK
	if len(operators) > 0 {
		want = topK * overFetchFactor
	}
	// chromem rejects nResults larger than the collection.
	if count := col.Count(); want > count {
		want = count
	}
	if want == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, want, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(results))
	for i, result := range results {
		metadata, err := decodeMetadata(result.Metadata)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		if len(operators) > 0 && !operators.Matches(metadata) {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       result.ID,
			Score:    result.Similarity,
			Metadata: metadata,
		})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// Count returns the number of records in a namespace.
func (s *Store) Count(ctx context.Context, ns string) (int, error) {
	col, ok := s.getCollection(ns)
	if !ok {
		return 0, nil
	}
	return col.Count(), nil
}

// splitFilter separates equality terms (pushed down as chromem's string
// where-clause) from operator expressions (applied post-query).
func splitFilter(filter vectorstore.Filter) (where map[string]string, operators vectorstore.Filter, err error) {
	if len(filter) == 0 {
		return nil, nil, nil
	}
	where = make(map[string]string)
	for key, value := range filter {
		if m, ok := value.(map[string]any); ok && len(m) == 1 {
			operator := false
			for k := range m {
				if len(k) > 1 && k[0] == '$' {
					operator = true
				}
			}
			if operator {
				if operators == nil {
					operators = vectorstore.Filter{}
				}
				operators[key] = value
				continue
			}
		}
		encoded, encErr := encodeValue(value)
		if encErr != nil {
			return nil, nil, fmt.Errorf("encode filter value for %q: %w", key, encErr)
		}
		where[key] = encoded
	}
	if len(where) == 0 {
		where = nil
	}
	return where, operators, nil
}

// encodeMetadata converts metadata to chromem's string map. Every value is
// JSON-encoded so the round trip is unambiguous (a string never collides
// with a number rendered as text).
func encodeMetadata(metadata map[string]any) (map[string]string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	encoded := make(map[string]string, len(metadata))
	for k, v := range metadata {
		s, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		encoded[k] = s
	}
	return encoded, nil
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(encoded map[string]string) (map[string]any, error) {
	if len(encoded) == 0 {
		return map[string]any{}, nil
	}
	metadata := make(map[string]any, len(encoded))
	for k, s := range encoded {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decode key %q: %w", k, err)
		}
		metadata[k] = v
	}
	return metadata, nil
}
