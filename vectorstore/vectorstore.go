// Package vectorstore defines the namespaced vector index contract that the
// knowledge and memory layers are built on.
//
// An Index maps (namespace, id) to a vector plus metadata and answers top-k
// cosine-similarity queries within a single namespace. Namespaces isolate
// tenants: records are never compared across namespaces, and a caller that
// wants a cross-namespace view issues one query per namespace and merges.
//
// Implementations: memindex.Index (in-memory reference engine),
// chromem.Store (chromem-go backed).
package vectorstore

import (
	"context"
	"fmt"
)

// Match is one query result.
type Match struct {
	ID       string
	Score    float32 // cosine similarity in [-1, 1], higher is more similar
	Metadata map[string]any
}

// Record is a stored vector with its metadata, as returned by Exporter.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Filter selects records by metadata. Each key matches by equality, except
// that a value which is itself a map with a single "$"-prefixed key is
// interpreted as an operator expression:
//
//	Filter{"performance": map[string]any{"$gt": 0.7}}
//
// Supported operators are $gt and $lt on numeric fields. The consequence of
// this encoding is that metadata cannot literally hold a map value whose only
// key starts with "$" and still be filterable by equality; such a filter
// value is always read as an operator expression. Any other map or slice
// filter value compares structurally against the stored metadata value.
type Filter map[string]any

// Index is the vector storage backend interface.
type Index interface {
	// Upsert stores a record, overwriting any existing record with the same
	// id in the same namespace. It fails with a *DimensionError when the
	// vector length does not match the index dimension, leaving the index
	// unchanged.
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error

	// Query returns up to topK records of the namespace ordered by
	// non-increasing similarity to vector, ties broken by insertion order.
	// Records not matching filter are skipped. An unknown namespace yields
	// an empty result, never an error.
	Query(ctx context.Context, namespace string, vector []float32, filter Filter, topK int) ([]Match, error)

	// Dimensions returns the fixed vector dimension of this index.
	Dimensions() int
}

// Deleter is an optional capability: delete every record of a namespace
// matching a filter. Backends without range deletes simply don't implement
// it, and callers degrade to a no-op.
type Deleter interface {
	DeleteWhere(ctx context.Context, namespace string, filter Filter) (int, error)
}

// Exporter is an optional capability: enumerate all records of a namespace,
// vectors included, for backup and restore.
type Exporter interface {
	Export(ctx context.Context, namespace string) ([]Record, error)
}

// Counter is an optional capability: count records in a namespace.
type Counter interface {
	Count(ctx context.Context, namespace string) (int, error)
}

// DimensionError reports a vector whose length does not match the index
// dimension. It indicates a configuration bug; vectors are never silently
// truncated or padded.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}
