// Package embed converts text into fixed-length vectors for similarity
// search. Implementations can be SDK-provided (hash.Embedder for testing,
// onnx.Embedder for local models) or user-defined (hosted embedding APIs).
//
// The contract does not require determinism: a hosted model may return
// different vectors for identical text across calls. The hash embedder is
// deterministic and is the reference implementation for tests.
package embed

import (
	"context"
	"fmt"
)

// Embedder converts text to vector embeddings.
//
// Dimensions is fixed per deployment; every vector an Embedder returns has
// exactly that length, and the backing index rejects anything else.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany converts a batch of texts. Either all texts are embedded or
	// an error is returned; there are no partial results.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Texter is implemented by structured content that knows its own canonical
// text representation for embedding.
type Texter interface {
	EmbeddingText() string
}

// Structured embeds structured content through its canonical text view.
func Structured(ctx context.Context, e Embedder, content Texter) ([]float32, error) {
	return e.Embed(ctx, content.EmbeddingText())
}

// Error reports a failure from the embedding backend. It is fatal to the
// single operation that triggered it: no partial write proceeds, and the
// core does not retry (the caller decides).
type Error struct {
	Op  string // operation that failed, e.g. "embed", "embed_many"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
