// Package cached wraps an Embedder with a ristretto cache. Embedding is the
// expensive external call in the retrieval path; repeated queries for the
// same text (default templates, session-memory probes) hit the cache instead.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/communitykit/companion/embed"
)

// Config holds cache sizing.
type Config struct {
	// MaxBytes caps the total cached vector data.
	// Default: 64 MiB.
	MaxBytes int64

	// MaxEntries estimates how many distinct texts to track frequency for.
	// Default: 100k.
	MaxEntries int64
}

// DefaultConfig returns sensible defaults for local use.
var DefaultConfig = &Config{
	MaxBytes:   64 << 20,
	MaxEntries: 100_000,
}

// Embedder caches vectors from an inner embedder, keyed by the exact text.
type Embedder struct {
	inner embed.Embedder
	cache *ristretto.Cache
}

// New creates a caching embedder around inner.
func New(inner embed.Embedder, config *Config) (*Embedder, error) {
	if config == nil {
		config = DefaultConfig
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.MaxEntries * 10,
		MaxCost:     config.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, embedding on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// Cost is the vector payload size; float32 is 4 bytes.
	e.cache.Set(text, vec, int64(len(vec))*4)
	return vec, nil
}

// EmbedMany embeds each text through the cache.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are visible. Tests use this.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases cache resources.
func (e *Embedder) Close() {
	e.cache.Close()
}
