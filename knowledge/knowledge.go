// Package knowledge implements the three-layer knowledge architecture for a
// community chapter:
//
//   - Semantic layer: static, foundational knowledge (templates, brand voice)
//   - Kinetic layer: process knowledge (workflows, freshly generated content)
//   - Dynamic layer: content with recorded performance metrics
//
// All layers are chapter-scoped views over a shared vectorstore.Index; the
// index is the only long-lived state. An item enters the kinetic or semantic
// layer at creation time; once performance feedback arrives it is re-embedded
// and appended to the dynamic layer under a new id, leaving the original in
// place.
package knowledge

import (
	"fmt"
)

// Layer identifies a knowledge maturity classification.
type Layer string

const (
	LayerSemantic Layer = "semantic"
	LayerKinetic  Layer = "kinetic"
	LayerDynamic  Layer = "dynamic"
)

// Layers lists all layers in declaration order.
var Layers = []Layer{LayerSemantic, LayerKinetic, LayerDynamic}

// PriorityOrder is the search order when no layer is specified: foundational
// knowledge first, then learned, then in-progress process output. Pooled
// results are re-sorted by score, so this order only decides ties.
var PriorityOrder = []Layer{LayerSemantic, LayerDynamic, LayerKinetic}

// Valid reports whether l names a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerSemantic, LayerKinetic, LayerDynamic:
		return true
	}
	return false
}

// DefaultNamespacePrefix is the default prefix for knowledge namespaces.
const DefaultNamespacePrefix = "gdg"

// Namespace derives the index namespace for a chapter and layer.
func Namespace(prefix, chapterID string, layer Layer) string {
	return fmt.Sprintf("%s-%s-%s", prefix, chapterID, layer)
}

// Item is one knowledge search hit.
type Item struct {
	ID       string
	Score    float32
	Layer    Layer
	Metadata map[string]any
}

// Content extracts the stored content document from the item metadata, if
// present.
func (it Item) Content() (map[string]any, bool) {
	c, ok := it.Metadata["content"].(map[string]any)
	return c, ok
}

// LayerSearchError reports a failed search in one layer. At the aggregation
// boundary it is logged and degraded to an empty result set rather than
// aborting the cross-layer search.
type LayerSearchError struct {
	Layer Layer
	Err   error
}

func (e *LayerSearchError) Error() string {
	return fmt.Sprintf("%s layer search failed: %v", e.Layer, e.Err)
}

func (e *LayerSearchError) Unwrap() error {
	return e.Err
}
