package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/communitykit/companion/embed"
	"github.com/communitykit/companion/vectorstore"
)

// sessionQueryLimit bounds how many episodic records a session lookup pulls.
const sessionQueryLimit = 100

// Service stores and retrieves memories for one chapter.
type Service struct {
	index     vectorstore.Index
	embedder  embed.Embedder
	chapterID string
	prefix    string
}

// Option configures the service.
type Option func(*Service)

// WithNamespacePrefix overrides the default namespace prefix.
func WithNamespacePrefix(prefix string) Option {
	return func(s *Service) {
		s.prefix = prefix
	}
}

// NewService creates a memory service over a connected index and embedder.
func NewService(index vectorstore.Index, embedder embed.Embedder, chapterID string, opts ...Option) *Service {
	s := &Service{
		index:     index,
		embedder:  embedder,
		chapterID: chapterID,
		prefix:    DefaultNamespacePrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("[MEMORY] Service initialized for chapter %s", chapterID)
	return s
}

func (s *Service) namespace(t Type) string {
	return Namespace(s.prefix, t, s.chapterID)
}

// StoreEpisodic stores one interaction turn. The vector is computed from the
// untruncated user input and agent response; the metadata copies are capped
// at 500 characters.
func (s *Service) StoreEpisodic(ctx context.Context, m *Episodic) (string, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	m.EnsureID()

	vector, err := s.embedder.Embed(ctx, m.embeddingText())
	if err != nil {
		return "", &embed.Error{Op: "embed episodic memory", Err: err}
	}

	metadata := map[string]any{
		"type":           string(TypeEpisodic),
		"session_id":     m.SessionID,
		"timestamp":      m.Timestamp.UTC().Format(time.RFC3339Nano),
		"timestamp_unix": float64(m.Timestamp.Unix()),
		"agent_id":       m.AgentID,
		"user_input":     truncate(m.UserInput, metadataTextLimit),
		"agent_response": truncate(m.AgentResponse, metadataTextLimit),
		"context":        m.Context,
		"chapter_id":     s.chapterID,
	}
	for k, v := range m.Metadata {
		metadata[k] = v
	}

	if err := s.index.Upsert(ctx, s.namespace(TypeEpisodic), m.MemoryID, vector, metadata); err != nil {
		return "", fmt.Errorf("store episodic memory: %w", err)
	}
	log.Printf("[MEMORY] Stored episodic memory %s", m.MemoryID)
	return m.MemoryID, nil
}

// StoreSemantic stores a domain knowledge entry.
func (s *Service) StoreSemantic(ctx context.Context, m *Semantic) (string, error) {
	m.EnsureID()

	vector, err := s.embedder.Embed(ctx, m.embeddingText())
	if err != nil {
		return "", &embed.Error{Op: "embed semantic memory", Err: err}
	}

	metadata := map[string]any{
		"type":          string(TypeSemantic),
		"domain":        m.Domain,
		"concept":       m.Concept,
		"content":       truncate(m.Content, metadataTextLimit),
		"relationships": m.Relationships,
		"chapter_id":    s.chapterID,
	}
	for k, v := range m.Metadata {
		metadata[k] = v
	}

	if err := s.index.Upsert(ctx, s.namespace(TypeSemantic), m.MemoryID, vector, metadata); err != nil {
		return "", fmt.Errorf("store semantic memory: %w", err)
	}
	log.Printf("[MEMORY] Stored semantic memory %s", m.MemoryID)
	return m.MemoryID, nil
}

// StoreReflection stores a reflection entry.
func (s *Service) StoreReflection(ctx context.Context, m *Reflection) (string, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	m.EnsureID()

	vector, err := s.embedder.Embed(ctx, m.embeddingText())
	if err != nil {
		return "", &embed.Error{Op: "embed reflection memory", Err: err}
	}

	metrics := make(map[string]any, len(m.Metrics))
	for k, v := range m.Metrics {
		metrics[k] = v
	}
	metadata := map[string]any{
		"type":            string(TypeReflection),
		"reflection_id":   m.ReflectionID,
		"session_id":      m.SessionID,
		"timestamp":       m.Timestamp.UTC().Format(time.RFC3339Nano),
		"timestamp_unix":  float64(m.Timestamp.Unix()),
		"analysis":        truncate(m.Analysis, metadataTextLimit),
		"insights":        m.Insights,
		"recommendations": m.Recommendations,
		"metrics":         metrics,
		"chapter_id":      s.chapterID,
	}

	if err := s.index.Upsert(ctx, s.namespace(TypeReflection), m.MemoryID, vector, metadata); err != nil {
		return "", fmt.Errorf("store reflection memory: %w", err)
	}
	log.Printf("[MEMORY] Stored reflection memory %s", m.MemoryID)
	return m.MemoryID, nil
}

// Retrieved is one memory search hit.
type Retrieved struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// RetrieveRelevant queries each requested memory type's namespace for the
// query, optionally narrowed to one session, and returns per-type ranked
// lists.
func (s *Service) RetrieveRelevant(ctx context.Context, query string, types []Type, k int, sessionID string) (map[Type][]Retrieved, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &embed.Error{Op: "embed query", Err: err}
	}

	results := make(map[Type][]Retrieved, len(types))
	for _, t := range types {
		filter := vectorstore.Filter{"chapter_id": s.chapterID}
		if sessionID != "" {
			filter["session_id"] = sessionID
		}

		matches, err := s.index.Query(ctx, s.namespace(t), vector, filter, k)
		if err != nil {
			return nil, fmt.Errorf("query %s memories: %w", t, err)
		}

		retrieved := make([]Retrieved, len(matches))
		for i, m := range matches {
			retrieved[i] = Retrieved{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
		}
		results[t] = retrieved
	}
	return results, nil
}

// SessionMemories returns all episodic memories of a session sorted
// ascending by timestamp. The intent is metadata filtering, not semantic
// ranking, so the query uses a fixed neutral probe vector.
func (s *Service) SessionMemories(ctx context.Context, sessionID string) ([]Retrieved, error) {
	probe, err := s.embedder.Embed(ctx, "session memories")
	if err != nil {
		return nil, &embed.Error{Op: "embed session probe", Err: err}
	}

	filter := vectorstore.Filter{
		"session_id": sessionID,
		"chapter_id": s.chapterID,
	}
	matches, err := s.index.Query(ctx, s.namespace(TypeEpisodic), probe, filter, sessionQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query session memories: %w", err)
	}

	memories := make([]Retrieved, len(matches))
	for i, m := range matches {
		memories[i] = Retrieved{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	sort.SliceStable(memories, func(i, j int) bool {
		ti, _ := memories[i].Metadata["timestamp"].(string)
		tj, _ := memories[j].Metadata["timestamp"].(string)
		return ti < tj
	})

	log.Printf("[MEMORY] Retrieved %d memories for session %s", len(memories), sessionID)
	return memories, nil
}

// CleanupOldMemories removes episodic and reflection memories older than the
// retention window and returns how many were deleted. Backends without
// range deletes degrade to a no-op returning 0.
func (s *Service) CleanupOldMemories(ctx context.Context, daysToKeep int) (int, error) {
	deleter, ok := s.index.(vectorstore.Deleter)
	if !ok {
		log.Printf("[MEMORY] Index backend cannot delete by filter; cleanup skipped")
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)
	filter := vectorstore.Filter{
		"timestamp_unix": map[string]any{"$lt": float64(cutoff.Unix())},
	}

	deleted := 0
	for _, t := range []Type{TypeEpisodic, TypeReflection} {
		n, err := deleter.DeleteWhere(ctx, s.namespace(t), filter)
		if err != nil {
			return deleted, fmt.Errorf("cleanup %s memories: %w", t, err)
		}
		deleted += n
	}

	log.Printf("[MEMORY] Cleaned up %d memories older than %s", deleted, cutoff.Format(time.RFC3339))
	return deleted, nil
}

// Statistics reports per-type memory counts. Backends without the Counter
// capability report zero.
type Statistics struct {
	ChapterID string       `json:"chapter_id"`
	Counts    map[Type]int `json:"memory_counts"`
}

// Statistics counts stored memories per type.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ChapterID: s.chapterID,
		Counts:    map[Type]int{TypeEpisodic: 0, TypeSemantic: 0, TypeReflection: 0},
	}

	counter, ok := s.index.(vectorstore.Counter)
	if !ok {
		log.Printf("[MEMORY] Index backend cannot count; reporting zero memories")
		return stats, nil
	}
	for t := range stats.Counts {
		n, err := counter.Count(ctx, s.namespace(t))
		if err != nil {
			return nil, fmt.Errorf("count %s memories: %w", t, err)
		}
		stats.Counts[t] = n
	}
	return stats, nil
}
