// Package memory implements the companion's episodic, semantic, and
// reflection memory over the shared vector index.
//
// Each memory type lives in its own chapter-scoped namespace
// ("{prefix}_{type}_{chapter}"). The Service is a stateless view: the index
// is the only long-lived store.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies a memory namespace.
type Type string

const (
	TypeEpisodic   Type = "episodic"
	TypeSemantic   Type = "semantic"
	TypeReflection Type = "reflection"
)

// DefaultNamespacePrefix is the default prefix for memory namespaces.
const DefaultNamespacePrefix = "memory"

// Namespace derives the index namespace for a chapter and memory type.
func Namespace(prefix string, t Type, chapterID string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, t, chapterID)
}

// Episodic records one user/agent interaction turn.
type Episodic struct {
	MemoryID      string
	SessionID     string
	Timestamp     time.Time
	AgentID       string
	UserInput     string
	AgentResponse string
	Context       map[string]any
	Metadata      map[string]any
}

// EnsureID derives the memory id when none was supplied. Nanosecond
// timestamps keep two turns stored in the same second from colliding.
func (m *Episodic) EnsureID() {
	if m.MemoryID == "" {
		m.MemoryID = fmt.Sprintf("ep_%s_%d", m.SessionID, m.Timestamp.UnixNano())
	}
}

func (m *Episodic) embeddingText() string {
	return fmt.Sprintf("User: %s\nAgent: %s", m.UserInput, m.AgentResponse)
}

// Semantic records a piece of domain knowledge.
type Semantic struct {
	MemoryID      string
	Domain        string
	Concept       string
	Content       string
	Relationships map[string]any
	Metadata      map[string]any
}

// EnsureID derives the memory id when none was supplied.
func (m *Semantic) EnsureID() {
	if m.MemoryID == "" {
		m.MemoryID = fmt.Sprintf("sem_%s_%s", m.Domain, shortHex())
	}
}

func (m *Semantic) embeddingText() string {
	return fmt.Sprintf("Domain: %s\nConcept: %s\nContent: %s", m.Domain, m.Concept, m.Content)
}

// Reflection records a derived analysis over a batch of episodic memories.
type Reflection struct {
	MemoryID        string
	ReflectionID    string
	SessionID       string
	Timestamp       time.Time
	Analysis        string
	Insights        []string
	Recommendations []string
	Metrics         map[string]float64
}

// EnsureID derives the memory id when none was supplied.
func (m *Reflection) EnsureID() {
	if m.MemoryID == "" {
		m.MemoryID = fmt.Sprintf("ref_%s_%d", m.ReflectionID, m.Timestamp.Unix())
	}
}

func (m *Reflection) embeddingText() string {
	return fmt.Sprintf("Analysis: %s\nInsights: %s", m.Analysis, strings.Join(m.Insights, "; "))
}

// shortHex returns an 8-hex-char random suffix.
func shortHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// metadataTextLimit caps long text fields persisted as metadata. Vectors are
// always computed from the untruncated text.
const metadataTextLimit = 500

// truncate shortens s to at most max runes, never splitting a multi-byte
// character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
