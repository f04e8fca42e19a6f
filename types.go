package agentmem

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/kylebrodeur/agentmem/internal/convstore"
	"github.com/kylebrodeur/agentmem/internal/knowledge"
)

// Conversation event types, aliased from the internal package that
// implements the conversation log so callers never need to import an
// internal path to name them.
type (
	UserMessage      = convstore.UserMessage
	AssistantMessage = convstore.AssistantMessage
	ToolUse          = convstore.ToolUse
)

// Knowledge entry types, aliased from the internal package that
// implements the knowledge tables.
type (
	Convention = knowledge.Convention
	Decision   = knowledge.Decision
	Learning   = knowledge.Learning
	Artifact   = knowledge.Artifact
)

// SearchResult is one row of Search's output.
type SearchResult struct {
	ID         string
	Type       string
	Text       string
	Similarity float64
	SessionID  string
	Topics     []string
	Confidence *float64
}

// ConversationStats reports per-event-type counters.
type ConversationStats = convstore.Stats

// KnowledgeStats reports per-table counters.
type KnowledgeStats = knowledge.Stats

// EmbeddingStats reports index size and dimension.
type EmbeddingStats struct {
	Vectors   int
	Dimension int
}

// Stats is the aggregate introspection payload returned by Store.Stats.
type Stats struct {
	Conversations ConversationStats
	Knowledge     KnowledgeStats
	Embeddings    EmbeddingStats
}

// String renders a one-line human-readable summary, e.g. for a CLI's
// `stats` subcommand. Counts are comma-grouped for readability once a
// project accumulates thousands of entries.
func (s Stats) String() string {
	return fmt.Sprintf(
		"%s conversation events (%s assistant, %s tool uses), %s knowledge entries, %s vectors (dim %d)",
		humanize.Comma(int64(s.Conversations.UserMessages+s.Conversations.AssistantMessages+s.Conversations.ToolUses)),
		humanize.Comma(int64(s.Conversations.AssistantMessages)),
		humanize.Comma(int64(s.Conversations.ToolUses)),
		humanize.Comma(int64(s.Knowledge.Conventions+s.Knowledge.Decisions+s.Knowledge.Learnings+s.Knowledge.Artifacts)),
		humanize.Comma(int64(s.Embeddings.Vectors)),
		s.Embeddings.Dimension,
	)
}
