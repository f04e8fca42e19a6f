package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kylebrodeur/agentmem/internal/convstore"
	"github.com/kylebrodeur/agentmem/internal/embindex"
	"github.com/kylebrodeur/agentmem/internal/knowledge"
	"github.com/kylebrodeur/agentmem/internal/logging"
)

func newBuilderFixture(t *testing.T) (*Builder, *embindex.Index) {
	t.Helper()
	idx := embindex.New(t.TempDir(), embindex.Dimension, logging.Nop())
	clk := func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	return New(idx, clk), idx
}

func indexEvent(t *testing.T, idx *embindex.Index, id string, ev convstore.Event) {
	t.Helper()
	require.NoError(t, idx.Add(id, ev.EmbedText(), embindex.Metadata{Type: ev.TypeTag(), CreatedAt: ev.CreatedAt()}))
}

func TestBuildEmptyOnZeroBudget(t *testing.T) {
	b, _ := newBuilderFixture(t)
	out, err := b.Build(nil, nil, Request{MaxTokens: 0})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBuildEmptyOnNoCandidates(t *testing.T) {
	b, _ := newBuilderFixture(t)
	out, err := b.Build(nil, nil, Request{MaxTokens: 100})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBuildDedupsByContentHash(t *testing.T) {
	b, idx := newBuilderFixture(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	older := convstore.UserMessage{Type: "user_message", IDValue: "1", Session: "s", TurnValue: 1, Content: "same text", Created: now}
	newer := convstore.UserMessage{Type: "user_message", IDValue: "2", Session: "s", TurnValue: 2, Content: "same text", Created: now.Add(time.Hour)}
	indexEvent(t, idx, "user_message:1", older)
	indexEvent(t, idx, "user_message:2", newer)

	out, err := b.Build([]convstore.Event{older, newer}, nil, Request{MaxTokens: 1000})
	require.NoError(t, err)
	require.Equal(t, 1, countOccurrences(out, "same text"))
}

func TestBuildRespectsTokenBudget(t *testing.T) {
	b, idx := newBuilderFixture(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	short := convstore.UserMessage{Type: "user_message", IDValue: "1", Session: "s", TurnValue: 1, Content: "short", Created: now}
	long := convstore.UserMessage{Type: "user_message", IDValue: "2", Session: "s", TurnValue: 2, Content: "this is a considerably longer message with many more tokens in it", Created: now}
	indexEvent(t, idx, "user_message:1", short)
	indexEvent(t, idx, "user_message:2", long)

	out, err := b.Build([]convstore.Event{short, long}, nil, Request{MaxTokens: 1})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBuildIncludesKnowledgeWhenRequested(t *testing.T) {
	b, idx := newBuilderFixture(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	dec := knowledge.Decision{IDValue: "1", Question: "q", DecisionText: "use JWT", Rationale: "stateless", Created: now}
	require.NoError(t, idx.Add("decision:1", dec.EmbedText(), embindex.Metadata{Type: dec.TypeTag(), CreatedAt: dec.CreatedAt()}))

	out, err := b.Build(nil, []knowledge.Entry{dec}, Request{MaxTokens: 1000, IncludeKnowledge: true})
	require.NoError(t, err)
	require.Contains(t, out, "[decision]")
}

func TestBuildAgentFilter(t *testing.T) {
	b, idx := newBuilderFixture(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fromA := convstore.AssistantMessage{Type: "assistant_message", IDValue: "1", Session: "s", TurnValue: 1, Content: "from model A", Model: "model-a", Created: now}
	fromB := convstore.AssistantMessage{Type: "assistant_message", IDValue: "2", Session: "s", TurnValue: 1, Content: "from model B", Model: "model-b", Created: now}
	indexEvent(t, idx, "assistant_message:1", fromA)
	indexEvent(t, idx, "assistant_message:2", fromB)

	out, err := b.Build([]convstore.Event{fromA, fromB}, nil, Request{MaxTokens: 1000, Agent: "model-a"})
	require.NoError(t, err)
	require.Contains(t, out, "from model A")
	require.NotContains(t, out, "from model B")
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
