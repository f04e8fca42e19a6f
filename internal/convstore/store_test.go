package convstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kylebrodeur/agentmem/internal/embindex"
	"github.com/kylebrodeur/agentmem/internal/logging"
)

type fakeIndexer struct {
	added  map[string]string
	failOn string
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{added: map[string]string{}}
}

func (f *fakeIndexer) Add(id, text string, meta embindex.Metadata) error {
	if id == f.failOn {
		return errors.New("simulated index failure")
	}
	f.added[id] = text
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, idx Indexer) *Store {
	t.Helper()
	n := 0
	idGen := func() string { n++; return "id-" + string(rune('a'+n)) }
	return New(t.TempDir(), idx, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), idGen, logging.Nop())
}

func TestAddUserMessageValidation(t *testing.T) {
	s := newTestStore(t, newFakeIndexer())

	_, err := s.AddUserMessage("", 1, "sess", nil)
	require.Error(t, err)

	_, err = s.AddUserMessage("hi", 0, "sess", nil)
	require.Error(t, err)

	_, err = s.AddUserMessage("hi", 1, "", nil)
	require.Error(t, err)

	m, err := s.AddUserMessage("hi", 1, "sess", []string{"greeting"})
	require.NoError(t, err)
	require.Equal(t, "user_message", m.TypeTag())
	require.Equal(t, "hi", m.EmbedText())
}

func TestToolUseEmbedText(t *testing.T) {
	resp := "wrote 3 lines"
	tu := ToolUse{
		ToolName:     "Edit",
		ToolInput:    map[string]any{"path": "main.go"},
		ToolResponse: &resp,
	}
	require.Equal(t, `Edit: {"path":"main.go"} → wrote 3 lines`, tu.EmbedText())
}

func TestToolUseEmbedTextNoResponse(t *testing.T) {
	tu := ToolUse{ToolName: "Read", ToolInput: map[string]any{"path": "a.go"}}
	require.Equal(t, `Read: {"path":"a.go"} → `, tu.EmbedText())
}

func TestAppendAndIndexPersistsEvenWhenIndexFails(t *testing.T) {
	idx := newFakeIndexer()
	s := newTestStore(t, idx)
	idx.failOn = "user_message:id-b" // the id the first AddUserMessage will receive

	_, err := s.AddUserMessage("will fail to index but still persist", 1, "sess", nil)
	require.NoError(t, err)

	events, err := s.ListEvents("sess", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Empty(t, idx.added)
}

func TestListEventsOrderingAndFilter(t *testing.T) {
	s := newTestStore(t, newFakeIndexer())

	_, err := s.AddUserMessage("first", 1, "sess", nil)
	require.NoError(t, err)
	_, err = s.AddAssistantMessage("second", 1, "sess", nil, nil, "model-x")
	require.NoError(t, err)

	events, err := s.ListEvents("sess", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "user_message", events[0].TypeTag())
	require.Equal(t, "assistant_message", events[1].TypeTag())

	filtered, err := s.ListEvents("sess", "assistant_message")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestRebuildReindexesPersistedEvents(t *testing.T) {
	primary := newFakeIndexer()
	s := newTestStore(t, primary)

	_, err := s.AddUserMessage("hello", 1, "sess", nil)
	require.NoError(t, err)

	secondary := newFakeIndexer()
	n, err := s.Rebuild(secondary)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, secondary.added, 1)
}

func TestStatsCountsEventsAndTokens(t *testing.T) {
	s := newTestStore(t, newFakeIndexer())

	tokensIn, tokensOut := 10, 20
	_, err := s.AddUserMessage("hi", 1, "sess", nil)
	require.NoError(t, err)
	_, err = s.AddAssistantMessage("hello back", 1, "sess", &tokensIn, &tokensOut, "model-x")
	require.NoError(t, err)
	_, err = s.AddToolUse("Read", map[string]any{"path": "a.go"}, nil, 1, "sess", nil, true)
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.UserMessages)
	require.Equal(t, 1, stats.AssistantMessages)
	require.Equal(t, 1, stats.ToolUses)
	require.Equal(t, 30, stats.TotalTokens)
}
