package agentmem

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, now time.Time) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	n := 0
	cfg.IDGenerator = func() string {
		n++
		return filepath.Join("id", string(rune('a'+n)))
	}
	cfg.Clock = func() time.Time { return now }
	return cfg
}

func TestOpenCreatesStateLayout(t *testing.T) {
	cfg := testConfig(t, time.Now())
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	for _, d := range []string{"conversations", "knowledge", "embeddings"} {
		require.DirExists(t, filepath.Join(cfg.ProjectRoot, ".state", d))
	}
}

func TestOpenRejectsEmptyProjectRoot(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpenFailsWhenLockAlreadyHeld(t *testing.T) {
	cfg := testConfig(t, time.Now())
	first, err := Open(cfg)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(cfg)
	require.Error(t, err)
}

func TestOpenReopenAfterClosePreservesData(t *testing.T) {
	cfg := testConfig(t, time.Now())
	s, err := Open(cfg)
	require.NoError(t, err)

	_, err = s.AddConvention("always run lint before committing", []string{"ci"}, "sess-1", 0.9)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Knowledge.Conventions)
}

// TestEndToEndSessionScenario exercises the full conversation → knowledge →
// search → compressed-context arc against a single Store.
func TestEndToEndSessionScenario(t *testing.T) {
	cfg := testConfig(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddUserMessage("how should we authenticate API requests?", 1, "sess-1", []string{"auth"})
	require.NoError(t, err)

	_, err = s.AddAssistantMessage("let's use JWT bearer tokens", 2, "sess-1", nil, nil, "model-a")
	require.NoError(t, err)

	_, err = s.AddDecision(
		"how should we authenticate API requests?",
		"use JWT bearer tokens",
		"stateless, no server-side session storage needed",
		"model-a", "sess-1", nil, []string{"auth"},
	)
	require.NoError(t, err)

	_, err = s.AddConvention("always validate JWT expiry before trusting claims", []string{"auth"}, "sess-1", 0.9)
	require.NoError(t, err)

	results, err := s.Search("JWT authentication", nil, "", 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ctx, err := s.BuildCompressedContext("authentication", 2000, []string{"auth"}, "", true)
	require.NoError(t, err)
	require.Contains(t, ctx, "JWT")

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Conversations.UserMessages)
	require.Equal(t, 1, stats.Conversations.AssistantMessages)
	require.Equal(t, 1, stats.Knowledge.Decisions)
	require.Equal(t, 1, stats.Knowledge.Conventions)
}

func TestSearchDefaultsMinConfidenceAndLimit(t *testing.T) {
	cfg := testConfig(t, time.Now())
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddConvention("deploy only on weekdays", nil, "sess-1", 0.9)
	require.NoError(t, err)

	results, err := s.Search("deploy only on weekdays", nil, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestStatsStringIsHumanReadable(t *testing.T) {
	cfg := testConfig(t, time.Now())
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddUserMessage("hello", 1, "sess-1", nil)
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Contains(t, stats.String(), "conversation events")
}
