package embindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kylebrodeur/agentmem/internal/errs"
	"github.com/kylebrodeur/agentmem/internal/logging"
)

func TestIndexAddAndSearch(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())

	err := idx.Add("conv:1", "we always validate JWTs at the gateway", Metadata{Type: "convention", CreatedAt: time.Now()})
	require.NoError(t, err)
	err = idx.Add("conv:2", "the deploy pipeline retries three times", Metadata{Type: "convention", CreatedAt: time.Now()})
	require.NoError(t, err)

	vec, err := idx.Embed("JWT validation at the gateway")
	require.NoError(t, err)

	results := idx.Search(vec, 5, 0)
	require.NotEmpty(t, results)
	require.Equal(t, "conv:1", results[0].ID)
}

func TestIndexAddDuplicateID(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "hello world", Metadata{}))
	err := idx.Add("a", "hello world again", Metadata{})
	require.ErrorIs(t, err, errs.ErrDuplicateID)
}

func TestIndexRemove(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "hello world", Metadata{}))
	idx.Remove("a")
	_, ok := idx.VectorFor("a")
	require.False(t, ok)
	require.Equal(t, 0, idx.Stats().Vectors)
}

func TestIndexUpdateMetadata(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "hello world", Metadata{Type: "convention"}))

	conf := 0.5
	ok := idx.UpdateMetadata("a", Metadata{Type: "convention", Confidence: &conf})
	require.True(t, ok)

	meta, ok := idx.MetadataFor("a")
	require.True(t, ok)
	require.Equal(t, 0.5, *meta.Confidence)
}

func TestIndexSearchFiltered(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())
	require.NoError(t, idx.Add("convention:1", "always lint before commit", Metadata{Type: "convention"}))
	require.NoError(t, idx.Add("decision:1", "always lint before commit", Metadata{Type: "decision"}))

	vec, err := idx.Embed("always lint before commit")
	require.NoError(t, err)

	results := idx.SearchFiltered(vec, 5, 0, map[string]bool{"convention": true})
	require.Len(t, results, 1)
	require.Equal(t, "convention:1", results[0].ID)
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "round trip me", Metadata{Type: "convention"}))
	require.NoError(t, idx.Save())

	loaded := New(dir, Dimension, logging.Nop())
	require.NoError(t, loaded.Load())
	require.Equal(t, idx.Stats(), loaded.Stats())

	v1, _ := idx.VectorFor("a")
	v2, _ := loaded.VectorFor("a")
	require.Equal(t, v1, v2)
}

func TestIndexLoadDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "round trip me", Metadata{}))
	require.NoError(t, idx.Save())

	mismatched := New(dir, Dimension+8, logging.Nop())
	err := mismatched.Load()
	require.Error(t, err)
}

func TestFindNearDuplicate(t *testing.T) {
	idx := New(t.TempDir(), Dimension, logging.Nop())
	require.NoError(t, idx.Add("a", "we deploy on fridays only with sign-off", Metadata{Type: "convention"}))

	id, found, err := idx.FindNearDuplicate("we deploy on fridays only with sign-off", 0.99)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", id)

	_, found, err = idx.FindNearDuplicate("completely unrelated text about something else", 0.99)
	require.NoError(t, err)
	require.False(t, found)
}
