package embindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopKRespectsK(t *testing.T) {
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0.9, 0.1},
		"c": {0, 1},
	}
	ids, sims := topK([]string{"a", "b", "c"}, vectors, []float32{1, 0}, 2, 0)
	require.Len(t, ids, 2)
	require.Equal(t, "a", ids[0])
	require.Equal(t, "b", ids[1])
	require.Greater(t, sims[0], sims[1])
}

func TestTopKThreshold(t *testing.T) {
	vectors := map[string][]float32{
		"a": {1, 0},
		"c": {0, 1},
	}
	ids, _ := topK([]string{"a", "c"}, vectors, []float32{1, 0}, 5, 0.5)
	require.Equal(t, []string{"a"}, ids)
}

func TestTopKTieBreaksByInsertionOrder(t *testing.T) {
	vectors := map[string][]float32{
		"first":  {1, 0},
		"second": {1, 0},
	}
	ids, _ := topK([]string{"first", "second"}, vectors, []float32{1, 0}, 1, 0)
	require.Equal(t, []string{"first"}, ids)
}

func TestCosineOrthogonal(t *testing.T) {
	require.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}))
}
