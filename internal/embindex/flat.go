package embindex

import (
	"container/heap"
	"math"
)

// topK returns the ids and cosine similarities of the k vectors in
// vectors most similar to query, restricted to candidates whose
// similarity is >= threshold. Ties are broken by the order callers
// supply in ids (insertion order). Keeps a bounded min-heap of the k
// best candidates seen so far, ordered by ascending similarity so the
// worst of the current top-k sits at the root and is evicted first.
func topK(ids []string, vectors map[string][]float32, query []float32, k int, threshold float64) ([]string, []float64) {
	if k <= 0 || len(ids) == 0 {
		return nil, nil
	}

	h := &simHeap{}
	heap.Init(h)

	for rank, id := range ids {
		sim := cosine(query, vectors[id])
		if sim < threshold {
			continue
		}
		item := simItem{id: id, sim: sim, rank: rank}
		if h.Len() < k {
			heap.Push(h, item)
		} else if betterThanWorst(item, (*h)[0]) {
			heap.Pop(h)
			heap.Push(h, item)
		}
	}

	n := h.Len()
	outIDs := make([]string, n)
	outSims := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		item := heap.Pop(h).(simItem)
		outIDs[i] = item.id
		outSims[i] = item.sim
	}
	return outIDs, outSims
}

// betterThanWorst reports whether candidate should displace the current
// worst-of-top-k, breaking similarity ties by earlier insertion order
// (lower rank wins).
func betterThanWorst(candidate, worst simItem) bool {
	if candidate.sim != worst.sim {
		return candidate.sim > worst.sim
	}
	return candidate.rank < worst.rank
}

type simItem struct {
	id   string
	sim  float64
	rank int
}

// simHeap is a min-heap ordered so the current worst of the retained
// top-k is at the root and evicted first.
type simHeap []simItem

func (h simHeap) Len() int { return len(h) }
func (h simHeap) Less(i, j int) bool {
	if h[i].sim != h[j].sim {
		return h[i].sim < h[j].sim
	}
	// Among equal similarities, keep the earlier-inserted one longer by
	// making the later one look "worse" (evicted first).
	return h[i].rank > h[j].rank
}
func (h simHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *simHeap) Push(x any) {
	*h = append(*h, x.(simItem))
}

func (h *simHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// cosine computes cosine similarity between two vectors. Both embindex
// vectors are already unit-normalized at Add time, so this reduces to a
// dot product, but the general form is kept for safety against callers
// passing raw (non-normalized) query vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
