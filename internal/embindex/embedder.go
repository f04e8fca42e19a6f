package embindex

import (
	"hash/fnv"
	"math"
	"strings"
)

// Embedder maps text to a fixed-dimension unit vector, deterministically
// and without any model weights or network call. Unlike seeding a single
// pseudo-random generator from a whole-string hash (deterministic but
// similarity-blind: near-identical strings would land nowhere near each
// other in cosine space), it hashes individual n-gram features — the
// standard "hashing trick" for bag-of-features embeddings — so textual
// similarity actually produces vector similarity, which near-duplicate
// detection and relevance scoring both depend on.
type Embedder struct {
	dim int
}

// NewEmbedder constructs an embedder producing vectors of width dim.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = Dimension
	}
	return &Embedder{dim: dim}
}

// Dimension reports the vector width this embedder produces.
func (e *Embedder) Dimension() int { return e.dim }

// Embed deterministically maps text to a unit-norm vector of width
// e.dim. Features are lowercased whitespace-delimited words and
// character trigrams; each feature is hashed into a bucket with a
// signed weight derived from a second hash, accumulated, then
// L2-normalized so every embedding lands on (or within floating-point
// epsilon of) the unit sphere and cosine similarity reduces to a plain
// dot product.
func (e *Embedder) Embed(text string) []float32 {
	vec := make([]float64, e.dim)

	for _, feature := range features(text) {
		bucket, sign := hashFeature(feature, e.dim)
		vec[bucket] += sign
	}

	out := make([]float32, e.dim)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// Degenerate (empty/whitespace-only) text: return a fixed unit
		// vector so the ||v||=1 invariant still holds.
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// features extracts the lowercase word tokens and character trigrams
// used as hashing-trick features.
func features(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.Fields(lower)

	feats := make([]string, 0, len(fields)*2)
	for _, w := range fields {
		feats = append(feats, "w:"+w)
	}

	joined := strings.Join(fields, " ")
	runes := []rune(joined)
	for i := 0; i+2 < len(runes); i++ {
		feats = append(feats, "t:"+string(runes[i:i+3]))
	}

	return feats
}

// hashFeature hashes a feature string into a bucket index and a signed
// unit weight, using two independent FNV-1a passes (seeded differently)
// so bucket and sign are not correlated.
func hashFeature(feature string, dim int) (bucket int, sign float64) {
	h1 := fnv.New32a()
	h1.Write([]byte(feature))
	bucket = int(h1.Sum32() % uint32(dim))

	h2 := fnv.New32a()
	h2.Write([]byte(feature))
	h2.Write([]byte{0xff})
	if h2.Sum32()%2 == 0 {
		sign = 1
	} else {
		sign = -1
	}
	return bucket, sign
}
