package embindex

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kylebrodeur/agentmem/internal/errs"
	"github.com/kylebrodeur/agentmem/internal/logging"
)

// Index is the embedding index: embed, add, search,
// find-near-duplicate, remove, save, load, and report stats over a flat
// in-memory set of vectors backed by a directory on disk.
//
// The embedder is constructed lazily on first use rather than eagerly
// in New, so opening a store never pays embedder setup cost until
// something actually needs to embed text. Construction is coalesced
// through a singleflight.Group so concurrent first-use callers share
// one construction rather than racing to build (and log) it twice.
type Index struct {
	mu  sync.RWMutex
	dir string
	dim int

	order   []string // insertion order, for tie-breaking and row order
	vectors map[string][]float32
	meta    map[string]Metadata

	embedder   *Embedder
	embedderSF singleflight.Group

	log logging.Logger
}

// New creates an Index rooted at dir (the on-disk "embeddings/"
// directory) with the given vector dimension.
func New(dir string, dim int, log logging.Logger) *Index {
	if dim <= 0 {
		dim = Dimension
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Index{
		dir:     dir,
		dim:     dim,
		order:   nil,
		vectors: make(map[string][]float32),
		meta:    make(map[string]Metadata),
		log:     log,
	}
}

// ensureEmbedder lazily constructs the embedder, coalescing concurrent
// callers. Construction here cannot fail (no model weights to fetch),
// but the seam is kept so a future real-model backend can surface
// ErrModelLoad without changing callers.
func (idx *Index) ensureEmbedder() (*Embedder, error) {
	idx.mu.RLock()
	e := idx.embedder
	idx.mu.RUnlock()
	if e != nil {
		return e, nil
	}

	v, err, _ := idx.embedderSF.Do("embedder", func() (any, error) {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		if idx.embedder != nil {
			return idx.embedder, nil
		}
		if err := ensureModelCache(filepath.Join(idx.dir, "model", ModelVersion)); err != nil {
			return nil, errs.Wrap("embed", fmt.Errorf("%w: %v", errs.ErrModelLoad, err))
		}
		idx.embedder = NewEmbedder(idx.dim)
		idx.log.Info("embedder initialized", "model_version", ModelVersion, "dim", idx.dim)
		return idx.embedder, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Embedder), nil
}

// WarmUp forces lazy embedder construction and returns only once it is
// ready, so the first real Embed/Add call after startup doesn't pay
// construction latency.
func (idx *Index) WarmUp() error {
	_, err := idx.ensureEmbedder()
	return err
}

// Embed returns the unit vector for text, constructing the embedder on
// first call.
func (idx *Index) Embed(text string) ([]float32, error) {
	e, err := idx.ensureEmbedder()
	if err != nil {
		return nil, err
	}
	return e.Embed(text), nil
}

// Add inserts a new entry. It fails with ErrDuplicateID if id already
// exists; ids are assigned once and never reused.
func (idx *Index) Add(id, text string, meta Metadata) error {
	vec, err := idx.Embed(text)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.vectors[id]; exists {
		return errs.Wrap("add", errs.ErrDuplicateID)
	}
	idx.order = append(idx.order, id)
	idx.vectors[id] = vec
	meta.Text = text
	idx.meta[id] = meta
	return nil
}

// AddVector inserts a precomputed vector directly, without embedding any
// text. It fails with ErrDimensionMismatch if vec's width differs from
// the index's and with ErrDuplicateID if id already exists. The
// log-replay rebuilds go through Add, not this method.
func (idx *Index) AddVector(id string, vec []float32, meta Metadata) error {
	if len(vec) != idx.dim {
		return errs.Wrap("add_vector", errs.ErrDimensionMismatch)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.vectors[id]; exists {
		return errs.Wrap("add_vector", errs.ErrDuplicateID)
	}
	idx.order = append(idx.order, id)
	cp := make([]float32, len(vec))
	copy(cp, vec)
	idx.vectors[id] = cp
	idx.meta[id] = meta
	return nil
}

// Search returns at most k entries with similarity >= threshold to
// query, sorted by similarity descending with insertion-order
// tie-breaking.
func (idx *Index) Search(query []float32, k int, threshold float64) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.order) == 0 {
		return []Result{}
	}

	ids, sims := topK(idx.order, idx.vectors, query, k, threshold)
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{ID: id, Similarity: sims[i], Metadata: idx.meta[id]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// FindNearDuplicate is search(text, 1, threshold) returning only the id.
func (idx *Index) FindNearDuplicate(text string, threshold float64) (string, bool, error) {
	vec, err := idx.Embed(text)
	if err != nil {
		return "", false, err
	}
	results := idx.Search(vec, 1, threshold)
	if len(results) == 0 {
		return "", false, nil
	}
	return results[0].ID, true, nil
}

// SearchFiltered returns the best matches for query restricted to
// entries whose Metadata.Type is in typeFilter. Used by the knowledge
// store's dedup checks, which must only compare a new
// Convention/Learning against existing entries of the same kind, not the
// whole shared index.
func (idx *Index) SearchFiltered(query []float32, k int, threshold float64, typeFilter map[string]bool) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var candidateIDs []string
	for _, id := range idx.order {
		if typeFilter[idx.meta[id].Type] {
			candidateIDs = append(candidateIDs, id)
		}
	}
	if len(candidateIDs) == 0 {
		return []Result{}
	}

	ids, sims := topK(candidateIDs, idx.vectors, query, k, threshold)
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{ID: id, Similarity: sims[i], Metadata: idx.meta[id]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// Remove deletes id from the index by rebuild, preserving the vectors
// and metadata of every remaining entry exactly.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[id]; !ok {
		return
	}
	delete(idx.vectors, id)
	delete(idx.meta, id)
	newOrder := make([]string, 0, len(idx.order)-1)
	for _, existing := range idx.order {
		if existing != id {
			newOrder = append(newOrder, existing)
		}
	}
	idx.order = newOrder
}

// UpdateMetadata overwrites the stored metadata for an existing id
// in-place, without touching its vector. Used when a Convention/Learning
// merge changes confidence, topics, or last_verified but not the
// underlying text.
func (idx *Index) UpdateMetadata(id string, meta Metadata) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[id]; !ok {
		return false
	}
	idx.meta[id] = meta
	return true
}

// VectorFor returns the stored vector for id, if present.
func (idx *Index) VectorFor(id string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	return v, ok
}

// MetadataFor returns the stored metadata for id, if present.
func (idx *Index) MetadataFor(id string) (Metadata, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.meta[id]
	return m, ok
}

// Save persists the complete index state (vectors.npy + metadata.json).
func (idx *Index) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if err := idx.save(); err != nil {
		return errs.Wrap("save", fmt.Errorf("%w: %v", errs.ErrIO, err))
	}
	return nil
}

// Load restores index state from disk, returning ErrDimensionMismatch if
// the persisted dimension is incompatible with the configured model.
func (idx *Index) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.load(); err != nil {
		if isDimensionMismatch(err) {
			return errs.Wrap("load", err)
		}
		return errs.Wrap("load", fmt.Errorf("%w: %v", errs.ErrIO, err))
	}
	return nil
}

// Stats reports index size and dimension.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{Vectors: len(idx.order), Dimension: idx.dim}
}

// Dimension reports the configured vector width.
func (idx *Index) Dimension() int { return idx.dim }

type dimensionMismatchErr struct {
	persisted, current int
}

func (e dimensionMismatchErr) Error() string {
	return fmt.Sprintf("%v: persisted index has dimension %d, model has %d", errs.ErrDimensionMismatch, e.persisted, e.current)
}
func (e dimensionMismatchErr) Unwrap() error { return errs.ErrDimensionMismatch }

func errDimensionMismatch(persisted, current int) error {
	return dimensionMismatchErr{persisted: persisted, current: current}
}

func isDimensionMismatch(err error) bool {
	_, ok := err.(dimensionMismatchErr)
	return ok
}
