// Package search implements a single semantic search operation over the
// shared embedding index, with type, session, and confidence filters
// applied after the raw nearest-neighbor pull.
package search

import (
	"sort"

	"github.com/kylebrodeur/agentmem/internal/embindex"
)

// Indexer is the subset of embindex.Index the façade needs.
type Indexer interface {
	Embed(text string) ([]float32, error)
	Search(query []float32, k int, threshold float64) []embindex.Result
}

// Result is what callers of Facade.Search receive: id, original embedded
// text, similarity, and full metadata.
type Result struct {
	ID         string
	Text       string
	Similarity float64
	Metadata   embindex.Metadata
}

// Facade performs semantic search over an Indexer.
type Facade struct {
	idx Indexer
}

// New creates a Facade over idx.
func New(idx Indexer) *Facade {
	return &Facade{idx: idx}
}

// Search embeds query, pulls up to limit*4 raw candidates, filters by
// types/session/min_confidence, then truncates to limit preserving
// similarity-descending order (ties broken by created_at descending).
func (f *Facade) Search(query string, types []string, sessionID string, minConfidence float64, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	vec, err := f.idx.Embed(query)
	if err != nil {
		return nil, err
	}

	raw := f.idx.Search(vec, limit*4, 0.0)

	typeSet := toSet(types)
	filtered := make([]Result, 0, len(raw))
	for _, r := range raw {
		if len(typeSet) > 0 && !typeSet[r.Metadata.Type] {
			continue
		}
		if sessionID != "" && r.Metadata.SessionID != sessionID {
			continue
		}
		conf := 1.0
		if r.Metadata.Confidence != nil {
			conf = *r.Metadata.Confidence
		}
		if conf < minConfidence {
			continue
		}
		filtered = append(filtered, Result{
			ID:         r.ID,
			Text:       r.Metadata.Text,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		})
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Similarity != filtered[j].Similarity {
			return filtered[i].Similarity > filtered[j].Similarity
		}
		return filtered[i].Metadata.CreatedAt.After(filtered[j].Metadata.CreatedAt)
	})

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
