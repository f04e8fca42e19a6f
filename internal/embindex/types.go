// Package embindex implements the Embedding Index: a text embedder plus
// a flat, exact-search vector index keyed by opaque ids, with a
// flat-file persistence format (a vectors.npy byte stream alongside a
// metadata.json sidecar) backing brute-force cosine top-K search over a
// bounded min-heap.
package embindex

import "time"

// Dimension is the fixed vector width produced by the reference
// embedder.
const Dimension = 384

// ModelVersion names the embedder's behavior version. It is part of the
// on-disk model cache path so an incompatible embedder never silently
// reuses another version's cache.
const ModelVersion = "agentmem-hashing-v1"

// Metadata is a fixed-field-plus-extensions record: the known fields
// every entry carries, plus a small string-keyed map for callers that
// need to stash something type-specific without widening this struct.
type Metadata struct {
	Type       string            `json:"type"`
	Text       string            `json:"text"`
	SessionID  string            `json:"session_id,omitempty"`
	Topics     []string          `json:"topics,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Result is one row of a search response: an id, its similarity to the
// query, and the metadata stored alongside it.
type Result struct {
	ID         string
	Similarity float64
	Metadata   Metadata
}

// Stats summarizes the index for introspection.
type Stats struct {
	Vectors   int `json:"vectors"`
	Dimension int `json:"dim"`
}
