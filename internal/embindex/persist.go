package embindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kylebrodeur/agentmem/internal/encoding"
)

// persistedRecord is the on-disk shape of one metadata.json entry:
// metadata.json maps each indexed id to its text and metadata, while
// vectors.npy stores the corresponding vectors in the same row order, so
// an index can be rebuilt from these two files alone.
type persistedRecord struct {
	Metadata Metadata `json:"metadata"`
	Row      int      `json:"row_index"`
}

type persistedFile struct {
	Dimension int                        `json:"dimension"`
	Model     string                     `json:"model_version"`
	Records   map[string]persistedRecord `json:"records"`
	// RowOrder preserves insertion order across a save/load cycle, since
	// Search breaks similarity ties by insertion order.
	RowOrder []string `json:"row_order"`
}

func metadataPath(dir string) string { return filepath.Join(dir, "metadata.json") }
func vectorsPath(dir string) string  { return filepath.Join(dir, "vectors.npy") }

// save atomically rewrites metadata.json and vectors.npy to reflect the
// index's current in-memory state, via write-temp-then-rename so a
// crash mid-write never leaves a half-written file in place.
func (idx *Index) save() error {
	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", idx.dir, err)
	}

	pf := persistedFile{
		Dimension: idx.dim,
		Model:     ModelVersion,
		Records:   make(map[string]persistedRecord, len(idx.order)),
		RowOrder:  append([]string(nil), idx.order...),
	}

	vecBuf := make([][]float32, 0, len(idx.order))
	for row, id := range idx.order {
		pf.Records[id] = persistedRecord{Metadata: idx.meta[id], Row: row}
		vecBuf = append(vecBuf, idx.vectors[id])
	}

	if err := writeJSONAtomic(metadataPath(idx.dir), pf); err != nil {
		return err
	}
	return writeVectorsAtomic(vectorsPath(idx.dir), vecBuf)
}

// load rebuilds in-memory state from metadata.json and vectors.npy. It
// returns ErrDimensionMismatch if the persisted dimension differs from
// idx.dim, refusing to load an index whose embedding dimension differs
// from the current model's rather than silently mixing incompatible
// vector spaces.
func (idx *Index) load() error {
	data, err := os.ReadFile(metadataPath(idx.dir))
	if os.IsNotExist(err) {
		return nil // nothing persisted yet; start empty.
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if pf.Dimension != 0 && pf.Dimension != idx.dim {
		return errDimensionMismatch(pf.Dimension, idx.dim)
	}

	vectors, err := readVectors(vectorsPath(idx.dir))
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}
	if len(vectors) != len(pf.RowOrder) {
		return fmt.Errorf("vectors.npy row count %d does not match metadata row order %d", len(vectors), len(pf.RowOrder))
	}

	idx.order = append([]string(nil), pf.RowOrder...)
	idx.vectors = make(map[string][]float32, len(idx.order))
	idx.meta = make(map[string]Metadata, len(idx.order))
	for row, id := range idx.order {
		idx.vectors[id] = vectors[row]
		rec := pf.Records[id]
		idx.meta[id] = rec.Metadata
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

func writeVectorsAtomic(path string, vectors [][]float32) error {
	var buf []byte
	for _, v := range vectors {
		if err := encoding.ValidateVector(v); err != nil {
			return fmt.Errorf("validate vector: %w", err)
		}
		b, err := encoding.EncodeVector(v)
		if err != nil {
			return fmt.Errorf("encode vector: %w", err)
		}
		buf = append(buf, b...)
	}
	return writeFileAtomic(path, buf)
}

func readVectors(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out [][]float32
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("truncated vector stream")
		}
		length := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
		recordLen := 4 + length*4
		if recordLen > len(data) {
			return nil, fmt.Errorf("truncated vector record")
		}
		vec, err := encoding.DecodeVector(data[:recordLen])
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
		data = data[recordLen:]
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
