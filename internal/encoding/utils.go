// Package encoding implements the record format embindex uses for
// vectors.npy: each record is a 4-byte little-endian element count
// followed by that many little-endian float32 values, with records
// simply concatenated back to back — a load just reads records off the
// front of the file until the bytes run out (see
// embindex/persist.go's readVectors, which computes each record's
// length from its own 4-byte prefix before slicing it off).
package encoding

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrInvalidVector reports a vector that is nil, empty, carries a
// NaN/Inf component, or a record whose length prefix doesn't match the
// bytes actually available to decode.
var ErrInvalidVector = errors.New("invalid vector")

const float32Width = 4

// EncodeVector packs vector into one self-describing record: a 4-byte
// element count followed by vector's bits, little-endian throughout.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}
	if len(vector) > math.MaxInt32 {
		return nil, ErrInvalidVector
	}

	out := make([]byte, float32Width+len(vector)*float32Width)
	binary.LittleEndian.PutUint32(out, uint32(len(vector)))
	for i, v := range vector {
		at := float32Width + i*float32Width
		binary.LittleEndian.PutUint32(out[at:], math.Float32bits(v))
	}
	return out, nil
}

// DecodeVector reads one record off the front of data, per
// EncodeVector's layout. Bytes past the end of that record — the start
// of the next record in a concatenated stream — are left untouched;
// readVectors is what walks a whole stream record by record.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < float32Width {
		return nil, ErrInvalidVector
	}

	count := binary.LittleEndian.Uint32(data)
	if count == 0 {
		return []float32{}, nil
	}

	need := float32Width + int(count)*float32Width
	if need < 0 || len(data) < need {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, count)
	for i := range vector {
		at := float32Width + i*float32Width
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[at:]))
	}
	return vector, nil
}

// ValidateVector rejects a nil/empty vector or one carrying a NaN or
// infinite component. persist.go calls this before EncodeVector: a NaN
// round-trips through the record format just fine but would silently
// poison every future cosine comparison against that row.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vector {
		if v != v || math.IsInf(float64(v), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
