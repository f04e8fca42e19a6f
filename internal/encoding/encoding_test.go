package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vec := []float32{0.1, -0.2, 3.5, 0, 1e-3}

	data, err := EncodeVector(vec)
	require.NoError(t, err)

	out, err := DecodeVector(data)
	require.NoError(t, err)
	require.Equal(t, vec, out)
}

func TestEncodeVectorNilIsInvalid(t *testing.T) {
	_, err := EncodeVector(nil)
	require.ErrorIs(t, err, ErrInvalidVector)
}

func TestEncodeVectorEmptyRoundTrips(t *testing.T) {
	data, err := EncodeVector([]float32{})
	require.NoError(t, err)

	out, err := DecodeVector(data)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDecodeVectorTruncatedIsInvalid(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2})
	require.ErrorIs(t, err, ErrInvalidVector)

	data, err := EncodeVector([]float32{1, 2, 3})
	require.NoError(t, err)
	_, err = DecodeVector(data[:len(data)-2])
	require.ErrorIs(t, err, ErrInvalidVector)
}

func TestValidateVectorRejectsEmpty(t *testing.T) {
	require.ErrorIs(t, ValidateVector(nil), ErrInvalidVector)
	require.ErrorIs(t, ValidateVector([]float32{}), ErrInvalidVector)
}

func TestValidateVectorRejectsNaNAndInf(t *testing.T) {
	require.ErrorIs(t, ValidateVector([]float32{1, float32(math.NaN())}), ErrInvalidVector)
	require.ErrorIs(t, ValidateVector([]float32{1, float32(math.Inf(1))}), ErrInvalidVector)
	require.ErrorIs(t, ValidateVector([]float32{1, float32(math.Inf(-1))}), ErrInvalidVector)
}

func TestValidateVectorAcceptsNormalValues(t *testing.T) {
	require.NoError(t, ValidateVector([]float32{0.1, -0.2, 0}))
}
