package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRoundTripIsLossless(t *testing.T) {
	v := []float64{0, 1, -2.5, 0.1, math.Pi, 1e-300, math.MaxFloat64}

	data, err := EncodeVector(v)
	require.NoError(t, err)

	got, err := DecodeVector(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestEncodeVectorDeterministic(t *testing.T) {
	a, err := EncodeVector([]float64{1, 2, 3})
	require.NoError(t, err)
	b, err := EncodeVector([]float64{1, 2, 3})
	require.NoError(t, err)
	c, err := EncodeVector([]float64{1, 2, 3.0000001})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDecodeVectorRejectsGarbage(t *testing.T) {
	_, err := DecodeVector([]byte{0xff, 0x00})
	assert.Error(t, err)
}
