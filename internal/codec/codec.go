// Package codec encodes biometric vectors for storage and digesting.
//
// Vectors are encoded as deterministic CBOR (RFC 8949 core deterministic
// encoding): the same vector always yields the same bytes, and floats use
// the shortest lossless representation.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor enc mode: %v", err))
	}
	return em
}

// EncodeVector returns the deterministic CBOR encoding of v.
func EncodeVector(v []float64) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return data, nil
}

// DecodeVector parses a vector produced by EncodeVector.
func DecodeVector(data []byte) ([]float64, error) {
	var v []float64
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}
