package ir

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned by ValidateVector.
var ErrInvalidVector = errors.New("invalid vector")

// ValidateVector checks that a biometric vector is non-empty and contains
// only finite values.
func ValidateVector(v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: element %d is not finite", ErrInvalidVector, i)
		}
	}
	return nil
}

// CloneVector returns a copy of v that shares no memory with it.
func CloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
