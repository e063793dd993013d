// Package distance provides vector metrics for biometric matching.
// Lower is more similar; all metrics return non-negative values.
package distance

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimension is returned when two vectors have different lengths.
var ErrDimension = errors.New("vector dimensions differ")

// Func computes the distance between two vectors of equal length.
type Func func(a, b []float64) (float64, error)

// Metric names accepted by ByName.
const (
	NameEuclidean = "euclidean"
	NameCosine    = "cosine"
	NameManhattan = "manhattan"
)

// Euclidean is the L2 distance, the metric face_recognition style models
// are calibrated for.
func Euclidean(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimension, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Manhattan is the L1 distance.
func Manhattan(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimension, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum, nil
}

// Cosine is 1 - cosine similarity, clamped to [0, 2].
// A zero vector is at distance 1 from everything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimension, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Min(2, math.Max(0, d)), nil
}

// ByName returns the metric registered under name.
func ByName(name string) (Func, error) {
	switch name {
	case NameEuclidean, "":
		return Euclidean, nil
	case NameCosine:
		return Cosine, nil
	case NameManhattan:
		return Manhattan, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q", name)
	}
}
