package fingerprint

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/roach88/biogate/internal/ir"
)

// SimulatedSampleSize is the length of samples produced by SimulatedSensor.
const SimulatedSampleSize = 100

// Sensor captures raw fingerprint samples. Capture may block on hardware.
type Sensor interface {
	Capture(ctx context.Context) (ir.FingerprintSample, error)
}

// SimulatedSensor stands in for a scanner. Without a fixed sample it returns
// a fresh random vector on every capture, so two captures never match under
// ExactMatch, exactly like an uncalibrated simulation.
type SimulatedSensor struct {
	mu    sync.Mutex
	rng   *rand.Rand
	fixed ir.FingerprintSample
}

// NewSimulatedSensor returns a sensor producing random samples from seed.
func NewSimulatedSensor(seed uint64) *SimulatedSensor {
	return &SimulatedSensor{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewFixedSensor returns a sensor that always captures sample.
func NewFixedSensor(sample ir.FingerprintSample) *SimulatedSensor {
	return &SimulatedSensor{fixed: ir.FingerprintSample(ir.CloneVector(sample))}
}

// Capture implements Sensor.
func (s *SimulatedSensor) Capture(ctx context.Context) (ir.FingerprintSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.fixed != nil {
		return ir.FingerprintSample(ir.CloneVector(s.fixed)), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sample := make(ir.FingerprintSample, SimulatedSampleSize)
	for i := range sample {
		sample[i] = s.rng.Float64()
	}
	return sample, nil
}
