package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/fingerprint"
	"github.com/roach88/biogate/internal/ir"
)

var errNoSample = errors.New("one of --sample, --sample-file or --sensor-seed is required")

// sampleFlags selects where a fingerprint sample comes from.
type sampleFlags struct {
	Values     []float64
	File       string
	SensorSeed uint64
}

func (s *sampleFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64SliceVar(&s.Values, "sample", nil, "fingerprint sample values (comma separated)")
	cmd.Flags().StringVar(&s.File, "sample-file", "", "fingerprint sample as a JSON array")
	cmd.Flags().Uint64Var(&s.SensorSeed, "sensor-seed", 0, "capture from the simulated sensor with this seed")
}

func (s *sampleFlags) resolve(ctx context.Context, cmd *cobra.Command) (ir.FingerprintSample, error) {
	switch {
	case len(s.Values) > 0:
		return ir.FingerprintSample(s.Values), nil
	case s.File != "":
		return readSampleFile(s.File)
	case cmd.Flags().Changed("sensor-seed"):
		return fingerprint.NewSimulatedSensor(s.SensorSeed).Capture(ctx)
	default:
		return nil, errNoSample
	}
}

var errExactlyOneFace = errors.New("exactly one of --image or --embedding is required")
