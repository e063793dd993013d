package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/ir"
)

func nanValue() float64 { return math.NaN() }

func TestExactMatch(t *testing.T) {
	s := ExactMatch{}

	score, err := s.Compare(ir.FingerprintTemplate{1, 2, 3}, ir.FingerprintTemplate{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Score{Similarity: 1, Matched: true}, score)

	score, err = s.Compare(ir.FingerprintTemplate{1, 2, 3}, ir.FingerprintTemplate{3, 2, 1})
	require.NoError(t, err)
	assert.False(t, score.Matched)
	assert.Zero(t, score.Similarity)
}

func TestFeatureDistance_DimensionMismatchIsNoMatch(t *testing.T) {
	s := FeatureDistance{MinSimilarity: 0.1}

	score, err := s.Compare(ir.FingerprintTemplate{1, 2, 3}, ir.FingerprintTemplate{1, 2})
	require.NoError(t, err)
	assert.False(t, score.Matched)
}

func TestFeatureDistance_Identical(t *testing.T) {
	s := FeatureDistance{MinSimilarity: 0.99}

	score, err := s.Compare(ir.FingerprintTemplate{1, 2}, ir.FingerprintTemplate{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score.Similarity)
	assert.True(t, score.Matched)
}

func TestStrategyFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StrategyConfig
		want    string
		wantErr bool
	}{
		{"default", StrategyConfig{}, StrategyExact, false},
		{"exact", StrategyConfig{Strategy: "exact"}, StrategyExact, false},
		{"distance", StrategyConfig{Strategy: "distance", Metric: "cosine", MinSimilarity: 0.8}, StrategyDistance, false},
		{"unknown strategy", StrategyConfig{Strategy: "minutiae"}, "", true},
		{"unknown metric", StrategyConfig{Strategy: "distance", Metric: "hamming"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := StrategyFromConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}
}

func TestStrategyFromConfig_DefaultThreshold(t *testing.T) {
	s, err := StrategyFromConfig(StrategyConfig{Strategy: StrategyDistance})
	require.NoError(t, err)
	fd, ok := s.(FeatureDistance)
	require.True(t, ok)
	assert.Equal(t, DefaultMinSimilarity, fd.MinSimilarity)
}
